package apikey_test

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/base58"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// oneByte has one-byte secrets and salts so known answers stay readable.
func oneByte(kind apikey.HashKind) *apikey.Algorithm {
	return &apikey.Algorithm{Prefix: "t", Suffix: "t", Hash: kind, ClientSecretLength: 1, SaltLength: 1}
}

func TestHash_KnownAnswers(t *testing.T) {
	secret := base58.Encode([]byte{0x01})
	salt := base58.Encode([]byte{0x02})

	tests := []struct {
		kind apikey.HashKind
		want string
	}{
		{apikey.HashSHA256, "oShx/uIQ+4YZKR6uoZRYHL0lMeSyN1nSJfaAaSP2MiI="},
		{apikey.HashSHA512, "ho9464xJLfVZiXEGc9kD5jeX65LuJ8VsAbvDtmBHeqH82yctMduCpaQ3hxDgxBmfocnje4UC3v1p9JZxmYQZeLj7"},
		{apikey.HashPBKDF2100K, "sXiG899eRPFbW5iR8MVNuydsGyYCqcJD4PbPT6Jys3p6VzCekvbTbMj2QuqPUSPeg8JdKWcYoKL6gdWMqMJSbH33"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			got, err := apikey.Hash(oneByte(tt.kind), secret, salt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHash_UndecodableFieldsHashAsEmpty(t *testing.T) {
	alg := shaAlgorithm()
	salt := base58.Encode(make([]byte, 64))

	empty, err := apikey.Hash(alg, "", salt)
	require.NoError(t, err)

	invalid, err := apikey.Hash(alg, "not/base58", salt)
	require.NoError(t, err)
	assert.Equal(t, empty, invalid)

	wrongLength, err := apikey.Hash(alg, base58.Encode([]byte{1, 2, 3}), salt)
	require.NoError(t, err)
	assert.Equal(t, empty, wrongLength)
}

func TestHash_BCryptNeedsGeneratedSalt(t *testing.T) {
	_, err := apikey.Hash(apikey.DefaultAlgorithm(), "secret", "salt")
	assert.ErrorIs(t, err, apikey.ErrExternalSalt)
}

func TestNewHasher_UnknownKind(t *testing.T) {
	alg := shaAlgorithm()
	alg.Hash = 7

	_, err := apikey.NewHasher(alg)
	require.Error(t, err)
	assert.True(t, errors.IsUnsupportedAlgorithm(err))
	assert.Equal(t, "Unknown hash type 7", err.Error())

	_, err = apikey.Hash(alg, "a", "b")
	assert.True(t, errors.IsUnsupportedAlgorithm(err))
}

func TestHasher_GenerateAndVerify(t *testing.T) {
	kinds := []apikey.HashKind{apikey.HashSHA256, apikey.HashSHA512, apikey.HashPBKDF2100K, apikey.HashBCrypt}

	for _, kind := range kinds {
		t.Run(kind.String(), func(t *testing.T) {
			alg := shaAlgorithm()
			alg.Hash = kind
			hasher, err := apikey.NewHasher(alg)
			require.NoError(t, err)
			assert.Equal(t, kind, hasher.Kind())

			secretBytes := make([]byte, alg.ClientSecretLength)
			_, err = rand.Read(secretBytes)
			require.NoError(t, err)
			secret := base58.Encode(secretBytes)

			salt, hash, err := hasher.Generate(rand.Reader, secret)
			require.NoError(t, err)
			require.NotEmpty(t, salt)
			require.NotEmpty(t, hash)

			ok, err := hasher.Verify(secret, salt, hash)
			require.NoError(t, err)
			assert.True(t, ok)

			altered := "p" + secret[1:]
			if secret[0] == 'p' {
				altered = "s" + secret[1:]
			}
			ok, err = hasher.Verify(altered, salt, hash)
			require.NoError(t, err)
			assert.False(t, ok, "altered secret must not verify")
		})
	}
}

func TestBCryptHasher_SaltIsHashPrefix(t *testing.T) {
	hasher, err := apikey.NewHasher(apikey.DefaultAlgorithm())
	require.NoError(t, err)

	salt, hash, err := hasher.Generate(nil, strings.Repeat("p", 88))
	require.NoError(t, err)
	assert.Len(t, salt, 29)
	assert.True(t, strings.HasPrefix(hash, salt))
	assert.True(t, strings.HasPrefix(salt, "$2a$11$"))

	ok, err := hasher.Verify(strings.Repeat("p", 88), "$2a$11$wrongwrongwrongwrongwr", hash)
	require.NoError(t, err)
	assert.False(t, ok, "a salt that does not match the hash must not verify")

	ok, err = hasher.Verify("p", salt, "garbage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigestHasher_SaltLength(t *testing.T) {
	alg := shaAlgorithm()
	alg.SaltLength = 32
	hasher, err := apikey.NewHasher(alg)
	require.NoError(t, err)

	salt, _, err := hasher.Generate(rand.Reader, "secret")
	require.NoError(t, err)
	b, err := base58.DecodeString(salt)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}
