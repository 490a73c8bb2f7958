package apikey_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

var fixedID = uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")

func TestClientKey_String_WireFormat(t *testing.T) {
	key := &apikey.ClientKey{ID: fixedID, ClientSecret: "abc"}

	// Key ids use the mixed-endian GUID byte order of existing keys.
	assert.Equal(t, "kpbfKDj7dtnBFrSDdGkFnbuGS_abcaei", key.String(nil))
	assert.Equal(t, "keyfKDj7dtnBFrSDdGkFnbuGS_abcyek", key.String(shaAlgorithm()))
}

func TestTryParseKey_RoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		key := &apikey.ClientKey{ID: uuid.New(), ClientSecret: "pshnaf39wBUDNEGHJ"}
		parsed, perr := apikey.TryParseKey(key.String(shaAlgorithm()), shaAlgorithm())
		require.Nil(t, perr)
		assert.Equal(t, key.ID, parsed.ID)
		assert.Equal(t, key.ClientSecret, parsed.ClientSecret)
	}
}

func TestTryParseKey_Failures(t *testing.T) {
	alg := shaAlgorithm()
	valid := (&apikey.ClientKey{ID: fixedID, ClientSecret: "abc"}).String(alg)

	tests := []struct {
		name    string
		raw     string
		kind    apikey.ParseErrorKind
		message string
	}{
		{"empty", "", apikey.EmptyKey, "Key is null or empty."},
		{"blank", "  \t", apikey.EmptyKey, "Key is null or empty."},
		{"prepended", "extra" + valid, apikey.PrefixMismatch, "This does not look like an API key (missing prefix key)."},
		{"appended", valid + "extra", apikey.Truncated, "This key was truncated and is missing some data."},
		{"overlapping prefix and suffix", "keyek", apikey.Truncated, "This key was truncated and is missing some data."},
		{"no delimiter", "keyabcyek", apikey.MissingDelimiter, "Key and client secret are not properly delimited."},
		{"empty id", "key_abcyek", apikey.MalformedKeyID, "Key ID is not properly formatted."},
		{"short id", "keyabc_123yek", apikey.MalformedKeyID, "Key ID is not properly formatted."},
		{"invalid id symbol", "key0000000000000000000000_123yek", apikey.MalformedKeyID, "Key ID is not properly formatted."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, perr := apikey.TryParseKey(tt.raw, alg)
			assert.Nil(t, key)
			require.NotNil(t, perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.message, perr.Message)
			assert.Equal(t, tt.message, perr.Error())
		})
	}
}

func TestTryParseKey_SeparatorInsidePrefix(t *testing.T) {
	alg := shaAlgorithm()
	alg.Prefix = "sk_live_"
	raw := (&apikey.ClientKey{ID: fixedID, ClientSecret: "abc"}).String(alg)

	parsed, perr := apikey.TryParseKey(raw, alg)
	require.Nil(t, perr)
	assert.Equal(t, fixedID, parsed.ID)
	assert.Equal(t, "abc", parsed.ClientSecret)
}

func TestParseKey_Strict(t *testing.T) {
	_, err := apikey.ParseKey("", nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidKey(err))
	assert.Equal(t, "Key is null or empty.", err.Error())

	svcErr, ok := errors.AsServiceError(err)
	require.True(t, ok)
	assert.Equal(t, "empty_key", svcErr.Metadata()["reason"])

	key, err := apikey.ParseKey("kpbfKDj7dtnBFrSDdGkFnbuGS_abcaei", nil)
	require.NoError(t, err)
	assert.Equal(t, fixedID, key.ID)
}

func TestParseErrorKind_String(t *testing.T) {
	assert.Equal(t, "malformed_key_id", apikey.MalformedKeyID.String())
	assert.Equal(t, "unknown", apikey.ParseErrorKind(99).String())
}
