package apikey

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"

	"github.com/tspence/api-key-generator/pkg/base58"
	"github.com/tspence/api-key-generator/pkg/errors"
)

const (
	// BCryptCost is the work factor of generated bcrypt hashes.
	BCryptCost = 11

	// PBKDF2Iterations is the iteration count of HashPBKDF2100K.
	PBKDF2Iterations = 100_000

	// PBKDF2KeyLength is the derived key size of HashPBKDF2100K in bytes.
	PBKDF2KeyLength = 64

	bcryptMaxPasswordLength = 72
	bcryptSaltPrefixLength  = 29
)

// ErrExternalSalt is returned by Hash for kinds that embed their own salt.
var ErrExternalSalt = stderrors.New("apikey: hash kind generates its own salt")

// Hasher derives and verifies the stored form of a client secret.
type Hasher interface {
	// Kind returns the hash kind implemented by this hasher.
	Kind() HashKind

	// Generate creates a new salt and the hash of secret under that salt.
	Generate(random io.Reader, secret string) (salt string, hash string, err error)

	// Verify reports whether secret hashes to hash under salt.
	Verify(secret, salt, hash string) (bool, error)
}

// NewHasher returns the Hasher for alg's hash kind.
func NewHasher(alg *Algorithm) (Hasher, error) {
	alg = orDefault(alg)
	switch alg.Hash {
	case HashSHA256:
		return &digestHasher{alg: alg, derive: deriveSHA256}, nil
	case HashSHA512:
		return &digestHasher{alg: alg, derive: deriveSHA512}, nil
	case HashPBKDF2100K:
		return &digestHasher{alg: alg, derive: derivePBKDF2}, nil
	case HashBCrypt:
		return &bcryptHasher{cost: BCryptCost}, nil
	}
	return nil, errors.ErrUnsupportedAlgorithm(alg.Hash)
}

// Hash derives the stored hash of secret under salt. It is defined for the
// digest and PBKDF2 kinds; bcrypt returns ErrExternalSalt.
func Hash(alg *Algorithm, secret, salt string) (string, error) {
	h, err := NewHasher(alg)
	if err != nil {
		return "", err
	}
	d, ok := h.(*digestHasher)
	if !ok {
		return "", ErrExternalSalt
	}
	return d.hash(secret, salt), nil
}

// ================================================================================
// Digest and KDF hashers
// ================================================================================

type digestHasher struct {
	alg    *Algorithm
	derive func(secret, salt []byte) string
}

func (d *digestHasher) Kind() HashKind {
	return d.alg.Hash
}

func (d *digestHasher) Generate(random io.Reader, secret string) (string, string, error) {
	saltBytes := make([]byte, d.alg.SaltLength)
	if _, err := io.ReadFull(random, saltBytes); err != nil {
		return "", "", fmt.Errorf("apikey: generating salt: %w", err)
	}
	salt := base58.Encode(saltBytes)
	return salt, d.hash(secret, salt), nil
}

func (d *digestHasher) Verify(secret, salt, hash string) (bool, error) {
	return constantTimeEqual(d.hash(secret, salt), hash), nil
}

// hash decodes both fields with their configured lengths. A field that fails
// to decode contributes no bytes, which keeps hashes of existing keys stable.
func (d *digestHasher) hash(secret, salt string) string {
	secretBytes, ok := base58.DecodeLength(secret, d.alg.ClientSecretLength)
	if !ok {
		secretBytes = nil
	}
	saltBytes, ok := base58.DecodeLength(salt, d.alg.SaltLength)
	if !ok {
		saltBytes = nil
	}
	return d.derive(secretBytes, saltBytes)
}

func deriveSHA256(secret, salt []byte) string {
	h := sha256.New()
	h.Write(secret)
	h.Write(salt)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func deriveSHA512(secret, salt []byte) string {
	h := sha512.New()
	h.Write(secret)
	h.Write(salt)
	return base58.Encode(h.Sum(nil))
}

func derivePBKDF2(secret, salt []byte) string {
	return base58.Encode(pbkdf2.Key(secret, salt, PBKDF2Iterations, PBKDF2KeyLength, sha1.New))
}

// ================================================================================
// BCrypt hasher
// ================================================================================

// bcryptHasher stores the "$2a$<cost>$<22 chars>" prefix of the hash as the salt.
type bcryptHasher struct {
	cost int
}

func (b *bcryptHasher) Kind() HashKind {
	return HashBCrypt
}

func (b *bcryptHasher) Generate(_ io.Reader, secret string) (string, string, error) {
	hashed, err := bcrypt.GenerateFromPassword(bcryptPassword(secret), b.cost)
	if err != nil {
		return "", "", fmt.Errorf("apikey: bcrypt: %w", err)
	}
	hash := string(hashed)
	return hash[:bcryptSaltPrefixLength], hash, nil
}

func (b *bcryptHasher) Verify(secret, salt, hash string) (bool, error) {
	if len(hash) < bcryptSaltPrefixLength || !constantTimeEqual(hash[:bcryptSaltPrefixLength], salt) {
		return false, nil
	}
	// Malformed stored hashes count as a mismatch.
	return bcrypt.CompareHashAndPassword([]byte(hash), bcryptPassword(secret)) == nil, nil
}

// bcryptPassword truncates to the 72 bytes bcrypt actually consumes.
func bcryptPassword(secret string) []byte {
	p := []byte(secret)
	if len(p) > bcryptMaxPasswordLength {
		p = p[:bcryptMaxPasswordLength]
	}
	return p
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
