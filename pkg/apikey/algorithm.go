// Package apikey issues and validates opaque API keys.
//
// A key is rendered as prefix + Base58(key id) + "_" + client secret + suffix.
// Only a salted hash of the client secret is stored; validation re-derives the
// hash from the presented secret and compares it with the stored value.
package apikey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tspence/api-key-generator/pkg/errors"
)

// HashKind selects the derivation used to protect a client secret.
type HashKind int

// Values match those used by previously issued keys and must not change.
const (
	HashSHA256     HashKind = 1
	HashSHA512     HashKind = 2
	HashBCrypt     HashKind = 3
	HashPBKDF2100K HashKind = 4
)

var hashKindNames = map[HashKind]string{
	HashSHA256:     "sha256",
	HashSHA512:     "sha512",
	HashBCrypt:     "bcrypt",
	HashPBKDF2100K: "pbkdf2-100k",
}

// String returns the configuration name of the kind, or its number if unknown.
func (k HashKind) String() string {
	if name, ok := hashKindNames[k]; ok {
		return name
	}
	return strconv.Itoa(int(k))
}

// Known reports whether k has a Hasher implementation.
func (k HashKind) Known() bool {
	_, ok := hashKindNames[k]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (k HashKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *HashKind) UnmarshalText(text []byte) error {
	parsed, err := ParseHashKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseHashKind parses a configuration name such as "sha512" or "pbkdf2-100k".
func ParseHashKind(name string) (HashKind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, n := range hashKindNames {
		if n == normalized {
			return kind, nil
		}
	}
	return 0, errors.ErrInvalidConfig(fmt.Sprintf("unknown hash kind %q", name))
}

// Algorithm describes how keys are framed and how their secrets are hashed.
// Several algorithms may be active at once, for example during a migration.
type Algorithm struct {
	Prefix             string   `json:"prefix" mapstructure:"prefix"`
	Suffix             string   `json:"suffix" mapstructure:"suffix"`
	Hash               HashKind `json:"hash" mapstructure:"hash"`
	ClientSecretLength int      `json:"client_secret_length" mapstructure:"client_secret_length"`
	SaltLength         int      `json:"salt_length" mapstructure:"salt_length"`
}

// DefaultAlgorithm returns the algorithm used when a repository configures none.
func DefaultAlgorithm() *Algorithm {
	return &Algorithm{
		Prefix:             "kpb",
		Suffix:             "aei",
		Hash:               HashBCrypt,
		ClientSecretLength: 64,
		SaltLength:         64,
	}
}

// Validate checks that the algorithm can generate and parse keys.
func (a *Algorithm) Validate() error {
	switch {
	case a == nil:
		return errors.ErrInvalidConfig("algorithm is nil")
	case a.Prefix == "":
		return errors.ErrInvalidConfig("algorithm prefix must not be empty")
	case a.Suffix == "":
		return errors.ErrInvalidConfig("algorithm suffix must not be empty")
	case a.ClientSecretLength <= 0:
		return errors.ErrInvalidConfig("client secret length must be positive")
	case a.SaltLength <= 0:
		return errors.ErrInvalidConfig("salt length must be positive")
	case !a.Hash.Known():
		return errors.ErrUnsupportedAlgorithm(a.Hash)
	}
	return nil
}

// String identifies the algorithm in logs and metrics without exposing secrets.
func (a *Algorithm) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Prefix + "/" + a.Hash.String()
}

func orDefault(a *Algorithm) *Algorithm {
	if a == nil {
		return DefaultAlgorithm()
	}
	return a
}
