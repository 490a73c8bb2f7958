package apikey

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
)

// ErrKeyNotFound may be returned by Repository.GetKey for a missing key.
// Returning a nil key with a nil error is equivalent.
var ErrKeyNotFound = stderrors.New("apikey: key not found")

// Claim is an application-defined attribute attached to a key.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// PersistedKey is the stored record of an issued key. The validator writes
// ID, Salt and Hash during generation; everything else belongs to the host.
type PersistedKey struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Salt      string     `json:"salt"`
	Hash      string     `json:"hash"`
	Revoked   *bool      `json:"revoked,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Claims    []Claim    `json:"claims,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsRevoked reports whether the key has been explicitly revoked.
func (k *PersistedKey) IsRevoked() bool {
	return k.Revoked != nil && *k.Revoked
}

// IsExpired reports whether the key has an expiration at or before now.
func (k *PersistedKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Clone returns a deep copy, so stores can hand out records without sharing state.
func (k *PersistedKey) Clone() *PersistedKey {
	if k == nil {
		return nil
	}
	c := *k
	if k.Revoked != nil {
		r := *k.Revoked
		c.Revoked = &r
	}
	if k.ExpiresAt != nil {
		e := *k.ExpiresAt
		c.ExpiresAt = &e
	}
	if k.Claims != nil {
		c.Claims = append([]Claim(nil), k.Claims...)
	}
	return &c
}

// Repository is the storage capability the validator depends on.
type Repository interface {
	// GetKey fetches a key by id. A miss is (nil, nil) or ErrKeyNotFound.
	GetKey(ctx context.Context, id uuid.UUID) (*PersistedKey, error)

	// SaveKey persists a newly generated key. Any error is a save failure.
	SaveKey(ctx context.Context, key *PersistedKey) error

	// SupportedAlgorithms lists algorithms accepted for validation.
	// A nil result means only the default algorithm.
	SupportedAlgorithms() []*Algorithm

	// NewKeyAlgorithm returns the algorithm for new keys, or nil for the default.
	NewKeyAlgorithm() *Algorithm
}
