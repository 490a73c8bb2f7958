// Package repository defines the persistence contract for issued API keys.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/tspence/api-key-generator/pkg/apikey"
)

// KeyStore persists issued key records. Every storage driver implements it;
// the apikey.Repository seen by the validator is a KeyStore bound to the
// configured algorithm set.
type KeyStore interface {
	// GetKey returns apikey.ErrKeyNotFound when no record exists.
	GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error)

	// SaveKey inserts or replaces a record.
	SaveKey(ctx context.Context, key *apikey.PersistedKey) error

	// RevokeKey marks a record revoked. A missing record is a not_found error.
	RevokeKey(ctx context.Context, id uuid.UUID) error

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
