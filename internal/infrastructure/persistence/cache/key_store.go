// Package cache provides an in-process read-through layer over a key store.
package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/pkg/apikey"
)

// KeyStore caches found records for a short TTL. Misses and errors are not
// cached, so a newly issued key is visible on the next lookup.
type KeyStore struct {
	repository.KeyStore
	l1  *gocache.Cache
	ttl time.Duration
}

var _ repository.KeyStore = (*KeyStore)(nil)

// NewKeyStore wraps inner with a cache of the given TTL.
func NewKeyStore(inner repository.KeyStore, ttl time.Duration) *KeyStore {
	return &KeyStore{
		KeyStore: inner,
		l1:       gocache.New(ttl, 2*ttl),
		ttl:      ttl,
	}
}

func (s *KeyStore) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	if v, ok := s.l1.Get(id.String()); ok {
		return v.(*apikey.PersistedKey).Clone(), nil
	}

	key, err := s.KeyStore.GetKey(ctx, id)
	if err != nil || key == nil {
		return key, err
	}
	s.l1.Set(id.String(), key.Clone(), s.ttl)
	return key, nil
}

func (s *KeyStore) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	if err := s.KeyStore.SaveKey(ctx, key); err != nil {
		return err
	}
	s.l1.Set(key.ID.String(), key.Clone(), s.ttl)
	return nil
}

// RevokeKey evicts after the inner store has applied the revocation, so a
// concurrent read cannot re-cache the unrevoked record.
func (s *KeyStore) RevokeKey(ctx context.Context, id uuid.UUID) error {
	if err := s.KeyStore.RevokeKey(ctx, id); err != nil {
		return err
	}
	s.l1.Delete(id.String())
	return nil
}

// Evict drops id from the cache so the next lookup reads the inner store.
func (s *KeyStore) Evict(id uuid.UUID) {
	s.l1.Delete(id.String())
}

// Len returns the number of cached records, including expired ones not yet evicted.
func (s *KeyStore) Len() int {
	return s.l1.ItemCount()
}
