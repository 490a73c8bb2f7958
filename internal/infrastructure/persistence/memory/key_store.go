// Package memory provides an in-process key store for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// KeyStore keeps records in a map. Records are cloned on the way in and out.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*apikey.PersistedKey
}

var _ repository.KeyStore = (*KeyStore)(nil)

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[uuid.UUID]*apikey.PersistedKey)}
}

func (s *KeyStore) GetKey(_ context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[id]
	if !ok {
		return nil, apikey.ErrKeyNotFound
	}
	return key.Clone(), nil
}

func (s *KeyStore) SaveKey(_ context.Context, key *apikey.PersistedKey) error {
	if key == nil {
		return errors.ErrInvalidRequest("key is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key.ID] = key.Clone()
	return nil
}

func (s *KeyStore) RevokeKey(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[id]
	if !ok {
		return errors.ErrNotFound("api_key", id.String())
	}
	revoked := true
	key.Revoked = &revoked
	return nil
}

func (s *KeyStore) Ping(context.Context) error { return nil }

func (s *KeyStore) Close() error { return nil }

// Len returns the number of stored records.
func (s *KeyStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
