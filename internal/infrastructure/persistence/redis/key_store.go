package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// DefaultKeyPrefix namespaces key records.
const DefaultKeyPrefix = "apikey:key:"

// KeyStore keeps each record as a JSON string under <prefix><uuid>.
type KeyStore struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

var _ repository.KeyStore = (*KeyStore)(nil)

// NewKeyStore creates a store over client. An empty prefix uses DefaultKeyPrefix.
func NewKeyStore(client redis.UniversalClient, prefix string, log logger.Logger) *KeyStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &KeyStore{client: client, prefix: prefix, logger: log.WithComponent("redis.key_store")}
}

func (s *KeyStore) key(id uuid.UUID) string {
	return s.prefix + id.String()
}

func (s *KeyStore) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, apikey.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	var key apikey.PersistedKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("decode key record %s: %w", id, err)
	}
	return &key, nil
}

func (s *KeyStore) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	if key == nil {
		return errors.ErrInvalidRequest("key is nil")
	}
	data, err := json.Marshal(key)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key.ID, err)
	}
	s.logger.Debug(ctx, "stored key record", logger.String("api_key_id", key.ID.String()))
	return nil
}

// RevokeKey updates the record under WATCH so a concurrent write is not lost.
func (s *KeyStore) RevokeKey(ctx context.Context, id uuid.UUID) error {
	k := s.key(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return errors.ErrNotFound("api_key", id.String())
		}
		if err != nil {
			return err
		}

		var key apikey.PersistedKey
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		revoked := true
		key.Revoked = &revoked
		updated, err := json.Marshal(&key)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, k)
}

func (s *KeyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *KeyStore) Close() error {
	return s.client.Close()
}
