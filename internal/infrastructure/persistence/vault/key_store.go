// Package vault stores API key records in a HashiCorp Vault KV version 2 engine.
package vault

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"path"

	"github.com/google/uuid"
	vault "github.com/hashicorp/vault/api"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// NewClient creates a token-authenticated Vault client.
func NewClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, err
	}
	client.SetToken(cfg.Token)
	return client, nil
}

// KeyStore keeps one KV secret per key at <mount>/data/<prefix>/<uuid>.
// Record fields map one to one onto secret fields.
type KeyStore struct {
	client *vault.Client
	kv     *vault.KVv2
	prefix string
	logger logger.Logger
}

var _ repository.KeyStore = (*KeyStore)(nil)

// NewKeyStore creates a store on the KV v2 engine mounted at mount.
func NewKeyStore(client *vault.Client, mount, prefix string, log logger.Logger) *KeyStore {
	if mount == "" {
		mount = "secret"
	}
	return &KeyStore{
		client: client,
		kv:     client.KVv2(mount),
		prefix: prefix,
		logger: log.WithComponent("vault.key_store"),
	}
}

func (s *KeyStore) secretPath(id uuid.UUID) string {
	return path.Join(s.prefix, id.String())
}

func (s *KeyStore) read(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, int, error) {
	secret, err := s.kv.Get(ctx, s.secretPath(id))
	if err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return nil, 0, apikey.ErrKeyNotFound
		}
		return nil, 0, fmt.Errorf("vault read %s: %w", id, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, 0, apikey.ErrKeyNotFound
	}

	raw, err := json.Marshal(secret.Data)
	if err != nil {
		return nil, 0, err
	}
	var key apikey.PersistedKey
	if err := json.Unmarshal(raw, &key); err != nil {
		return nil, 0, fmt.Errorf("decode key record %s: %w", id, err)
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	return &key, version, nil
}

func (s *KeyStore) write(ctx context.Context, key *apikey.PersistedKey, opts ...vault.KVOption) error {
	raw, err := json.Marshal(key)
	if err != nil {
		return err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, s.secretPath(key.ID), data, opts...); err != nil {
		return fmt.Errorf("vault write %s: %w", key.ID, err)
	}
	return nil
}

func (s *KeyStore) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	key, _, err := s.read(ctx, id)
	return key, err
}

func (s *KeyStore) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	if key == nil {
		return errors.ErrInvalidRequest("key is nil")
	}
	return s.write(ctx, key)
}

// RevokeKey rewrites the secret with check-and-set on the version it read.
func (s *KeyStore) RevokeKey(ctx context.Context, id uuid.UUID) error {
	key, version, err := s.read(ctx, id)
	if stderrors.Is(err, apikey.ErrKeyNotFound) {
		return errors.ErrNotFound("api_key", id.String())
	}
	if err != nil {
		return err
	}

	revoked := true
	key.Revoked = &revoked
	if err := s.write(ctx, key, vault.WithCheckAndSet(version)); err != nil {
		return err
	}
	s.logger.Info(ctx, "revoked key", logger.String("api_key_id", id.String()))
	return nil
}

func (s *KeyStore) Ping(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return err
	}
	if health.Sealed {
		return stderrors.New("vault is sealed")
	}
	return nil
}

func (s *KeyStore) Close() error { return nil }
