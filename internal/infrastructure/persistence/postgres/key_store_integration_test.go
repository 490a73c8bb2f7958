//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/logger"
)

func newPostgresStore(t *testing.T) *KeyStore {
	t.Helper()
	if os.Getenv("SKIP_DOCKER_TESTS") == "true" {
		t.Skip("Skipping Docker-dependent tests")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("apikeygen"),
		tcpostgres.WithUsername("apikeygen"),
		tcpostgres.WithPassword("apikeygen"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	conn, err := NewPostgresConnection(ctx, config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "apikeygen",
		Password: "apikeygen",
		Database: "apikeygen",
		SSLMode:  "disable",
		MaxConns: 4,
	}, logger.NewNoopLogger())
	require.NoError(t, err)

	store, err := NewKeyStore(ctx, conn, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresKeyStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	require.NoError(t, store.Ping(ctx))

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond)
	key := &apikey.PersistedKey{
		ID:        uuid.New(),
		Name:      "warehouse-sync",
		Salt:      "c2FsdA",
		Hash:      "aGFzaA",
		ExpiresAt: &expires,
		Claims:    []apikey.Claim{{Type: "scope", Value: "sync"}},
	}
	require.NoError(t, store.SaveKey(ctx, key))

	got, err := store.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.Name, got.Name)
	assert.Equal(t, key.Claims, got.Claims)
	assert.True(t, got.ExpiresAt.Equal(expires))

	require.NoError(t, store.RevokeKey(ctx, key.ID))
	got, err = store.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	_, err = store.GetKey(ctx, uuid.New())
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)
}

func TestPostgresKeyStore_ValidatesGeneratedKey(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)

	alg := &apikey.Algorithm{Prefix: "int", Suffix: "pg", Hash: apikey.HashPBKDF2100K, ClientSecretLength: 32, SaltLength: 16}
	repo := &singleAlgorithmRepo{KeyStore: store, alg: alg}
	v := apikey.NewValidator(repo)

	raw, err := v.GenerateKey(ctx, &apikey.PersistedKey{Name: "pg"}, nil)
	require.NoError(t, err)

	res, err := v.TryValidate(ctx, raw)
	require.NoError(t, err)
	assert.True(t, res.Success, res.Message)
	assert.Equal(t, "pg", res.Key.Name)
}

type singleAlgorithmRepo struct {
	*KeyStore
	alg *apikey.Algorithm
}

func (r *singleAlgorithmRepo) SupportedAlgorithms() []*apikey.Algorithm { return []*apikey.Algorithm{r.alg} }
func (r *singleAlgorithmRepo) NewKeyAlgorithm() *apikey.Algorithm       { return r.alg }
