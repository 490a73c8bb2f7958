package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

func newTestStore(t *testing.T) (*KeyStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewKeyStore(client, "", logger.NewNoopLogger()), s
}

func TestKeyStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	key := &apikey.PersistedKey{
		ID:        uuid.New(),
		Name:      "billing",
		Salt:      "salt",
		Hash:      "hash",
		ExpiresAt: &expires,
		Claims:    []apikey.Claim{{Type: "scope", Value: "read"}},
	}
	require.NoError(t, store.SaveKey(ctx, key))
	assert.True(t, mr.Exists(DefaultKeyPrefix+key.ID.String()))

	got, err := store.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.Equal(t, key.Name, got.Name)
	assert.Equal(t, key.Hash, got.Hash)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.Equal(t, key.Claims, got.Claims)
}

func TestKeyStore_MissAndRevoke(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.GetKey(ctx, uuid.New())
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)

	assert.True(t, errors.IsNotFoundError(store.RevokeKey(ctx, uuid.New())))

	key := &apikey.PersistedKey{ID: uuid.New(), Salt: "s", Hash: "h"}
	require.NoError(t, store.SaveKey(ctx, key))
	require.NoError(t, store.RevokeKey(ctx, key.ID))

	got, err := store.GetKey(ctx, key.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())
}

func TestKeyStore_ServerDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.GetKey(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, apikey.ErrKeyNotFound)
	assert.Error(t, store.Ping(context.Background()))
}

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	conn, err := NewRedisConnection(context.Background(), config.RedisConfig{Address: mr.Addr()}, logger.NewNoopLogger())
	require.NoError(t, err)
	assert.NoError(t, conn.Ping(context.Background()))
	assert.NoError(t, conn.Close())

	mr.Close()
	_, err = NewRedisConnection(context.Background(), config.RedisConfig{Address: mr.Addr()}, logger.NewNoopLogger())
	assert.Error(t, err)
}
