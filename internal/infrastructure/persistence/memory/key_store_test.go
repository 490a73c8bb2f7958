package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

func TestKeyStore_SaveGetRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewKeyStore()
	id := uuid.New()

	_, err := store.GetKey(ctx, id)
	assert.ErrorIs(t, err, apikey.ErrKeyNotFound)

	key := &apikey.PersistedKey{ID: id, Name: "ci", Salt: "s", Hash: "h"}
	require.NoError(t, store.SaveKey(ctx, key))
	key.Name = "mutated"

	got, err := store.GetKey(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Name)
	assert.False(t, got.IsRevoked())

	require.NoError(t, store.RevokeKey(ctx, id))
	got, err = store.GetKey(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	err = store.RevokeKey(ctx, uuid.New())
	assert.True(t, errors.IsNotFoundError(err))
	assert.Equal(t, 1, store.Len())
}
