package service

import (
	"context"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
)

// ContextWithKey stores an authenticated key in ctx.
func ContextWithKey(ctx context.Context, key *apikey.PersistedKey) context.Context {
	ctx = context.WithValue(ctx, constants.ContextKeyPersistedKey, key)
	return context.WithValue(ctx, constants.ContextKeyKeyID, key.ID.String())
}

// KeyFromContext returns the key authenticated for this request, or nil.
func KeyFromContext(ctx context.Context) *apikey.PersistedKey {
	key, _ := ctx.Value(constants.ContextKeyPersistedKey).(*apikey.PersistedKey)
	return key
}
