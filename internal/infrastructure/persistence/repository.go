// Package persistence binds key stores to the validator and selects the
// storage driver from configuration.
package persistence

import (
	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/internal/infrastructure/algorithms"
	"github.com/tspence/api-key-generator/pkg/apikey"
)

// KeyRepository adapts a KeyStore and an algorithm Set to apikey.Repository.
type KeyRepository struct {
	repository.KeyStore
	algorithms *algorithms.Set
}

var _ apikey.Repository = (*KeyRepository)(nil)

// NewKeyRepository binds store to algs.
func NewKeyRepository(store repository.KeyStore, algs *algorithms.Set) *KeyRepository {
	return &KeyRepository{KeyStore: store, algorithms: algs}
}

func (r *KeyRepository) SupportedAlgorithms() []*apikey.Algorithm {
	return r.algorithms.Supported()
}

func (r *KeyRepository) NewKeyAlgorithm() *apikey.Algorithm {
	return r.algorithms.NewKey()
}
