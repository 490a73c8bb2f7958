package apikey_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/tspence/api-key-generator/pkg/apikey"
)

// testRepository is a map-backed apikey.Repository.
type testRepository struct {
	mu         sync.RWMutex
	keys       map[uuid.UUID]*apikey.PersistedKey
	algorithms []*apikey.Algorithm
	newKeyAlg  *apikey.Algorithm
	gets       atomic.Int64
}

func newTestRepository(algorithms ...*apikey.Algorithm) *testRepository {
	r := &testRepository{keys: make(map[uuid.UUID]*apikey.PersistedKey)}
	if len(algorithms) > 0 {
		r.algorithms = algorithms
		r.newKeyAlg = algorithms[0]
	}
	return r
}

func (r *testRepository) GetKey(_ context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	r.gets.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.keys[id].Clone(), nil
}

func (r *testRepository) SaveKey(_ context.Context, key *apikey.PersistedKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.ID] = key.Clone()
	return nil
}

func (r *testRepository) SupportedAlgorithms() []*apikey.Algorithm {
	return r.algorithms
}

func (r *testRepository) NewKeyAlgorithm() *apikey.Algorithm {
	return r.newKeyAlg
}

func (r *testRepository) revoke(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, id)
}

// mockRepository is a testify mock of apikey.Repository.
type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	args := m.Called(ctx, id)
	key, _ := args.Get(0).(*apikey.PersistedKey)
	return key, args.Error(1)
}

func (m *mockRepository) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *mockRepository) SupportedAlgorithms() []*apikey.Algorithm {
	args := m.Called()
	algs, _ := args.Get(0).([]*apikey.Algorithm)
	return algs
}

func (m *mockRepository) NewKeyAlgorithm() *apikey.Algorithm {
	args := m.Called()
	alg, _ := args.Get(0).(*apikey.Algorithm)
	return alg
}

func shaAlgorithm() *apikey.Algorithm {
	return &apikey.Algorithm{
		Prefix:             "key",
		Suffix:             "yek",
		Hash:               apikey.HashSHA512,
		ClientSecretLength: 64,
		SaltLength:         64,
	}
}
