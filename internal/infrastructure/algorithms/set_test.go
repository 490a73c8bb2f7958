package algorithms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/apikey"
)

func TestSet_DefaultsToNil(t *testing.T) {
	s := NewSet(nil, nil)
	assert.Nil(t, s.Supported())
	assert.Nil(t, s.NewKey())
}

func TestSet_ReloadKeepsCurrentOnError(t *testing.T) {
	cfg := &config.APIKeyConfig{
		NewKeyAlgorithm: "live",
		Algorithms: map[string]config.AlgorithmConfig{
			"live": {Prefix: "sk_", Suffix: "_x", Hash: "sha256", ClientSecretLength: 32, SaltLength: 16},
		},
	}
	s, err := FromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, s.Supported(), 1)
	assert.Equal(t, apikey.HashSHA256, s.NewKey().Hash)

	bad := &config.APIKeyConfig{Algorithms: map[string]config.AlgorithmConfig{
		"broken": {Prefix: "", Suffix: "x", Hash: "sha256", ClientSecretLength: 1, SaltLength: 1},
	}}
	assert.Error(t, s.Reload(bad))
	assert.Equal(t, "sk_", s.NewKey().Prefix)

	cfg.Algorithms["legacy"] = config.AlgorithmConfig{Prefix: "kpb", Suffix: "aei", Hash: "bcrypt", ClientSecretLength: 64, SaltLength: 64}
	require.NoError(t, s.Reload(cfg))
	assert.Len(t, s.Supported(), 2)

	legacy, ok := s.Lookup("LEGACY")
	require.True(t, ok)
	assert.Equal(t, apikey.HashBCrypt, legacy.Hash)
	_, ok = s.Lookup("missing")
	assert.False(t, ok)
}
