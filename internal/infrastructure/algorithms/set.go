// Package algorithms holds the active key algorithm configuration.
package algorithms

import (
	"strings"
	"sync/atomic"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/apikey"
)

type snapshot struct {
	supported []*apikey.Algorithm
	newKey    *apikey.Algorithm
	byName    map[string]*apikey.Algorithm
}

// Set is the algorithm configuration shared by the validator and the
// issuing service. It is replaced wholesale on configuration reload, so a
// validation in flight always sees one consistent list.
type Set struct {
	current atomic.Pointer[snapshot]
}

// NewSet creates a Set. A nil list selects apikey.DefaultAlgorithm.
func NewSet(supported []*apikey.Algorithm, newKey *apikey.Algorithm) *Set {
	s := &Set{}
	s.Replace(supported, newKey, nil)
	return s
}

// FromConfig builds a Set from the apikey configuration section.
func FromConfig(cfg *config.APIKeyConfig) (*Set, error) {
	s := &Set{}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace swaps in a new configuration. names, if given, parallels supported.
func (s *Set) Replace(supported []*apikey.Algorithm, newKey *apikey.Algorithm, names []string) {
	snap := &snapshot{
		supported: append([]*apikey.Algorithm(nil), supported...),
		newKey:    newKey,
		byName:    make(map[string]*apikey.Algorithm, len(names)),
	}
	for i, name := range names {
		if i < len(supported) {
			snap.byName[strings.ToLower(name)] = supported[i]
		}
	}
	s.current.Store(snap)
}

// Reload applies a reloaded configuration, keeping the current set if the
// new one is invalid.
func (s *Set) Reload(cfg *config.APIKeyConfig) error {
	supported, newKey, err := cfg.Algorithms()
	if err != nil {
		return err
	}
	s.Replace(supported, newKey, cfg.AlgorithmNames())
	return nil
}

// Supported returns the algorithms accepted for validation, or nil for the default only.
func (s *Set) Supported() []*apikey.Algorithm {
	snap := s.current.Load()
	if len(snap.supported) == 0 {
		return nil
	}
	return snap.supported
}

// NewKey returns the algorithm used for newly issued keys, or nil for the default.
func (s *Set) NewKey() *apikey.Algorithm {
	return s.current.Load().newKey
}

// Lookup finds a configured algorithm by name.
func (s *Set) Lookup(name string) (*apikey.Algorithm, bool) {
	alg, ok := s.current.Load().byName[strings.ToLower(name)]
	return alg, ok
}
