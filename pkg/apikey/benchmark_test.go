package apikey_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/tspence/api-key-generator/pkg/apikey"
)

var benchmarkKinds = []apikey.HashKind{
	apikey.HashSHA256,
	apikey.HashSHA512,
	apikey.HashBCrypt,
	apikey.HashPBKDF2100K,
}

func benchmarkAlgorithm(kind apikey.HashKind) *apikey.Algorithm {
	return &apikey.Algorithm{
		Prefix:             "key",
		Suffix:             "yek",
		Hash:               kind,
		ClientSecretLength: 64,
		SaltLength:         64,
	}
}

// issueBenchmarkKey returns a validator over a fresh repository and one key it accepts.
func issueBenchmarkKey(b *testing.B, alg *apikey.Algorithm) (*apikey.Validator, string) {
	b.Helper()
	validator := apikey.NewValidator(newTestRepository(alg))
	raw, err := validator.GenerateKey(context.Background(), &apikey.PersistedKey{Name: "bench"}, alg)
	if err != nil {
		b.Fatal(err)
	}
	return validator, raw
}

func BenchmarkValidator_Generate(b *testing.B) {
	ctx := context.Background()
	for _, kind := range benchmarkKinds {
		b.Run(kind.String(), func(b *testing.B) {
			alg := benchmarkAlgorithm(kind)
			validator := apikey.NewValidator(newTestRepository(alg))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				key := &apikey.PersistedKey{Name: fmt.Sprintf("Test Key %d", i)}
				raw, err := validator.GenerateKey(ctx, key, alg)
				if err != nil || raw == "" {
					b.Fatalf("generate failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkValidator_Validate(b *testing.B) {
	ctx := context.Background()
	for _, kind := range benchmarkKinds {
		b.Run(kind.String(), func(b *testing.B) {
			validator, raw := issueBenchmarkKey(b, benchmarkAlgorithm(kind))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := validator.TryValidate(ctx, raw)
				if err != nil || !result.Success {
					b.Fatalf("validate failed: %v", err)
				}
			}
		})
	}
}

// The clock never advances, so every call after the first is a fresh hit.
func BenchmarkCachedValidator_FreshHit(b *testing.B) {
	ctx := context.Background()
	for _, kind := range benchmarkKinds {
		b.Run(kind.String(), func(b *testing.B) {
			validator, raw := issueBenchmarkKey(b, benchmarkAlgorithm(kind))
			cached := apikey.NewCachedValidator(validator, newFakeClock(), freshWindow, staleWindow)
			if result, err := cached.TryValidate(ctx, raw, remoteAddr); err != nil || !result.Success {
				b.Fatalf("warm-up failed: %v", err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				result, err := cached.TryValidate(ctx, raw, remoteAddr)
				if err != nil || !result.Success {
					b.Fatalf("cached validate failed: %v", err)
				}
			}
		})
	}
}
