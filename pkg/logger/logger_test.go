package logger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tspence/api-key-generator/pkg/logger"
)

func TestSanitizeValue(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		want  interface{}
	}{
		{"long key is partially masked", "api_key", "kpbABCDEFGHJKLMNOP_secretsecretaei", "kpbA***"},
		{"short secret is fully masked", "salt", "short", "***"},
		{"key match is case insensitive", "Client_Secret", "abcdefghijklmnop", "abcd***"},
		{"identifier is kept", "api_key_id", "4c0b5c53-5b7e-4d1c-9a3e-1f1f1f1f1f1f", "4c0b5c53-5b7e-4d1c-9a3e-1f1f1f1f1f1f"},
		{"non-string credential is redacted", "hash", []byte("digest"), "***REDACTED***"},
		{"empty credential is redacted", "password", "", "***REDACTED***"},
		{"ordinary field is kept", "algorithm", "kpb/bcrypt", "kpb/bcrypt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.SanitizeValue(tt.key, tt.value))
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	assert.Equal(t, logger.Field{Key: "error", Value: "disk full"}, logger.Err(errors.New("disk full")))
	assert.Equal(t, logger.Field{Key: "error", Value: nil}, logger.Err(nil))
	assert.Equal(t, "1.5s", logger.Duration("window", 1500*time.Millisecond).Value)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01T12:00:00Z", logger.Time("at", at).Value)
}

func TestNoopLogger(t *testing.T) {
	log := logger.NewNoopLogger()
	assert.Same(t, log, log.WithComponent("validator"))
	assert.Same(t, log, log.WithFields(logger.String("k", "v")))
	assert.NotPanics(t, func() {
		log.Error(context.Background(), "ignored", errors.New("boom"), logger.Int("n", 1))
	})
}
