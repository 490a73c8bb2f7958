// Package ratelimit limits how often a client may present API keys.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// Result is the outcome of one limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter meters requests per client key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
	Reset(ctx context.Context, key string) error
	Close() error
}

// New builds the limiter selected by cfg. client is required for the redis
// backend and ignored otherwise.
func New(cfg config.RateLimitConfig, client redis.UniversalClient, log logger.Logger) (Limiter, error) {
	switch cfg.Backend {
	case config.DriverMemory, "":
		return NewLocalLimiter(cfg.Requests, cfg.Window), nil
	case config.DriverRedis:
		return NewRedisRateLimiter(client, &RateLimiterConfig{
			Limit:               cfg.Requests,
			Window:              cfg.Window,
			EnableLocalFallback: true,
			KeyPrefix:           cfg.KeyPrefix,
		}, log)
	default:
		return nil, errors.ErrInvalidConfig("unknown rate limit backend " + cfg.Backend)
	}
}

// LocalLimiter keeps one token bucket per key in process memory.
type LocalLimiter struct {
	pool  *TokenBucketPool
	limit int64
}

// NewLocalLimiter allows limit requests per window for each key.
func NewLocalLimiter(limit int64, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		pool: NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(limit),
			Rate:     float64(limit) / window.Seconds(),
		}),
		limit: limit,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	return l.pool.GetOrCreate(key).take(l.limit), nil
}

func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	l.pool.Remove(key)
	return nil
}

func (l *LocalLimiter) Close() error {
	l.pool.Clear()
	return nil
}
