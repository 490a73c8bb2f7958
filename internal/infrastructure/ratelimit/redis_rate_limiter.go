package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// RedisRateLimiter shares token buckets between replicas through redis.
type RedisRateLimiter struct {
	client       redis.UniversalClient
	logger       logger.Logger
	config       *RateLimiterConfig
	localBuckets *TokenBucketPool // used while redis is unreachable
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Limit               int64
	Window              time.Duration
	EnableLocalFallback bool
	KeyPrefix           string
}

// DefaultRateLimiterConfig returns default rate limiter configuration.
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Limit:               120,
		Window:              time.Minute,
		EnableLocalFallback: true,
		KeyPrefix:           "apikey:ratelimit",
	}
}

// The bucket is a hash of tokens and last_refill (ms). Returns
// {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
local tokens = tonumber(bucket[1]) or capacity
local last_refill = tonumber(bucket[2]) or now

local elapsed = math.max(0, now - last_refill)
tokens = math.min(tokens + elapsed * rate / 1000, capacity)

local allowed = 0
local retry_ms = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
else
    retry_ms = math.ceil((1 - tokens) / rate * 1000)
end

redis.call('HSET', key, 'tokens', tostring(tokens), 'last_refill', tostring(now))
redis.call('PEXPIRE', key, math.ceil(capacity / rate * 1000) + 60000)

return {allowed, math.floor(tokens), retry_ms}
`)

// NewRedisRateLimiter creates a new Redis-based rate limiter.
func NewRedisRateLimiter(client redis.UniversalClient, config *RateLimiterConfig, log logger.Logger) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, errors.ErrInvalidConfig("redis client is required for the redis rate limiter")
	}
	if config == nil {
		config = DefaultRateLimiterConfig()
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}

	rl := &RedisRateLimiter{
		client: client,
		logger: log.WithComponent("RedisRateLimiter"),
		config: config,
	}
	if config.EnableLocalFallback {
		rl.localBuckets = NewTokenBucketPool(TokenBucketConfig{
			Capacity: float64(config.Limit),
			Rate:     rl.rate(),
		})
	}

	rl.logger.Info(context.Background(), "Redis rate limiter initialized",
		logger.Int64("limit", config.Limit),
		logger.Duration("window", config.Window),
		logger.Bool("local_fallback", config.EnableLocalFallback),
	)
	return rl, nil
}

func (rl *RedisRateLimiter) rate() float64 {
	return float64(rl.config.Limit) / rl.config.Window.Seconds()
}

// Allow consumes one token from key's bucket.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	redisKey := rl.buildKey(key)
	values, err := tokenBucketScript.Run(ctx, rl.client, []string{redisKey},
		rl.config.Limit, rl.rate(), time.Now().UnixMilli()).Int64Slice()
	if err == nil && len(values) != 3 {
		err = fmt.Errorf("unexpected rate limit script result %v", values)
	}
	if err != nil {
		if rl.localBuckets != nil {
			rl.logger.Warn(ctx, "rate limiter falling back to local buckets", logger.Err(err))
			return rl.localBuckets.GetOrCreate(redisKey).take(rl.config.Limit), nil
		}
		return nil, errors.WrapError(err, constants.ErrCodeInternal, "rate limiter unavailable")
	}

	return &Result{
		Allowed:    values[0] == 1,
		Limit:      rl.config.Limit,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// Reset clears key's bucket.
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	redisKey := rl.buildKey(key)
	if rl.localBuckets != nil {
		rl.localBuckets.Remove(redisKey)
	}
	if err := rl.client.Del(ctx, redisKey).Err(); err != nil {
		return errors.ErrRepository("rate limit reset", err)
	}
	return nil
}

func (rl *RedisRateLimiter) buildKey(key string) string {
	return fmt.Sprintf("%s:%s", rl.config.KeyPrefix, key)
}

// Close releases local state. The redis client is owned by the caller.
func (rl *RedisRateLimiter) Close() error {
	if rl.localBuckets != nil {
		rl.localBuckets.Clear()
	}
	return nil
}
