// Package redis stores API key records in Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// RedisConnection manages the Redis client lifecycle.
type RedisConnection struct {
	Client redis.UniversalClient
	config config.RedisConfig
	logger logger.Logger
}

// NewRedisConnection creates the client and verifies connectivity.
func NewRedisConnection(ctx context.Context, cfg config.RedisConfig, log logger.Logger) (*RedisConnection, error) {
	log = log.WithComponent("redis")
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxIdleTime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
	})

	rc := &RedisConnection{Client: client, config: cfg, logger: log}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info(ctx, "Redis connection established",
		logger.String("addr", cfg.Address),
		logger.Int("db", cfg.DB),
		logger.Int("pool_size", cfg.PoolSize),
	)
	return rc, nil
}

// Ping checks Redis server connectivity.
func (rc *RedisConnection) Ping(ctx context.Context) error {
	if err := rc.Client.Ping(ctx).Err(); err != nil {
		rc.logger.Error(ctx, "Redis ping failed", err)
		return err
	}
	return nil
}

// Close closes the client and releases its pool.
func (rc *RedisConnection) Close() error {
	if err := rc.Client.Close(); err != nil {
		rc.logger.Error(context.Background(), "Failed to close Redis connection", err)
		return err
	}
	return nil
}
