package persistence

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/internal/domain/repository"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/cache"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/memory"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/postgres"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/redis"
	"github.com/tspence/api-key-generator/internal/infrastructure/persistence/vault"
	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// ErrorRecorder counts failed storage operations by driver.
type ErrorRecorder interface {
	RecordStorageError(driver, operation string)
}

// Backend is an opened storage driver.
type Backend struct {
	Keys repository.KeyStore

	// SQL is the gorm handle for the postgres and sqlite drivers, nil otherwise.
	SQL *gorm.DB

	// Redis is the client of the redis driver, nil otherwise.
	Redis goredis.UniversalClient

	// L1 is the in-process cache in front of Keys, nil when disabled.
	L1 *cache.KeyStore
}

// Open connects the store selected by cfg.Storage.Driver. When
// cfg.Storage.L1CacheTTL is positive the store is wrapped in an in-process
// read-through cache.
func Open(ctx context.Context, cfg *config.Config, recorder ErrorRecorder, log logger.Logger) (*Backend, error) {
	var store repository.KeyStore
	var sqlDB *gorm.DB
	var redisClient goredis.UniversalClient

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		store = memory.NewKeyStore()

	case config.DriverRedis:
		conn, err := redis.NewRedisConnection(ctx, cfg.Redis, log)
		if err != nil {
			return nil, err
		}
		store = redis.NewKeyStore(conn.Client, cfg.Redis.KeyPrefix, log)
		redisClient = conn.Client

	case config.DriverPostgres, config.DriverSQLite:
		var conn *postgres.DBConnection
		var err error
		if cfg.Storage.Driver == config.DriverPostgres {
			conn, err = postgres.NewPostgresConnection(ctx, cfg.Database, log)
		} else {
			conn, err = postgres.NewSQLiteConnection(ctx, cfg.Database.SQLitePath, log)
		}
		if err != nil {
			return nil, err
		}
		s, err := postgres.NewKeyStore(ctx, conn, cfg.Database.AutoMigrate)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		store, sqlDB = s, conn.DB

	case config.DriverVault:
		client, err := vault.NewClient(cfg.Vault)
		if err != nil {
			return nil, err
		}
		store = vault.NewKeyStore(client, cfg.Vault.MountPath, cfg.Vault.PathPrefix, log)

	default:
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("unknown storage driver %q", cfg.Storage.Driver))
	}

	if recorder != nil {
		store = &instrumentedStore{KeyStore: store, driver: cfg.Storage.Driver, recorder: recorder}
	}
	var l1 *cache.KeyStore
	if cfg.Storage.L1CacheTTL > 0 {
		l1 = cache.NewKeyStore(store, cfg.Storage.L1CacheTTL)
		store = l1
	}

	log.Info(ctx, "key store ready",
		logger.String("driver", cfg.Storage.Driver),
		logger.Duration("l1_cache_ttl", cfg.Storage.L1CacheTTL),
	)
	return &Backend{Keys: store, SQL: sqlDB, Redis: redisClient, L1: l1}, nil
}

type instrumentedStore struct {
	repository.KeyStore
	driver   string
	recorder ErrorRecorder
}

func (s *instrumentedStore) observe(op string, err error) error {
	if err != nil && !stderrors.Is(err, apikey.ErrKeyNotFound) && !errors.IsNotFoundError(err) {
		s.recorder.RecordStorageError(s.driver, op)
	}
	return err
}

func (s *instrumentedStore) GetKey(ctx context.Context, id uuid.UUID) (*apikey.PersistedKey, error) {
	key, err := s.KeyStore.GetKey(ctx, id)
	return key, s.observe("get", err)
}

func (s *instrumentedStore) SaveKey(ctx context.Context, key *apikey.PersistedKey) error {
	return s.observe("save", s.KeyStore.SaveKey(ctx, key))
}

func (s *instrumentedStore) RevokeKey(ctx context.Context, id uuid.UUID) error {
	return s.observe("revoke", s.KeyStore.RevokeKey(ctx, id))
}
