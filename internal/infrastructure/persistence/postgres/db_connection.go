// Package postgres stores API key records through gorm, on PostgreSQL in
// production and SQLite for local runs and tests.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tspence/api-key-generator/internal/config"
	"github.com/tspence/api-key-generator/pkg/logger"
)

// DBConnection owns the gorm handle and, for PostgreSQL, the pgx pool under it.
type DBConnection struct {
	DB     *gorm.DB
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewPostgresConnection opens a pgx pool and hands it to gorm.
func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	log = log.WithComponent("postgres")

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig())
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info(ctx, "PostgreSQL connection pool initialized",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
		logger.String("database", cfg.Database),
		logger.Int("max_conns", int(poolConfig.MaxConns)),
	)
	return &DBConnection{DB: db, pool: pool, logger: log}, nil
}

// NewSQLiteConnection opens a SQLite database at path. ":memory:" is accepted.
func NewSQLiteConnection(ctx context.Context, path string, log logger.Logger) (*DBConnection, error) {
	log = log.WithComponent("sqlite")
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "SQLite database opened", logger.String("path", path))
	return &DBConnection{DB: db, logger: log}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
}

// Ping verifies database connectivity.
func (c *DBConnection) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the database handle and pool.
func (c *DBConnection) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	if c.pool != nil {
		c.pool.Close()
	}
	return err
}
