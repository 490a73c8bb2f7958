package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	APIKey    APIKeyConfig    `mapstructure:"apikey"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	EnablePprof     bool          `mapstructure:"enable_pprof"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Addr returns host:port for the gRPC listener.
func (c *GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json or console
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"` // OTLP gRPC collector
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverVault    = "vault"
)

// RateLimitConfig limits key-authenticated requests per client address.
// The redis backend shares buckets across replicas and falls back to local
// buckets when redis is unreachable.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend"` // memory or redis
	Requests  int64         `mapstructure:"requests"`
	Window    time.Duration `mapstructure:"window"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type StorageConfig struct {
	Driver     string        `mapstructure:"driver"`
	L1CacheTTL time.Duration `mapstructure:"l1_cache_ttl"` // 0 disables the in-process key cache
}

type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	KeyPrefix    string `mapstructure:"key_prefix"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	PathPrefix string `mapstructure:"path_prefix"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	Topic      string   `mapstructure:"topic"`
	SigningKey string   `mapstructure:"signing_key"` // HMAC key for audit events; empty disables signing

	// ConsumeRevocations evicts keys revoked by other instances from the
	// local L1 cache. Each instance joins its own consumer group.
	ConsumeRevocations bool   `mapstructure:"consume_revocations"`
	ConsumerGroup      string `mapstructure:"consumer_group"`
}

// APIKeyConfig configures key algorithms and the validation cache.
type APIKeyConfig struct {
	Algorithms      map[string]AlgorithmConfig `mapstructure:"algorithms"`
	NewKeyAlgorithm string                     `mapstructure:"new_key_algorithm"`
	Cache           CacheConfig                `mapstructure:"cache"`
}

type AlgorithmConfig struct {
	Prefix             string `mapstructure:"prefix"`
	Suffix             string `mapstructure:"suffix"`
	Hash               string `mapstructure:"hash"`
	ClientSecretLength int    `mapstructure:"client_secret_length"`
	SaltLength         int    `mapstructure:"salt_length"`
}

type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	FreshWindow time.Duration `mapstructure:"fresh_window"`
	StaleWindow time.Duration `mapstructure:"stale_window"`
}

// ToAlgorithm converts the configuration into a validated apikey.Algorithm.
func (c AlgorithmConfig) ToAlgorithm() (*apikey.Algorithm, error) {
	kind, err := apikey.ParseHashKind(c.Hash)
	if err != nil {
		return nil, err
	}
	alg := &apikey.Algorithm{
		Prefix:             c.Prefix,
		Suffix:             c.Suffix,
		Hash:               kind,
		ClientSecretLength: c.ClientSecretLength,
		SaltLength:         c.SaltLength,
	}
	if err := alg.Validate(); err != nil {
		return nil, err
	}
	return alg, nil
}

// AlgorithmNames returns the configured algorithm names in the order
// Algorithms returns them.
func (c *APIKeyConfig) AlgorithmNames() []string {
	names := make([]string, 0, len(c.Algorithms))
	for name := range c.Algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Algorithms returns the configured algorithms ordered by name, and the one
// chosen for new keys. Both are nil when no algorithms are configured, which
// selects apikey.DefaultAlgorithm.
func (c *APIKeyConfig) Algorithms() ([]*apikey.Algorithm, *apikey.Algorithm, error) {
	if len(c.Algorithms) == 0 {
		return nil, nil, nil
	}

	names := c.AlgorithmNames()
	algorithms := make([]*apikey.Algorithm, 0, len(names))
	var newKey *apikey.Algorithm
	for _, name := range names {
		alg, err := c.Algorithms[name].ToAlgorithm()
		if err != nil {
			return nil, nil, fmt.Errorf("apikey.algorithms.%s: %w", name, err)
		}
		algorithms = append(algorithms, alg)
		if strings.EqualFold(name, c.NewKeyAlgorithm) {
			newKey = alg
		}
	}

	if c.NewKeyAlgorithm != "" && newKey == nil {
		return nil, nil, errors.ErrInvalidConfig(
			fmt.Sprintf("apikey.new_key_algorithm %q is not a configured algorithm", c.NewKeyAlgorithm))
	}
	if newKey == nil {
		newKey = algorithms[0]
	}
	return algorithms, newKey, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.ErrInvalidConfig(fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.GRPC.Enabled && (c.GRPC.Port <= 0 || c.GRPC.Port > 65535) {
		return errors.ErrInvalidConfig(fmt.Sprintf("grpc.port %d is out of range", c.GRPC.Port))
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis, DriverPostgres, DriverSQLite, DriverVault:
	default:
		return errors.ErrInvalidConfig(fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == DriverRedis && c.Redis.Address == "" {
		return errors.ErrInvalidConfig("redis.address is required for the redis driver")
	}
	if c.Storage.Driver == DriverVault && c.Vault.Address == "" {
		return errors.ErrInvalidConfig("vault.address is required for the vault driver")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.ErrInvalidConfig("kafka.brokers and kafka.topic are required when kafka is enabled")
	}

	if c.RateLimit.Enabled {
		switch c.RateLimit.Backend {
		case DriverMemory:
		case DriverRedis:
			if c.Redis.Address == "" {
				return errors.ErrInvalidConfig("redis.address is required for the redis rate limit backend")
			}
		default:
			return errors.ErrInvalidConfig(fmt.Sprintf("unknown rate_limit.backend %q", c.RateLimit.Backend))
		}
		if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
			return errors.ErrInvalidConfig("rate_limit.requests and rate_limit.window must be positive")
		}
	}

	if _, _, err := c.APIKey.Algorithms(); err != nil {
		return err
	}

	cache := c.APIKey.Cache
	if cache.Enabled {
		if cache.FreshWindow <= 0 || cache.StaleWindow <= 0 {
			return errors.ErrInvalidConfig("apikey.cache windows must be positive")
		}
		if cache.FreshWindow > cache.StaleWindow {
			return errors.ErrInvalidConfig("apikey.cache.fresh_window must not exceed stale_window")
		}
	}
	return nil
}
