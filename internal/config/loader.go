package config

import (
	stderrors "errors"
	"strings"

	"github.com/spf13/viper"

	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. APIKEYGEN_SERVER_PORT.
const EnvPrefix = "APIKEYGEN"

// LoadConfig loads the configuration from file and environment variables.
// With an empty path, apikeygen.yaml is searched in /etc/apikeygen/ and the
// working directory; a missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("apikeygen")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/apikeygen/")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, errors.WrapError(err, constants.ErrCodeInvalidConfig, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WrapError(err, constants.ErrCodeInvalidConfig, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.enable_pprof", false)
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.l1_cache_ttl", constants.DefaultL1KeyCacheTTL.String())

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.key_prefix", "apikey:key:")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "apikeygen")
	v.SetDefault("database.database", "apikeygen")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.sqlite_path", "apikeygen.db")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.path_prefix", "apikeys")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "apikey-audit")
	v.SetDefault("kafka.consume_revocations", true)
	v.SetDefault("kafka.consumer_group", "apikeygen-revocations")

	v.SetDefault("apikey.new_key_algorithm", "")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.backend", DriverMemory)
	v.SetDefault("rate_limit.requests", 120)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.key_prefix", "apikey:ratelimit")

	v.SetDefault("apikey.cache.enabled", true)
	v.SetDefault("apikey.cache.fresh_window", constants.DefaultFreshWindow.String())
	v.SetDefault("apikey.cache.stale_window", constants.DefaultStaleWindow.String())
}
