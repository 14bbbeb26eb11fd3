// Package config loads the service configuration from defaults, an optional
// YAML file and SHIPSTORE_ environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	Server ServerConfig   `mapstructure:"server"`
	DB     DatabaseConfig `mapstructure:"db"`
	Redis  RedisConfig    `mapstructure:"redis"`
	Ledger LedgerConfig   `mapstructure:"ledger"`
	Import ImportConfig   `mapstructure:"import"`
	Log    LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// Path of the SQLite file
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Addr            string        `mapstructure:"addr"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type LedgerConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

type ImportConfig struct {
	MaxRows int `mapstructure:"max_rows"`
	// MaxFileSize bounds an uploaded import file, in bytes
	MaxFileSize int64 `mapstructure:"max_file_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "data/shipstore.db")
	v.SetDefault("db.addr", "localhost:3306")
	v.SetDefault("db.user", "root")
	v.SetDefault("db.name", "shipstore")
	v.SetDefault("db.max_open_conns", 50)
	v.SetDefault("db.max_idle_conns", 25)
	v.SetDefault("db.conn_max_lifetime", "5m")
	v.SetDefault("db.lock_timeout", "5s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)

	v.SetDefault("ledger.max_attempts", 3)

	v.SetDefault("import.max_rows", 5000)
	v.SetDefault("import.max_file_size", 10<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the configuration. An empty path looks for config.yaml in
// ./config and the working directory; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHIPSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid config: server.http_port must be within 1-65535")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid config: server.grpc_port must be within 0-65535")
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("invalid config: db.path is required for sqlite")
		}
	case DriverMySQL:
		if c.DB.DSN == "" && c.DB.Addr == "" {
			return fmt.Errorf("invalid config: db.dsn or db.addr is required for mysql")
		}
	default:
		return fmt.Errorf("invalid config: unknown db.driver %q", c.DB.Driver)
	}
	if c.DB.LockTimeout <= 0 {
		return fmt.Errorf("invalid config: db.lock_timeout must be positive")
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("invalid config: ledger.max_attempts must be at least 1")
	}
	if c.Import.MaxRows < 1 {
		return fmt.Errorf("invalid config: import.max_rows must be at least 1")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("invalid config: redis.addr is required when redis is enabled")
	}
	return nil
}
