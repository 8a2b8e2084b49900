// Package config provides file- and environment-based configuration for resque.
//
// Values are resolved in order: built-in defaults, the YAML file named by
// RESQUE_CONFIG, a .env file in the working directory, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "RESQUE_CONFIG"

// Config holds all configuration for resque.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Security  SecurityConfig  `yaml:"security"`
	Broker    BrokerConfig    `yaml:"broker" envPrefix:"REDIS_"`
	Outbox    OutboxConfig    `yaml:"outbox" envPrefix:"OUTBOX_"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"OTEL_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
}

// DatabaseConfig configures PostgreSQL. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" env:"URL"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// SecurityConfig holds password hashing and token settings.
type SecurityConfig struct {
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTExpiry  time.Duration `yaml:"jwt_expiry" env:"JWT_EXPIRY"`
}

// BrokerConfig configures the Redis pub/sub broker. An empty address
// disables external publication.
type BrokerConfig struct {
	Addr          string `yaml:"addr" env:"ADDR"`
	ChannelPrefix string `yaml:"channel_prefix" env:"CHANNEL_PREFIX"`
}

// OutboxConfig configures the PostgreSQL outbox and its relay.
type OutboxConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Concurrency  int           `yaml:"concurrency" env:"CONCURRENCY"`
	// Lease is how long a relay may hold an envelope before another relay
	// takes it over.
	Lease time.Duration `yaml:"lease" env:"LEASE"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"API_HOST"`
	Port            int           `yaml:"port" env:"API_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	Endpoint    string  `yaml:"endpoint" env:"EXPORTER_OTLP_ENDPOINT"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
	JSON  bool   `yaml:"json" env:"JSON"`
}

// Default returns the built-in configuration. The JWT secret is left empty.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			BcryptCost: 12,
			JWTExpiry:  24 * time.Hour,
		},
		Broker: BrokerConfig{
			ChannelPrefix: "resque",
		},
		Outbox: OutboxConfig{
			PollInterval: time.Second,
			MaxRetries:   5,
			Concurrency:  2,
			Lease:        5 * time.Minute,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "resque",
			SampleRatio: 1,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not validate required fields, useful for testing.
func LoadWithDefaults() *Config {
	cfg := Default()
	cfg.Security.JWTSecret = "development-secret-key-min-32-chars"
	_ = env.Parse(cfg)
	return cfg
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that required configuration values are set and in range.
func (c *Config) Validate() error {
	var errs []error
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(c.Security.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.Security.BcryptCost))
	}
	if c.Security.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("API_PORT %d is out of range", c.Server.Port))
	}
	if c.Outbox.Enabled {
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("OUTBOX_ENABLED requires DATABASE_URL"))
		}
		if c.Outbox.MaxRetries < 1 || c.Outbox.Concurrency < 1 {
			errs = append(errs, errors.New("OUTBOX_MAX_RETRIES and OUTBOX_CONCURRENCY must be at least 1"))
		}
		if c.Outbox.Lease <= c.Outbox.PollInterval {
			errs = append(errs, errors.New("OUTBOX_LEASE must exceed OUTBOX_POLL_INTERVAL"))
		}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO must be within [0, 1], got %v", c.Telemetry.SampleRatio))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is invalid", l.Level)
	}
	return lvl, nil
}
