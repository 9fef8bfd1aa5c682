// Package config provides configuration loading for the sync engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for reportsync
type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SourceConfig holds the upstream REST API settings
type SourceConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PageSize   int           `mapstructure:"page_size"`
	MaxRecords int           `mapstructure:"max_records"`
	MaxOffset  int           `mapstructure:"max_offset"`
}

// DatabaseConfig holds the reporting store settings. URL wins over Postgres.
type DatabaseConfig struct {
	URL      string         `mapstructure:"url"`
	MaxConns int32          `mapstructure:"max_conns"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`
	Views     []string      `mapstructure:"views"`
}

// WatermarkConfig selects the cursor backend
type WatermarkConfig struct {
	Backend   string `mapstructure:"backend"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// RedisConfig holds Redis configuration for the watermark store
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	// SigningKey signs published run summaries when set.
	SigningKey string `mapstructure:"signing_key"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// CORSOrigins lists dashboard origins allowed to read the status API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig protects the manual trigger endpoint. Empty secret disables the check.
type AuthConfig struct {
	TriggerSecret string `mapstructure:"trigger_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Watermark backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultViews are the materialised views refreshed after every run.
var DefaultViews = []string{"tenant_usage_daily", "bundle_usage_summary"}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("source.url", "")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.page_size", 1000)
	v.SetDefault("source.max_records", 50000)
	v.SetDefault("source.max_offset", 1000000)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "reportsync")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "reporting")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("sync.batch_size", 500)
	v.SetDefault("sync.interval", "15m")
	v.SetDefault("sync.views", DefaultViews)

	v.SetDefault("watermark.backend", BackendPostgres)
	v.SetDefault("watermark.key_prefix", "reportsync:watermark:")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 4)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.signing_key", "")

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("auth.trigger_secret", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/reportsync")
	}

	// Environment variables override (REPORTSYNC_SOURCE_URL, etc.)
	v.SetEnvPrefix("REPORTSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings a sync run cannot do without.
func (c *Config) Validate() error {
	var errs []error
	if c.Source.URL == "" {
		errs = append(errs, errors.New("source.url is required"))
	} else if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("source.url %q is not an absolute URL", c.Source.URL))
	}
	if c.Source.APIKey == "" {
		errs = append(errs, errors.New("source.api_key is required"))
	}
	if c.Source.PageSize <= 0 {
		errs = append(errs, errors.New("source.page_size must be positive"))
	}
	if c.Source.MaxRecords <= 0 {
		errs = append(errs, errors.New("source.max_records must be positive"))
	}
	if c.Sync.BatchSize <= 0 {
		errs = append(errs, errors.New("sync.batch_size must be positive"))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	switch c.Watermark.Backend {
	case BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("watermark.backend %q must be %q or %q", c.Watermark.Backend, BackendPostgres, BackendRedis))
	}
	return errors.Join(errs...)
}

// DatabaseURL returns the reporting store connection string.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	p := c.Database.Postgres
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}
