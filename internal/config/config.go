// Package config defines the top-level configuration for the exchange daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MEMEX_* environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Oracle   OracleConfig   `toml:"oracle"`
	Watcher  WatcherConfig  `toml:"watcher"`
	Feed     FeedConfig     `toml:"feed"`
	Seeds    []SeedConfig   `toml:"seed_markets"`
	LogLevel string         `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// PostgresConfig holds PostgreSQL connection parameters. The journal is
// optional; with Enabled false the exchange runs purely in memory.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the trade
// archiver.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// OracleConfig holds SOL price feed parameters. Empty URLs select the
// production endpoints.
type OracleConfig struct {
	JupiterURL      string   `toml:"jupiter_url"`
	CoinGeckoURL    string   `toml:"coingecko_url"`
	BinanceURL      string   `toml:"binance_url"`
	CacheTTL        duration `toml:"cache_ttl"`
	HTTPTimeout     duration `toml:"http_timeout"`
	RefreshInterval duration `toml:"refresh_interval"`
}

// WatcherConfig holds market-cap watcher parameters.
type WatcherConfig struct {
	Enabled      bool     `toml:"enabled"`
	BaseURL      string   `toml:"base_url"`
	PollInterval duration `toml:"poll_interval"`
}

// FeedConfig tunes the WebSocket connection manager: how often queued
// messages are flushed, per-connection rate limiting, and idle sweeping.
type FeedConfig struct {
	BatchInterval duration `toml:"batch_interval"`
	BatchMaxSize  int      `toml:"batch_max_size"`
	RateLimit     int      `toml:"rate_limit"`
	RateWindow    duration `toml:"rate_window"`
	SweepInterval duration `toml:"sweep_interval"`
	IdleTimeout   duration `toml:"idle_timeout"`
}

// SeedConfig describes one market created by POST /markets/initialize.
type SeedConfig struct {
	TokenSymbol     string  `toml:"token_symbol"`
	TokenAddress    string  `toml:"token_address"`
	TargetMarketCap float64 `toml:"target_market_cap"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "mememarket",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:         false,
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "mememarket-archive",
			UseSSL:          false,
			ForcePathStyle:  true,
			ArchiveInterval: duration{5 * time.Minute},
		},
		Oracle: OracleConfig{
			CacheTTL:        duration{30 * time.Second},
			HTTPTimeout:     duration{5 * time.Second},
			RefreshInterval: duration{30 * time.Second},
		},
		Watcher: WatcherConfig{
			Enabled:      true,
			PollInterval: duration{30 * time.Second},
		},
		Feed: FeedConfig{
			BatchInterval: duration{100 * time.Millisecond},
			BatchMaxSize:  100,
			RateLimit:     10,
			RateWindow:    duration{time.Second},
			SweepInterval: duration{30 * time.Second},
			IdleTimeout:   duration{5 * time.Minute},
		},
		Seeds: []SeedConfig{
			{TokenSymbol: "WIF", TargetMarketCap: 5_000_000},
			{TokenSymbol: "BONK", TargetMarketCap: 10_000_000},
			{TokenSymbol: "PEPE", TargetMarketCap: 8_000_000},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when redis is enabled")
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when the archiver is enabled")
		}
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, "s3: access_key and secret_key are required when the archiver is enabled")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be positive")
		}
	}

	if c.Oracle.CacheTTL.Duration < 0 {
		errs = append(errs, "oracle: cache_ttl must not be negative")
	}
	if c.Oracle.RefreshInterval.Duration <= 0 {
		errs = append(errs, "oracle: refresh_interval must be positive")
	}

	if c.Watcher.Enabled && c.Watcher.PollInterval.Duration <= 0 {
		errs = append(errs, "watcher: poll_interval must be positive")
	}

	if c.Feed.BatchMaxSize < 1 {
		errs = append(errs, "feed: batch_max_size must be >= 1")
	}
	if c.Feed.RateLimit < 1 {
		errs = append(errs, "feed: rate_limit must be >= 1")
	}

	for i, s := range c.Seeds {
		if strings.TrimSpace(s.TokenSymbol) == "" {
			errs = append(errs, fmt.Sprintf("seed_markets[%d]: token_symbol must not be empty", i))
		}
		if s.TargetMarketCap <= 0 {
			errs = append(errs, fmt.Sprintf("seed_markets[%d]: target_market_cap must be positive", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
