package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MEMEX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
//
// An empty path skips the file and uses defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MEMEX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "MEMEX_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MEMEX_SERVER_CORS_ORIGINS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MEMEX_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MEMEX_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "MEMEX_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MEMEX_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEMEX_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEMEX_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEMEX_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEMEX_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEMEX_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MEMEX_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MEMEX_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MEMEX_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEMEX_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEMEX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEMEX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEMEX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MEMEX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MEMEX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MEMEX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MEMEX_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MEMEX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEMEX_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEMEX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MEMEX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEMEX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MEMEX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MEMEX_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "MEMEX_S3_ARCHIVE_INTERVAL")

	// ── Oracle ──
	setStr(&cfg.Oracle.JupiterURL, "MEMEX_ORACLE_JUPITER_URL")
	setStr(&cfg.Oracle.CoinGeckoURL, "MEMEX_ORACLE_COINGECKO_URL")
	setStr(&cfg.Oracle.BinanceURL, "MEMEX_ORACLE_BINANCE_URL")
	setDuration(&cfg.Oracle.CacheTTL, "MEMEX_ORACLE_CACHE_TTL")
	setDuration(&cfg.Oracle.HTTPTimeout, "MEMEX_ORACLE_HTTP_TIMEOUT")
	setDuration(&cfg.Oracle.RefreshInterval, "MEMEX_ORACLE_REFRESH_INTERVAL")

	// ── Watcher ──
	setBool(&cfg.Watcher.Enabled, "MEMEX_WATCHER_ENABLED")
	setStr(&cfg.Watcher.BaseURL, "MEMEX_WATCHER_BASE_URL")
	setDuration(&cfg.Watcher.PollInterval, "MEMEX_WATCHER_POLL_INTERVAL")

	// ── Feed ──
	setDuration(&cfg.Feed.BatchInterval, "MEMEX_FEED_BATCH_INTERVAL")
	setInt(&cfg.Feed.BatchMaxSize, "MEMEX_FEED_BATCH_MAX_SIZE")
	setInt(&cfg.Feed.RateLimit, "MEMEX_FEED_RATE_LIMIT")
	setDuration(&cfg.Feed.RateWindow, "MEMEX_FEED_RATE_WINDOW")
	setDuration(&cfg.Feed.SweepInterval, "MEMEX_FEED_SWEEP_INTERVAL")
	setDuration(&cfg.Feed.IdleTimeout, "MEMEX_FEED_IDLE_TIMEOUT")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MEMEX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
