package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
log_level = "debug"

[server]
port = 9000

[feed]
batch_max_size = 250
rate_window = "2s"

[[seed_markets]]
token_symbol = "DOGE"
target_market_cap = 123456.0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Server.Port != 9000 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Feed.BatchMaxSize != 250 || cfg.Feed.RateWindow.Duration != 2*time.Second {
		t.Fatalf("feed section = %+v", cfg.Feed)
	}
	// Untouched sections keep defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis defaults lost: %+v", cfg.Redis)
	}
	if len(cfg.Seeds) != 1 || cfg.Seeds[0].TokenSymbol != "DOGE" {
		t.Fatalf("seeds = %+v", cfg.Seeds)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEMEX_SERVER_PORT", "8080")
	t.Setenv("MEMEX_REDIS_ENABLED", "true")
	t.Setenv("MEMEX_REDIS_ADDR", "cache:6379")
	t.Setenv("MEMEX_ORACLE_CACHE_TTL", "45s")
	t.Setenv("MEMEX_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "cache:6379" {
		t.Fatalf("redis = %+v", cfg.Redis)
	}
	if cfg.Oracle.CacheTTL.Duration != 45*time.Second {
		t.Fatalf("cache ttl = %v", cfg.Oracle.CacheTTL.Duration)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Server.Port = -1
	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""
	cfg.Seeds = []SeedConfig{{TokenSymbol: "", TargetMarketCap: 0}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"log_level", "server: port", "s3: bucket", "seed_markets[0]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %s", want, msg)
		}
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != "***" || red.Redis.Password != "***" || red.S3.SecretKey != "***" {
		t.Fatalf("secrets not redacted: %+v", red)
	}
	// The original is untouched.
	if cfg.Postgres.Password != "hunter2" {
		t.Fatal("original mutated")
	}
}
