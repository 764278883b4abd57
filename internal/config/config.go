package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Snapshot archive backends.
const (
	SnapshotStoreNone   = "none"
	SnapshotStoreSQLite = "sqlite"
	SnapshotStoreRedis  = "redis"
)

// Config captures runtime configuration for the govstats service.
type Config struct {
	ListenAddr       string
	StaticDataPath   string
	CacheTTL         time.Duration
	LookupTTL        time.Duration
	RebuildTimeout   time.Duration
	FetchConcurrency int
	DefaultPageSize  int

	SnapshotStore string
	SQLitePath    string
	SQLiteKeep    int
	RedisAddr     string
	RedisDB       int
	RedisPassword string

	WorldBank WorldBank
}

// WorldBank configures the upstream indicators client.
type WorldBank struct {
	BaseURL         string
	Timeout         time.Duration
	RateLimitPerSec float64
	RateLimitBurst  int
	UserAgent       string
}

// FromEnv creates a configuration instance sourced from environment variables.
func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:       getEnv("GOVSTATS_LISTEN_ADDR", ":8080"),
		StaticDataPath:   getEnv("GOVSTATS_STATIC_DATA", "data/countries.json"),
		CacheTTL:         5 * time.Minute,
		RebuildTimeout:   time.Minute,
		FetchConcurrency: 16,
		DefaultPageSize:  20,
		SnapshotStore:    strings.ToLower(getEnv("GOVSTATS_SNAPSHOT_STORE", SnapshotStoreNone)),
		SQLitePath:       getEnv("GOVSTATS_SQLITE_PATH", "govstats.db"),
		SQLiteKeep:       10,
		RedisAddr:        getEnv("GOVSTATS_REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("GOVSTATS_REDIS_PASSWORD", ""),
		WorldBank: WorldBank{
			BaseURL:         getEnv("WB_BASE_URL", "https://api.worldbank.org/v2"),
			Timeout:         20 * time.Second,
			RateLimitPerSec: 20,
			RateLimitBurst:  10,
			UserAgent:       getEnv("WB_USER_AGENT", "govstats/0.1"),
		},
	}

	if ttl := os.Getenv("GOVSTATS_CACHE_TTL"); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_CACHE_TTL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("parse GOVSTATS_CACHE_TTL: must be positive, got %s", ttl)
		}
		cfg.CacheTTL = parsed
	}

	cfg.LookupTTL = cfg.CacheTTL / 2
	if ttl := os.Getenv("GOVSTATS_LOOKUP_TTL"); ttl != "" {
		parsed, err := time.ParseDuration(ttl)
		if err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_LOOKUP_TTL: %w", err)
		}
		cfg.LookupTTL = parsed
	}

	if timeout := os.Getenv("GOVSTATS_REBUILD_TIMEOUT"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_REBUILD_TIMEOUT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("parse GOVSTATS_REBUILD_TIMEOUT: must be positive, got %s", timeout)
		}
		cfg.RebuildTimeout = parsed
	}

	if n := os.Getenv("GOVSTATS_FETCH_CONCURRENCY"); n != "" {
		if _, err := fmt.Sscanf(n, "%d", &cfg.FetchConcurrency); err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_FETCH_CONCURRENCY: %w", err)
		}
	}

	if size := os.Getenv("GOVSTATS_DEFAULT_PAGE_SIZE"); size != "" {
		if _, err := fmt.Sscanf(size, "%d", &cfg.DefaultPageSize); err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_DEFAULT_PAGE_SIZE: %w", err)
		}
	}

	if keep := os.Getenv("GOVSTATS_SQLITE_KEEP"); keep != "" {
		if _, err := fmt.Sscanf(keep, "%d", &cfg.SQLiteKeep); err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_SQLITE_KEEP: %w", err)
		}
	}

	if db := os.Getenv("GOVSTATS_REDIS_DB"); db != "" {
		if _, err := fmt.Sscanf(db, "%d", &cfg.RedisDB); err != nil {
			return Config{}, fmt.Errorf("parse GOVSTATS_REDIS_DB: %w", err)
		}
	}

	if timeout := os.Getenv("WB_TIMEOUT_SECONDS"); timeout != "" {
		var seconds int
		if _, err := fmt.Sscanf(timeout, "%d", &seconds); err != nil {
			return Config{}, fmt.Errorf("parse WB_TIMEOUT_SECONDS: %w", err)
		}
		cfg.WorldBank.Timeout = time.Duration(seconds) * time.Second
	}

	if perSec := os.Getenv("WB_RATE_LIMIT_PER_SEC"); perSec != "" {
		if _, err := fmt.Sscanf(perSec, "%f", &cfg.WorldBank.RateLimitPerSec); err != nil {
			return Config{}, fmt.Errorf("parse WB_RATE_LIMIT_PER_SEC: %w", err)
		}
	}

	if burst := os.Getenv("WB_RATE_LIMIT_BURST"); burst != "" {
		if _, err := fmt.Sscanf(burst, "%d", &cfg.WorldBank.RateLimitBurst); err != nil {
			return Config{}, fmt.Errorf("parse WB_RATE_LIMIT_BURST: %w", err)
		}
	}

	switch cfg.SnapshotStore {
	case SnapshotStoreNone, SnapshotStoreSQLite, SnapshotStoreRedis:
	default:
		return Config{}, fmt.Errorf("parse GOVSTATS_SNAPSHOT_STORE: unknown backend %q", cfg.SnapshotStore)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
