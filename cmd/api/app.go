package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"govstats/internal/aggregate"
	"govstats/internal/config"
	"govstats/internal/indicators"
	"govstats/internal/ranking"
	"govstats/internal/reference"
	"govstats/internal/store"
	"govstats/internal/store/redis"
	"govstats/internal/store/sqlite"
	"govstats/internal/worldbank"
)

type app struct {
	cfg       config.Config
	reference *reference.Store
	merger    *aggregate.Merger
	cache     *aggregate.Cache
	rankings  *ranking.Engine
	archive   store.Store
}

// newApp wires the service. An invalid reference dataset is fatal.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	ref, err := reference.Load(cfg.StaticDataPath)
	if err != nil {
		if errors.Is(err, reference.ErrInvalidDataset) {
			log.Fatalf("load reference data: %v", err)
		}
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	log.Printf("loaded %d countries from %s", ref.Len(), cfg.StaticDataPath)

	client := worldbank.NewClient(
		worldbank.WithBaseURL(cfg.WorldBank.BaseURL),
		worldbank.WithTimeout(cfg.WorldBank.Timeout),
		worldbank.WithUserAgent(cfg.WorldBank.UserAgent),
		worldbank.WithRateLimit(cfg.WorldBank.RateLimitPerSec, cfg.WorldBank.RateLimitBurst),
	)

	source, err := indicators.NewSource(client, indicators.WithLookupTTL(cfg.LookupTTL))
	if err != nil {
		return nil, fmt.Errorf("init indicator source: %w", err)
	}

	merger, err := aggregate.NewMerger(ref, source, aggregate.WithConcurrency(cfg.FetchConcurrency))
	if err != nil {
		return nil, fmt.Errorf("init merger: %w", err)
	}

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}

	cache, err := aggregate.NewCache(merger,
		aggregate.WithTTL(cfg.CacheTTL),
		aggregate.WithRebuildTimeout(cfg.RebuildTimeout),
		aggregate.WithArchive(archive),
	)
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	rankings, err := ranking.NewEngine(cache, ranking.WithDefaultPageSize(cfg.DefaultPageSize))
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("init ranking engine: %w", err)
	}

	return &app{
		cfg:       cfg,
		reference: ref,
		merger:    merger,
		cache:     cache,
		rankings:  rankings,
		archive:   archive,
	}, nil
}

func openArchive(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.SnapshotStore {
	case config.SnapshotStoreSQLite:
		st, err := sqlite.New(cfg.SQLitePath, cfg.SQLiteKeep)
		if err != nil {
			return nil, fmt.Errorf("open sqlite archive %s: %w", cfg.SQLitePath, err)
		}
		log.Printf("snapshot archive: sqlite %s", cfg.SQLitePath)
		return st, nil
	case config.SnapshotStoreRedis:
		st, err := redis.New(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis archive: %w", err)
		}
		log.Printf("snapshot archive: redis %s db=%d", cfg.RedisAddr, cfg.RedisDB)
		return st, nil
	default:
		return &store.NopStore{}, nil
	}
}

func (a *app) Close() error {
	return a.archive.Close()
}
