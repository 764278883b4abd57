package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"govstats/internal/model"
	"govstats/internal/store"
)

const (
	DefaultKeyPrefix = "govstats"
	keyLatest        = "%s:snapshot:latest"
	keyBuilt         = "%s:snapshot:built"
)

type Options struct {
	Addr      string
	DB        int
	Password  string
	KeyPrefix string
	// Retention expires the archived snapshot after this long. Zero keeps it forever.
	Retention time.Duration
}

type Store struct {
	client    *redis.Client
	latestKey string
	builtKey  string
	retention time.Duration
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return NewWithClient(client, opts), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, opts Options) *Store {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client:    client,
		latestKey: fmt.Sprintf(keyLatest, prefix),
		builtKey:  fmt.Sprintf(keyBuilt, prefix),
		retention: opts.Retention,
	}
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SaveSnapshot overwrites the archived snapshot with snap. An older snapshot never
// replaces a newer one.
func (s *Store) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("redis: snapshot id is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode snapshot %s: %w", snap.ID, err)
	}

	built := snap.BuiltAt.UnixNano()
	current, err := s.client.Get(ctx, s.builtKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: read %s: %w", s.builtKey, err)
	}
	if err == nil && current > built {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.latestKey, payload, s.retention)
		pipe.Set(ctx, s.builtKey, built, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// LoadLatest returns the archived snapshot, or store.ErrNoSnapshot.
func (s *Store) LoadLatest(ctx context.Context) (*model.Snapshot, error) {
	payload, err := s.client.Get(ctx, s.latestKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load %s: %w", s.latestKey, err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", s.latestKey, err)
	}
	return &snap, nil
}

var _ store.Store = (*Store)(nil)
