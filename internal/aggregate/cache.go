package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"govstats/internal/model"
	"govstats/internal/store"
)

const (
	// DefaultTTL is how long a merged snapshot is served before a rebuild.
	DefaultTTL = 5 * time.Minute
	// DefaultRebuildTimeout bounds a single rebuild regardless of the caller's deadline.
	DefaultRebuildTimeout = time.Minute

	rebuildKey     = "snapshot"
	archiveTimeout = 10 * time.Second
)

// Builder produces the merged country list for a new snapshot.
type Builder interface {
	MergeAll(ctx context.Context) (MergeResult, error)
}

// CacheStats counts cache activity since start.
type CacheStats struct {
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Rebuilds       int64 `json:"rebuilds"`
	FailedRebuilds int64 `json:"failedRebuilds"`
}

// Cache holds the current all-countries snapshot. A snapshot is Fresh until its
// expiry; the first read after that rebuilds it synchronously. Concurrent stale reads
// wait on the same rebuild instead of starting their own.
type Cache struct {
	builder        Builder
	ttl            time.Duration
	rebuildTimeout time.Duration
	clock          clockwork.Clock
	archive        store.Store
	logger         *log.Logger

	current atomic.Pointer[model.Snapshot]
	group   singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	rebuilds atomic.Int64
	failures atomic.Int64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the snapshot lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRebuildTimeout bounds how long one rebuild may run.
func WithRebuildTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.rebuildTimeout = d
		}
	}
}

// WithClock sets the clock used for expiry.
func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithArchive persists every successful snapshot to st.
func WithArchive(st store.Store) CacheOption {
	return func(c *Cache) {
		if st != nil {
			c.archive = st
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache constructs an empty cache. Nothing is fetched until the first read.
func NewCache(builder Builder, opts ...CacheOption) (*Cache, error) {
	if builder == nil {
		return nil, errors.New("cache requires a builder")
	}
	c := &Cache{
		builder:        builder,
		ttl:            DefaultTTL,
		rebuildTimeout: DefaultRebuildTimeout,
		clock:          clockwork.NewRealClock(),
		archive:        &store.NopStore{},
		logger:         log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured snapshot lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Snapshot returns the current snapshot, rebuilding it first when it is missing or
// expired. When a rebuild fails the previous snapshot is served and its expiry is left
// untouched, so the next read retries. Without a previous snapshot the error wraps
// ErrAggregationFailed. The rebuild is shared by every waiting caller, so it is not
// cancelled when the caller that started it goes away.
func (c *Cache) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	if snap := c.current.Load(); snap.Fresh(c.clock.Now()) {
		c.hits.Add(1)
		return snap, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(rebuildKey, func() (any, error) {
		if snap := c.current.Load(); snap.Fresh(c.clock.Now()) {
			return snap, nil
		}
		rebuildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rebuildTimeout)
		defer cancel()
		return c.rebuild(rebuildCtx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Snapshot), nil
}

func (c *Cache) rebuild(ctx context.Context) (*model.Snapshot, error) {
	started := c.clock.Now()
	c.logger.Printf("aggregate: rebuilding snapshot")

	result, err := c.builder.MergeAll(ctx)
	if err != nil {
		c.failures.Add(1)
		if old := c.current.Load(); old != nil {
			c.logger.Printf("aggregate: rebuild failed, serving stale snapshot %s built %s: %v",
				old.ID, old.BuiltAt.Format(time.RFC3339), err)
			return old, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrAggregationFailed, err)
	}

	now := c.clock.Now()
	snap := &model.Snapshot{
		ID:        uuid.NewString(),
		Countries: result.Countries,
		BuiltAt:   now.UTC(),
		ExpiresAt: now.Add(c.ttl).UTC(),
		Degraded:  len(result.Degraded),
	}
	c.current.Store(snap)
	c.rebuilds.Add(1)

	c.logger.Printf("aggregate: snapshot %s ready: countries=%d degraded=%d took=%s",
		snap.ID, len(snap.Countries), snap.Degraded, now.Sub(started))

	// The rebuild deadline may already have passed when a slow country was degraded.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := c.archive.SaveSnapshot(saveCtx, snap); err != nil {
		c.logger.Printf("aggregate: archive snapshot %s: %v", snap.ID, err)
	}
	return snap, nil
}

// Invalidate marks the current snapshot as expired. It stays available as the
// fallback if the next rebuild fails.
func (c *Cache) Invalidate() {
	for {
		old := c.current.Load()
		if old == nil {
			return
		}
		expired := *old
		expired.ExpiresAt = time.Time{}
		if c.current.CompareAndSwap(old, &expired) {
			c.logger.Printf("aggregate: snapshot %s invalidated", old.ID)
			return
		}
	}
}

// Hydrate loads the newest archived snapshot as an already-expired fallback. It does
// nothing when the cache already holds a snapshot.
func (c *Cache) Hydrate(ctx context.Context) (bool, error) {
	snap, err := c.archive.LoadLatest(ctx)
	if errors.Is(err, store.ErrNoSnapshot) || (err == nil && snap == nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("hydrate cache: %w", err)
	}

	stale := *snap
	stale.ExpiresAt = time.Time{}
	if !c.current.CompareAndSwap(nil, &stale) {
		return false, nil
	}
	c.logger.Printf("aggregate: hydrated snapshot %s (%d countries, built %s)",
		stale.ID, len(stale.Countries), stale.BuiltAt.Format(time.RFC3339))
	return true, nil
}

// Fresh reports whether the current snapshot would be served without a rebuild.
func (c *Cache) Fresh() bool {
	return c.current.Load().Fresh(c.clock.Now())
}

// Peek returns the current snapshot without triggering a rebuild. It may be nil.
func (c *Cache) Peek() *model.Snapshot {
	return c.current.Load()
}

// Stats returns the activity counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Rebuilds:       c.rebuilds.Load(),
		FailedRebuilds: c.failures.Load(),
	}
}
