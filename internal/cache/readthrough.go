package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/yunqiqiliang/embedgate/internal/core"
	"github.com/yunqiqiliang/embedgate/internal/obs"
)

// LoadFunc fetches a fresh value from the source of truth and reports how long it may be cached.
// A ttl <= 0 returns the value without caching it.
type LoadFunc[T any] func(ctx context.Context) (value T, ttl time.Duration, err error)

// ReadThrough caches a single value under a fixed key.
// Concurrent misses are collapsed into one load.
type ReadThrough[T any] struct {
	name  string
	key   string
	store core.Store
	group singleflight.Group
	now   func() time.Time
}

func NewReadThrough[T any](name, key string, store core.Store) *ReadThrough[T] {
	return &ReadThrough[T]{
		name:  name,
		key:   key,
		store: store,
		now:   time.Now,
	}
}

// WithClock replaces the clock used for expiry checks.
func (c *ReadThrough[T]) WithClock(now func() time.Time) *ReadThrough[T] {
	c.now = now
	return c
}

// Key returns the backing store key.
func (c *ReadThrough[T]) Key() string {
	return c.key
}

// Get returns the cached value or loads, stores and returns a fresh one.
// The load runs detached from ctx cancellation so an abandoned request still
// populates the cache for later callers; the loader is expected to bound itself.
func (c *ReadThrough[T]) Get(ctx context.Context, load LoadFunc[T]) (T, error) {
	if v, ok := c.lookup(ctx); ok {
		return v, nil
	}

	res, err, shared := c.group.Do(c.key, func() (any, error) {
		// a previous flight may have stored the value while we were waiting
		if v, ok := c.lookup(ctx); ok {
			return v, nil
		}

		loadCtx := context.WithoutCancel(ctx)
		v, ttl, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		if ttl > 0 {
			c.put(loadCtx, v, ttl)
		}
		return v, nil
	})
	if shared {
		log.Ctx(ctx).Debug().Str("cache", c.name).Msg("joined in-flight cache load")
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Invalidate removes the cached value.
func (c *ReadThrough[T]) Invalidate(ctx context.Context) error {
	c.group.Forget(c.key)
	return c.store.Delete(ctx, c.key)
}

func (c *ReadThrough[T]) lookup(ctx context.Context) (T, bool) {
	var zero T
	logger := log.Ctx(ctx)

	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if errors.Is(err, core.ErrCacheMiss) {
			obs.CacheLookups.WithLabelValues(c.name, "miss").Inc()
			return zero, false
		}
		obs.CacheLookups.WithLabelValues(c.name, "error").Inc()
		logger.Warn().Err(err).Str("cache", c.name).Msg("cache read failed, treating as miss")
		return zero, false
	}

	var entry Entry[T]
	if err := json.Unmarshal(data, &entry); err != nil {
		obs.CacheLookups.WithLabelValues(c.name, "error").Inc()
		logger.Warn().Err(err).Str("cache", c.name).Msg("discarding undecodable cache entry")
		_ = c.store.Delete(ctx, c.key)
		return zero, false
	}
	if entry.Expired(c.now()) {
		obs.CacheLookups.WithLabelValues(c.name, "expired").Inc()
		_ = c.store.Delete(ctx, c.key)
		return zero, false
	}

	obs.CacheLookups.WithLabelValues(c.name, "hit").Inc()
	logger.Debug().Str("cache", c.name).Msg("cache hit")
	return entry.Value, true
}

func (c *ReadThrough[T]) put(ctx context.Context, v T, ttl time.Duration) {
	data, err := json.Marshal(Entry[T]{Value: v, ExpiresAt: c.now().Add(ttl)})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("cache", c.name).Msg("failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, c.key, data, ttl); err != nil {
		// the value is still returned, only the next caller pays for another load
		log.Ctx(ctx).Warn().Err(err).Str("cache", c.name).Msg("cache write failed")
	}
}
