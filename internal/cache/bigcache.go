package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

const (
	bigCacheBackend = "bigcache"

	defaultBigCacheLifeWindow = 10 * time.Minute
)

// bigCache is a sharded off-heap backend. It has no per-entry TTL: every
// entry lives for the configured LifeWindow, and route TTLs are enforced
// by the Store from the stored envelope.
type bigCache struct {
	logger observability.Logger
	c      *bc.BigCache
}

func newBigCache(cfg *config.CacheConfig, logger observability.Logger) (*bigCache, error) {
	lifeWindow := defaultBigCacheLifeWindow
	hardMax := 0
	if cfg.BigCache != nil {
		if cfg.BigCache.LifeWindow > 0 {
			lifeWindow = cfg.BigCache.LifeWindow.Duration()
		}
		hardMax = cfg.BigCache.HardMaxCacheSizeMB
	}

	conf := bc.DefaultConfig(lifeWindow)
	conf.Verbose = false
	if interval := cfg.CleanupInterval.Duration(); interval > 0 {
		conf.CleanWindow = interval
	}
	if cfg.MaxEntries > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntries
	}
	if hardMax > 0 {
		conf.HardMaxCacheSize = hardMax
	}
	conf.OnRemoveWithReason = func(_ string, _ []byte, reason bc.RemoveReason) {
		if reason == bc.NoSpace {
			GetCacheMetrics().evicted(bigCacheBackend, 1)
		}
	}

	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, fmt.Errorf("%w: bigcache: %w", ErrInvalidConfig, err)
	}

	logger.Info("bigcache initialized",
		observability.Duration("lifeWindow", lifeWindow),
		observability.Int("hardMaxCacheSizeMB", hardMax))

	return &bigCache{logger: logger, c: c}, nil
}

// Name implements Backend.
func (b *bigCache) Name() string { return bigCacheBackend }

// Get retrieves a value.
func (b *bigCache) Get(_ context.Context, key string) ([]byte, error) {
	defer GetCacheMetrics().observe(bigCacheBackend, "get", time.Now())

	v, err := b.c.Get(key)
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, ErrCacheMiss
	default:
		GetCacheMetrics().failed(bigCacheBackend, "get")
		return nil, fmt.Errorf("bigcache get: %w", err)
	}
}

// Set stores a value. ttl is ignored; see bigCache.
func (b *bigCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	defer GetCacheMetrics().observe(bigCacheBackend, "set", time.Now())

	if err := b.c.Set(key, value); err != nil {
		GetCacheMetrics().failed(bigCacheBackend, "set")
		return fmt.Errorf("bigcache set: %w", err)
	}
	GetCacheMetrics().setSize(bigCacheBackend, b.c.Len())
	return nil
}

// Delete removes a value.
func (b *bigCache) Delete(_ context.Context, key string) error {
	defer GetCacheMetrics().observe(bigCacheBackend, "delete", time.Now())

	err := b.c.Delete(key)
	if err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		GetCacheMetrics().failed(bigCacheBackend, "delete")
		return fmt.Errorf("bigcache delete: %w", err)
	}
	return nil
}

// Close releases bigcache's shards and cleanup goroutine.
func (b *bigCache) Close() error {
	b.logger.Info("bigcache closed")
	return b.c.Close()
}
