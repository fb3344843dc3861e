package cache

import (
	"context"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

const (
	ristrettoBackend = "ristretto"

	defaultRistrettoMaxCost = 64 << 20
	ristrettoBufferItems    = 64
)

// ristrettoCache is an admission-controlled in-process backend. Cost is
// the stored size in bytes.
type ristrettoCache struct {
	logger observability.Logger
	c      *rc.Cache
}

func newRistrettoCache(cfg *config.CacheConfig, logger observability.Logger) (*ristrettoCache, error) {
	maxCost := int64(defaultRistrettoMaxCost)
	if cfg.Ristretto != nil && cfg.Ristretto.MaxCostBytes > 0 {
		maxCost = cfg.Ristretto.MaxCostBytes
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}

	c, err := rc.NewCache(&rc.Config{
		// Ristretto recommends ten counters per expected entry.
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     maxCost,
		BufferItems: ristrettoBufferItems,
		OnEvict: func(*rc.Item) {
			GetCacheMetrics().evicted(ristrettoBackend, 1)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ristretto: %w", ErrInvalidConfig, err)
	}

	logger.Info("ristretto cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Int64("maxCostBytes", maxCost))

	return &ristrettoCache{logger: logger, c: c}, nil
}

// Name implements Backend.
func (r *ristrettoCache) Name() string { return ristrettoBackend }

// Get retrieves a value.
func (r *ristrettoCache) Get(_ context.Context, key string) ([]byte, error) {
	defer GetCacheMetrics().observe(ristrettoBackend, "get", time.Now())

	v, ok := r.c.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	b, _ := v.([]byte)
	if b == nil {
		r.c.Del(key)
		return nil, ErrCacheMiss
	}
	return b, nil
}

// Set stores a value. Ristretto applies writes asynchronously; Set waits
// for the write buffer so a following Get observes it, unless the
// admission policy rejected the entry.
func (r *ristrettoCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	defer GetCacheMetrics().observe(ristrettoBackend, "set", time.Now())

	if ttl < 0 {
		ttl = 0
	}
	if !r.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		r.logger.Debug("ristretto dropped write",
			observability.String("key", key))
		return nil
	}
	r.c.Wait()
	return nil
}

// Delete removes a value.
func (r *ristrettoCache) Delete(_ context.Context, key string) error {
	defer GetCacheMetrics().observe(ristrettoBackend, "delete", time.Now())

	r.c.Del(key)
	return nil
}

// Close stops ristretto's goroutines.
func (r *ristrettoCache) Close() error {
	r.c.Close()
	r.logger.Info("ristretto cache closed")
	return nil
}
