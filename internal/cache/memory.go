package cache

import (
	"container/heap"
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

const memoryBackend = "memory"

// memoryCache is an in-process LRU backend. Entries with a retention are
// also indexed by expiry so the sweep only visits what has expired.
type memoryCache struct {
	logger     observability.Logger
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	recency *list.List // front is most recently used
	expiry  expiryQueue

	stop      chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	slot      int // index in expiry, -1 when the entry never expires
}

func newMemoryCache(cfg *config.CacheConfig, logger observability.Logger) *memoryCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}
	interval := cfg.CleanupInterval.Duration()
	if interval <= 0 {
		interval = config.DefaultCacheCleanup
	}

	c := &memoryCache{
		logger:     logger,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element, min(maxEntries, 1024)),
		recency:    list.New(),
		stop:       make(chan struct{}),
	}
	go c.sweepEvery(interval)

	logger.Info("memory cache initialized",
		observability.Int("maxEntries", maxEntries),
		observability.Duration("cleanupInterval", interval))

	return c
}

func (c *memoryCache) Name() string { return memoryBackend }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	defer GetCacheMetrics().observe(memoryBackend, "get", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	e := elem.Value.(*memoryEntry)
	if e.expired(c.now()) {
		c.unlink(elem)
		c.publishSize()
		return nil, ErrCacheMiss
	}
	c.recency.MoveToFront(elem)
	return e.value, nil
}

// Set stores value. A non-positive ttl keeps it until it is evicted.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	defer GetCacheMetrics().observe(memoryBackend, "set", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &memoryEntry{key: key, value: value, slot: -1}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	if elem, ok := c.entries[key]; ok {
		c.forgetExpiry(elem.Value.(*memoryEntry))
		elem.Value = e
		c.recency.MoveToFront(elem)
	} else {
		c.entries[key] = c.recency.PushFront(e)
	}
	if !e.expiresAt.IsZero() {
		heap.Push(&c.expiry, e)
	}

	evicted := 0
	for c.recency.Len() > c.maxEntries {
		c.unlink(c.recency.Back())
		evicted++
	}
	if evicted > 0 {
		GetCacheMetrics().evicted(memoryBackend, evicted)
	}
	c.publishSize()

	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	defer GetCacheMetrics().observe(memoryBackend, "delete", time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.unlink(elem)
		c.publishSize()
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Close stops the sweep and drops every entry. Calling it again is a no-op.
func (c *memoryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		clear(c.entries)
		c.recency.Init()
		c.expiry = c.expiry[:0]
		c.publishSize()
		c.mu.Unlock()

		c.logger.Info("memory cache closed")
	})
	return nil
}

// unlink drops elem from every index. Callers hold mu.
func (c *memoryCache) unlink(elem *list.Element) {
	e := c.recency.Remove(elem).(*memoryEntry)
	delete(c.entries, e.key)
	c.forgetExpiry(e)
}

func (c *memoryCache) forgetExpiry(e *memoryEntry) {
	if e.slot >= 0 {
		heap.Remove(&c.expiry, e.slot)
	}
}

func (c *memoryCache) publishSize() {
	GetCacheMetrics().setSize(memoryBackend, c.recency.Len())
}

func (c *memoryCache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup pops expired entries off the expiry queue.
func (c *memoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for len(c.expiry) > 0 && c.expiry[0].expired(now) {
		c.unlink(c.entries[c.expiry[0].key])
		removed++
	}

	if removed > 0 {
		c.publishSize()
		c.logger.Debug("memory cache sweep", observability.Int("removed", removed))
	}
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// expiryQueue is a min-heap of entries ordered by expiry.
type expiryQueue []*memoryEntry

func (q expiryQueue) Len() int           { return len(q) }
func (q expiryQueue) Less(i, j int) bool { return q[i].expiresAt.Before(q[j].expiresAt) }

func (q expiryQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].slot = i
	q[j].slot = j
}

func (q *expiryQueue) Push(x any) {
	e := x.(*memoryEntry)
	e.slot = len(*q)
	*q = append(*q, e)
}

func (q *expiryQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.slot = -1
	*q = old[:n-1]
	return e
}
