package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingBackend wraps a Backend and counts reads.
type countingBackend struct {
	Backend
	gets atomic.Int64
}

func (b *countingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.gets.Add(1)
	return b.Backend.Get(ctx, key)
}

// brokenBackend fails every operation.
type brokenBackend struct{}

var errBackendDown = errors.New("backend down")

func (brokenBackend) Get(context.Context, string) ([]byte, error) { return nil, errBackendDown }
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errBackendDown
}
func (brokenBackend) Delete(context.Context, string) error { return errBackendDown }
func (brokenBackend) Name() string                         { return "broken" }
func (brokenBackend) Close() error                         { return nil }

func newTestMemoryCache() *memoryCache {
	return newMemoryCache(&config.CacheConfig{
		Type:            config.CacheTypeMemory,
		MaxEntries:      100,
		CleanupInterval: config.Duration(time.Hour),
	}, observability.NopLogger())
}

type forecast struct {
	Value int `msgpack:"value"`
}
