package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

func TestMemoryCache_Retention(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	clock := newFakeClock()
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "forever", []byte("b"), 0))

	clock.Advance(2 * time.Second)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)

	v, err := c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v)
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(&config.CacheConfig{MaxEntries: 3}, observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	for i := range 3 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, time.Minute))
	}

	// Touch k0 so k1 becomes least recently used.
	_, err := c.Get(ctx, "k0")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k3", []byte{3}, time.Minute))

	assert.Equal(t, 3, c.Len())
	_, err = c.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	for _, key := range []string{"k0", "k2", "k3"} {
		_, err := c.Get(ctx, key)
		assert.NoError(t, err, key)
	}
}

func TestMemoryCache_Overwrite(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("old"), time.Minute))
	require.NoError(t, c.Set(ctx, "k", []byte("new"), time.Minute))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_Cleanup(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	clock := newFakeClock()
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("b"), time.Hour))
	require.NoError(t, c.Set(ctx, "c", []byte("c"), time.Second))

	clock.Advance(time.Minute)
	c.cleanup()

	assert.Equal(t, 1, c.Len())
}

func TestMemoryCache_CleanupLoop(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(&config.CacheConfig{
		CleanupInterval: config.Duration(5 * time.Millisecond),
	}, observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), time.Millisecond))

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryCache_DeleteAndClose(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "missing"))

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_ExpiryIndexFollowsOverwrite(t *testing.T) {
	t.Parallel()

	c := newTestMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	clock := newFakeClock()
	c.now = clock.Now
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("short"), time.Second))
	require.NoError(t, c.Set(ctx, "k", []byte("forever"), 0))
	require.NoError(t, c.Set(ctx, "j", []byte("short"), time.Second))
	require.NoError(t, c.Delete(ctx, "j"))
	assert.Empty(t, c.expiry)

	clock.Advance(time.Hour)
	c.cleanup()

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("forever"), v)
}

func TestMemoryCache_EvictionDropsExpiryIndex(t *testing.T) {
	t.Parallel()

	c := newMemoryCache(&config.CacheConfig{MaxEntries: 2, CleanupInterval: config.Duration(time.Hour)},
		observability.NopLogger())
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	for i := range 5 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, time.Minute))
	}

	assert.Equal(t, 2, c.Len())
	assert.Len(t, c.expiry, 2)
	for i, e := range c.expiry {
		assert.Equal(t, i, e.slot)
	}
}
