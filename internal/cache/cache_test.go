package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

func backendConfigs(t *testing.T) map[string]*config.CacheConfig {
	t.Helper()

	mr := miniredis.RunT(t)

	return map[string]*config.CacheConfig{
		"memory": {Type: config.CacheTypeMemory, MaxEntries: 100},
		"redis": {
			Type:  config.CacheTypeRedis,
			Redis: &config.RedisCacheConfig{URL: "redis://" + mr.Addr()},
		},
		"ristretto": {
			Type:       config.CacheTypeRistretto,
			MaxEntries: 100,
			Ristretto:  &config.RistrettoConfig{MaxCostBytes: 1 << 20},
		},
		"bigcache": {
			Type:     config.CacheTypeBigCache,
			BigCache: &config.BigCacheConfig{LifeWindow: config.Duration(time.Minute)},
		},
	}
}

func TestNew_BackendContract(t *testing.T) {
	t.Parallel()

	for name, cfg := range backendConfigs(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b, err := New(cfg, observability.NopLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })
			ctx := context.Background()

			assert.Equal(t, name, b.Name())
			require.NoError(t, Ping(ctx, b))

			_, err = b.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, b.Set(ctx, "k", []byte("value"), time.Minute))
			v, err := b.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, []byte("value"), v)

			require.NoError(t, b.Delete(ctx, "k"))
			require.NoError(t, b.Delete(ctx, "k"))
			_, err = b.Get(ctx, "k")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestNew_StoreOverEveryBackend(t *testing.T) {
	t.Parallel()

	for name, cfg := range backendConfigs(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b, err := New(cfg, observability.NopLogger())
			require.NoError(t, err)
			t.Cleanup(func() { _ = b.Close() })

			clock := newFakeClock()
			store := NewStore[forecast](b, Msgpack[forecast]{}, WithClock(clock.Now))
			ctx := context.Background()

			calls := 0
			fetch := func(context.Context) (forecast, error) {
				calls++
				return forecast{Value: 42}, nil
			}

			_, outcome, err := store.GetOrFetch(ctx, "k", 20*time.Second, fetch)
			require.NoError(t, err)
			assert.Equal(t, OutcomeMiss, outcome)

			clock.Advance(5 * time.Second)
			v, outcome, err := store.GetOrFetch(ctx, "k", 20*time.Second, fetch)
			require.NoError(t, err)
			assert.Equal(t, OutcomeHit, outcome)
			assert.Equal(t, 42, v.Value)

			// bigcache keeps the entry for its whole life window; the
			// envelope still marks it stale.
			clock.Advance(20 * time.Second)
			_, outcome, err = store.GetOrFetch(ctx, "k", 20*time.Second, fetch)
			require.NoError(t, err)
			assert.Equal(t, OutcomeMiss, outcome)
			assert.Equal(t, 2, calls)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&config.CacheConfig{Type: "memcached"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	t.Parallel()

	b, err := New(&config.CacheConfig{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, "memory", b.Name())
}

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	raw, err := encodeEnvelope(envelope{ExpiresAt: 1, Value: []byte("v")})
	require.NoError(t, err)

	env, err := decodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.ExpiresAt)
	assert.Equal(t, []byte("v"), env.Value)

	_, err = decodeEnvelope([]byte{0xc1})
	assert.True(t, errors.Is(err, ErrCorruptEntry))
}

func TestCacheMetrics(t *testing.T) {
	t.Parallel()

	m := GetCacheMetrics()
	assert.Same(t, m, GetCacheMetrics())
	assert.Len(t, m.Collectors(), 5)

	m.Init()
	m.Init()
}
