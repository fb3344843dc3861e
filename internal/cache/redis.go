package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/retry"
)

const (
	redisBackend = "redis"

	// defaultRedisKeyPrefix namespaces gateway keys in a shared instance.
	defaultRedisKeyPrefix = "energygw:"

	redisPingTimeout = 5 * time.Second
)

// redisRetryPolicy keeps the worst case of a cache call well under the
// forwarder timeout.
var redisRetryPolicy = retry.Policy{
	Retries: 2,
	Initial: 20 * time.Millisecond,
	Max:     200 * time.Millisecond,
	Jitter:  retry.DefaultJitter,
}

// isRetryableRedisError reports whether err is worth another attempt.
// Misses and caller cancellation are final.
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, redis.Nil) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// redisCache implements a Redis-backed cache shared by gateway replicas.
type redisCache struct {
	logger    observability.Logger
	client    *redis.Client
	keyPrefix string
	ttlJitter float64
}

// applyTTLJitter lengthens ttl by up to jitterFactor so replicas writing
// the same key do not expire it in lockstep. It never shortens a TTL,
// since freshness is decided from the stored envelope.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not require cryptographic randomness
	return ttl + time.Duration(float64(ttl)*jitterFactor*rand.Float64())
}

// newRedisCache connects to Redis and verifies the connection.
func newRedisCache(cfg *config.CacheConfig, logger observability.Logger) (*redisCache, error) {
	if cfg.Redis == nil || cfg.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required", ErrInvalidConfig)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %w", ErrInvalidConfig, err)
	}
	applyRedisPoolOptions(opts, cfg.Redis)

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	c := newRedisCacheFromClient(client, cfg.Redis.KeyPrefix, cfg.Redis.TTLJitter, logger)

	logger.Info("redis cache initialized",
		observability.String("addr", opts.Addr),
		observability.Int("db", opts.DB),
		observability.String("keyPrefix", c.keyPrefix),
		observability.Float64("ttlJitter", c.ttlJitter))

	return c, nil
}

func newRedisCacheFromClient(
	client *redis.Client,
	keyPrefix string,
	ttlJitter float64,
	logger observability.Logger,
) *redisCache {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &redisCache{
		logger:    logger,
		client:    client,
		keyPrefix: keyPrefix,
		ttlJitter: ttlJitter,
	}
}

// applyRedisPoolOptions applies pool and timeout overrides.
func applyRedisPoolOptions(opts *redis.Options, redisCfg *config.RedisCacheConfig) {
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.ConnectTimeout > 0 {
		opts.DialTimeout = redisCfg.ConnectTimeout.Duration()
	}
	if redisCfg.ReadTimeout > 0 {
		opts.ReadTimeout = redisCfg.ReadTimeout.Duration()
	}
	if redisCfg.WriteTimeout > 0 {
		opts.WriteTimeout = redisCfg.WriteTimeout.Duration()
	}
}

// Name implements Backend.
func (c *redisCache) Name() string { return redisBackend }

func (c *redisCache) resolveKey(key string) string {
	return c.keyPrefix + key
}

// withRetry runs fn under the redis retry policy.
func (c *redisCache) withRetry(ctx context.Context, op, key string, fn func(context.Context) error) error {
	return retry.Do(ctx, redisRetryPolicy, "redis."+op, fn,
		retry.If(isRetryableRedisError),
		retry.OnRetry(func(attempt int, err error, wait time.Duration) {
			c.logger.Debug("retrying redis "+op,
				observability.String("key", key),
				observability.Int("attempt", attempt),
				observability.Duration("wait", wait),
				observability.Error(err))
		}),
	)
}

// Get retrieves a value.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	defer GetCacheMetrics().observe(redisBackend, "get", time.Now())

	fullKey := c.resolveKey(key)

	var result []byte
	err := c.withRetry(ctx, "get", key, func(ctx context.Context) error {
		val, getErr := c.client.Get(ctx, fullKey).Bytes()
		if getErr != nil {
			return getErr
		}
		result = val
		return nil
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	default:
		GetCacheMetrics().failed(redisBackend, "get")
		return nil, fmt.Errorf("redis get: %w", err)
	}
}

// Set stores a value with a jittered expiry.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	defer GetCacheMetrics().observe(redisBackend, "set", time.Now())

	ttl = applyTTLJitter(ttl, c.ttlJitter)
	fullKey := c.resolveKey(key)

	err := c.withRetry(ctx, "set", key, func(ctx context.Context) error {
		return c.client.Set(ctx, fullKey, value, ttl).Err()
	})
	if err != nil {
		GetCacheMetrics().failed(redisBackend, "set")
		return fmt.Errorf("redis set: %w", err)
	}

	c.logger.Debug("cache set",
		observability.String("key", key),
		observability.Duration("ttl", ttl),
		observability.Int("size", len(value)))
	return nil
}

// Delete removes a value.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	defer GetCacheMetrics().observe(redisBackend, "delete", time.Now())

	fullKey := c.resolveKey(key)

	err := c.withRetry(ctx, "delete", key, func(ctx context.Context) error {
		return c.client.Del(ctx, fullKey).Err()
	})
	if err != nil {
		GetCacheMetrics().failed(redisBackend, "delete")
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Ping implements Pinger.
func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the client connection pool.
func (c *redisCache) Close() error {
	c.logger.Info("redis cache closed")
	return c.client.Close()
}
