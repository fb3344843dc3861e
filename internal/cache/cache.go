package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the backend.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrCorruptEntry indicates that a stored entry could not be decoded.
	ErrCorruptEntry = errors.New("corrupt cache entry")
)

// Backend is a byte-oriented key/value store. Freshness is decided by the
// Store; a backend's own TTL only bounds how long it retains data.
type Backend interface {
	// Get retrieves a value. Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given retention.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases the backend's resources.
	Close() error
}

// Pinger is implemented by backends that depend on a remote server.
type Pinger interface {
	Ping(ctx context.Context) error
}

type backendFactory func(*config.CacheConfig, observability.Logger) (Backend, error)

// factories maps a cache type to its backend constructor. The empty type
// selects the memory backend.
var factories = map[string]backendFactory{
	"": func(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
		return newMemoryCache(cfg, logger), nil
	},
	config.CacheTypeMemory: func(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
		return newMemoryCache(cfg, logger), nil
	},
	config.CacheTypeRedis: func(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
		b, err := newRedisCache(cfg, logger)
		return asBackend(b, err)
	},
	config.CacheTypeRistretto: func(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
		b, err := newRistrettoCache(cfg, logger)
		return asBackend(b, err)
	},
	config.CacheTypeBigCache: func(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
		b, err := newBigCache(cfg, logger)
		return asBackend(b, err)
	},
}

// asBackend keeps a failed constructor from yielding a non-nil Backend
// holding a nil pointer.
func asBackend[T Backend](b T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return b, nil
}

// New builds the backend named by cfg.Type.
func New(cfg *config.CacheConfig, logger observability.Logger) (Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil configuration", ErrInvalidConfig)
	}
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cfg.Type)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return factory(cfg, logger)
}

// Ping checks a backend's connectivity. Backends without a remote
// dependency are always reachable.
func Ping(ctx context.Context, b Backend) error {
	p, ok := b.(Pinger)
	if !ok {
		return nil
	}
	return p.Ping(ctx)
}
