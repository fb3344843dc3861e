// Package cache stores upstream responses for cacheable routes.
//
// A Store wraps a byte-oriented Backend (in-process LRU, Redis,
// ristretto or bigcache) and adds three guarantees on top of it:
//
//   - freshness: every entry carries its own expiry, checked against the
//     Store's clock on read; stale and undecodable entries are deleted
//     when they are found
//   - single-flight: concurrent misses for one key share one fetch, and
//     every caller attached to it sees the same value or error
//   - failures are never stored
//
// Backend retention is only an upper bound. Backends that cannot honor
// per-entry TTLs (bigcache) still serve correctly because the Store
// decides freshness.
//
// # Example Usage
//
//	backend, err := cache.New(&cfg.Spec.Cache, logger)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	store := cache.NewStore[proxy.Response](backend, cache.Msgpack[proxy.Response]{})
//
//	key, err := cache.DeriveKey(cache.KeyInput{Route: "forecast", Method: "POST", Body: body})
//	resp, outcome, err := store.GetOrFetch(ctx, key, 20*time.Second, fetch)
//
// A caller whose context ends while waiting on a fetch returns at once;
// the fetch itself keeps running for the other callers.
package cache
