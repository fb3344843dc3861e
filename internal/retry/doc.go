// Package retry provides bounded exponential backoff for calls to the
// cache's remote store.
//
// Upstream forwarding never retries: requests such as optimization
// triggers are not idempotent. Retries here only cover cache reads and
// writes, which are.
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), "redis.get",
//	    func(ctx context.Context) error { return client.Get(ctx, key).Err() },
//	    retry.If(isTransient))
package retry
