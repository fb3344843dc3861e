// Package middleware provides the net/http middleware wrapped around the
// gateway engine.
//
//   - Recovery: turns panics into a 500 error envelope and logs the stack
//   - ClientIP: resolves the client address, honoring X-Forwarded-For only
//     from trusted proxies
//   - RequestID: validates or assigns X-Request-ID and propagates it
//   - Logging: one structured access line per request, with the route
//     and cache outcome recorded by the dispatcher
//   - RateLimit: global or per-client token bucket, 429 with Retry-After
//
// Rejections use the same JSON error envelope as the dispatcher:
//
//	{"error":"rate_limited","message":"rate limit exceeded","status":429}
package middleware
