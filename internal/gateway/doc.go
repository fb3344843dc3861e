// Package gateway is the entry point of the energy gateway.
//
// A Dispatcher takes an inbound request through its lifecycle:
//
//	Received -> Resolved -> CacheHit -> Responded
//	                     -> CacheMiss -> Forwarding -> Success | Failure -> Responded
//
// Resolution failures and invalid JSON bodies end the request before the
// cache or the forwarder is touched. Cacheable routes go through the
// cache store, which coalesces concurrent identical requests into one
// upstream call; routes with caching disabled are always forwarded. Every
// dispatch runs in a "gateway.dispatch" span carrying the route, the
// cache outcome and the response status or error kind.
//
// Handler adapts the Dispatcher to net/http, sets the X-Cache header and
// renders failures as a JSON envelope:
//
//	{"error": "upstream_timeout", "message": "...", "status": 504}
//
// Gateway runs the public listener, a gin engine that serves /health and
// passes everything else to the Handler, and the admin listener.
package gateway
