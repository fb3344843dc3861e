// Package proxy forwards gateway requests to downstream services.
//
// A Forwarder sends the inbound method and body verbatim to the route's
// service base URL joined with its upstream path, buffers the response
// and normalizes every failure into an *UpstreamError of one of three
// kinds: timeout, unreachable, or status (a downstream answer outside
// 2xx/3xx, carried with its body). It never retries and never follows
// redirects.
//
// Hop-by-hop headers are stripped in both directions; X-Request-ID,
// X-Forwarded-* and W3C trace context are added to outbound requests.
// An optional per-service circuit breaker (sony/gobreaker) turns
// repeated failures into fast unreachable errors.
//
//	fwd := proxy.New(cfg.Spec.Forwarder, proxy.WithLogger(logger), proxy.WithTracer(tracer))
//	resp, err := fwd.Forward(ctx, match, proxy.Request{Method: "POST", Body: body})
package proxy
