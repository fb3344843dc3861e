// Package router provides the gateway route table.
//
// A Table maps a (method, path) pair to exactly one Route. Patterns are
// either literal ("/plan/optimize") or templated ("/forecast/:type", also
// written "/forecast/{type}"), and a templated segment may be restricted
// to a closed set of values. Literal routes take precedence over
// templated ones. Routes that could match the same request with the same
// precedence are rejected when the table is built, so resolution never
// depends on registration order.
//
//	table, err := router.NewFromConfig(&cfg.Spec)
//	if err != nil {
//	    return err
//	}
//	match, err := table.Resolve(http.MethodPost, "/forecast/load")
//	// match.Route.Name == "forecast"
//	// match.Params["type"] == "load"
//	// match.UpstreamPath == "/forecast/load"
//
// The table is immutable once built and safe for concurrent use.
package router
