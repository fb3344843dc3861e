// Package util provides helpers shared across the gateway packages.
//
// # Error Conventions
//
// Sentinel errors (errors.New) cover stable conditions checked with
// errors.Is. Structured error types carry request context and implement
// Error, Unwrap (when wrapping) and Is. Ad-hoc context is added with
// fmt.Errorf and %w.
//
// # Request Info
//
// The access log middleware installs a mutable RequestInfo in the request
// context; the dispatcher handler fills in the resolved route and cache
// outcome so the outer middleware can log and measure them:
//
//	ctx, info := util.ContextWithRequestInfo(r.Context())
//	next.ServeHTTP(w, r.WithContext(ctx))
//	logger.Info("http request", observability.String("route", info.Route()))
package util
