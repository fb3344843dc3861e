// Package health serves the liveness and readiness probes of the admin
// listener.
//
// Liveness only reports that the process is up. Readiness runs every
// registered check, each under its own timeout, and fails while any
// check fails or the process is draining:
//
//	checker := health.NewChecker(version, logger)
//	checker.RegisterCheck("cache", func(ctx context.Context) error {
//	    return cache.Ping(ctx, backend)
//	})
//	mux.Handle("/ready", checker.ReadinessHandler())
//	mux.Handle("/live", checker.LivenessHandler())
package health
