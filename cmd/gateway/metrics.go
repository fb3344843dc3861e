package main

import (
	"net/http"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/health"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// newAdminMux creates the handler served on the admin listener: the
// Prometheus endpoint and the readiness and liveness probes.
func newAdminMux(
	cfg *config.GatewayConfig,
	metrics *observability.Metrics,
	healthChecker *health.Checker,
) *http.ServeMux {
	mux := http.NewServeMux()

	if m := cfg.Spec.Observability.Metrics; m.Enabled {
		path := m.Path
		if path == "" {
			path = config.DefaultMetricsPath
		}
		mux.Handle(path, metrics.Handler())
	}

	mux.HandleFunc("/ready", healthChecker.ReadinessHandler())
	mux.HandleFunc("/live", healthChecker.LivenessHandler())

	return mux
}
