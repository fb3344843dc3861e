// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("route", "forecast"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Gateway request metrics live on a dedicated Prometheus registry:
//
//	metrics := observability.NewMetrics("gateway")
//	handler := metrics.Handler()
//
// # Tracing
//
// The Tracer is the process-wide tracing lifecycle. It is built once at
// startup, handed to the components that emit spans, and shut down once
// on termination so buffered spans are flushed:
//
//	tracer, err := observability.NewTracer(observability.TracerConfig{
//	    ServiceName:  "energy-gateway",
//	    OTLPEndpoint: "localhost:4317",
//	    Enabled:      true,
//	})
//	defer tracer.Shutdown(ctx)
//
// A disabled Tracer is inert: spans are no-ops and Shutdown returns nil.
package observability
