package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/energygw/internal/cache"
	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/gateway"
	"github.com/vyrodovalexey/energygw/internal/health"
	"github.com/vyrodovalexey/energygw/internal/middleware"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/proxy"
	"github.com/vyrodovalexey/energygw/internal/retry"
	"github.com/vyrodovalexey/energygw/internal/router"
)

// application holds all application components.
type application struct {
	gateway       *gateway.Gateway
	cacheBackend  cache.Backend
	healthChecker *health.Checker
	metrics       *observability.Metrics
	reloadMetrics *reloadMetrics
	tracer        *observability.Tracer
	rateLimiter   *middleware.RateLimiter
	config        *config.GatewayConfig
	logger        observability.Logger
}

// initApplication builds every component from cfg. Nothing is listening
// yet when it returns.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(cfg.Spec.Observability.Metrics.Namespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	// Subsystem metrics are promauto singletons on the default registry;
	// /metrics is served from the gateway's own registry.
	registerSubsystemMetrics(metrics)

	clientIPs, err := middleware.NewClientIPResolver(cfg.Spec.Listener.TrustedProxies)
	if err != nil {
		return nil, err
	}

	tracer, err := initTracer(cfg, logger)
	if err != nil {
		return nil, err
	}

	table, err := router.NewFromConfig(&cfg.Spec)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to build route table: %w", err),
			tracer.Shutdown(context.Background()))
	}

	backend, err := cache.New(&cfg.Spec.Cache, logger)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create cache backend: %w", err),
			tracer.Shutdown(context.Background()))
	}

	store := cache.NewStore[proxy.Response](backend, cache.Msgpack[proxy.Response]{},
		cache.WithStoreLogger(logger))

	forwarder := proxy.New(cfg.Spec.Forwarder,
		proxy.WithLogger(logger),
		proxy.WithTracer(tracer),
	)
	proxy.InitMetrics(serviceNames(cfg)...)

	dispatcher := gateway.NewDispatcher(table, store, forwarder,
		gateway.WithDispatcherLogger(logger),
		gateway.WithTracer(tracer),
	)

	healthChecker := health.NewChecker(version, logger)
	healthChecker.RegisterCheck("cache", func(ctx context.Context) error {
		return cache.Ping(ctx, backend)
	})

	rateLimit, rateLimiter := middleware.RateLimitFromConfig(cfg.Spec.RateLimit, logger,
		middleware.WithRateLimitHitCallback(func(string) { metrics.RecordRateLimitHit() }))

	gw, err := gateway.New(cfg,
		gateway.WithLogger(logger),
		gateway.WithRouteHandler(gateway.NewHandler(dispatcher, logger)),
		gateway.WithAdminHandler(newAdminMux(cfg, metrics, healthChecker)),
		gateway.WithMiddleware(buildMiddlewareChain(logger, metrics, clientIPs, rateLimit)...),
	)
	if err != nil {
		if rateLimiter != nil {
			rateLimiter.Stop()
		}
		return nil, errors.Join(fmt.Errorf("failed to create gateway: %w", err),
			backend.Close(), tracer.Shutdown(context.Background()))
	}

	logger.Info("gateway initialized",
		observability.Int("routes", len(table.Routes())),
		observability.String("cache_backend", backend.Name()),
		observability.Bool("tracing", tracer.Enabled()),
	)

	return &application{
		gateway:       gw,
		cacheBackend:  backend,
		healthChecker: healthChecker,
		metrics:       metrics,
		reloadMetrics: newReloadMetrics(metrics),
		tracer:        tracer,
		rateLimiter:   rateLimiter,
		config:        cfg,
		logger:        logger,
	}, nil
}

// registerSubsystemMetrics bridges the package-level collectors into the
// gateway registry and pre-populates their label sets.
func registerSubsystemMetrics(metrics *observability.Metrics) {
	cacheMetrics := cache.GetCacheMetrics()
	cacheMetrics.Init()
	healthMetrics := health.GetHealthMetrics()
	healthMetrics.Init()

	metrics.MustRegisterCollector(cacheMetrics.Collectors()...)
	metrics.MustRegisterCollector(healthMetrics.Collectors()...)
	metrics.MustRegisterCollector(proxy.Collectors()...)
	metrics.MustRegisterCollector(router.Collectors()...)
	metrics.MustRegisterCollector(retry.Collectors()...)
	metrics.MustRegisterCollector(middleware.GetMiddlewareMetrics().Collectors()...)
}

// initTracer creates the tracing lifecycle handle. A disabled tracing
// section yields an inert tracer.
func initTracer(cfg *config.GatewayConfig, logger observability.Logger) (*observability.Tracer, error) {
	tc := cfg.Spec.Observability.Tracing

	tracerCfg := observability.TracerConfig{
		Enabled:      tc.Enabled,
		ServiceName:  config.DefaultServiceName,
		OTLPEndpoint: tc.Endpoint,
		SamplingRate: tc.SamplingRate,
		Insecure:     tc.Insecure,
	}
	if tc.ServiceName != "" {
		tracerCfg.ServiceName = tc.ServiceName
	}

	tracer, err := observability.NewTracer(tracerCfg, observability.WithTracerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

// buildMiddlewareChain returns the public middleware, outermost first.
func buildMiddlewareChain(
	logger observability.Logger,
	metrics *observability.Metrics,
	clientIPs *middleware.ClientIPResolver,
	rateLimit func(http.Handler) http.Handler,
) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.Recovery(logger),
		middleware.ClientIP(clientIPs),
		middleware.RequestID(),
		middleware.Logging(logger),
		observability.MetricsMiddleware(metrics),
		rateLimit,
	}
}

// serviceNames lists the configured downstream services.
func serviceNames(cfg *config.GatewayConfig) []string {
	names := make([]string, 0, len(cfg.Spec.Services))
	for _, svc := range cfg.Spec.Services {
		names = append(names, svc.Name)
	}
	return names
}
