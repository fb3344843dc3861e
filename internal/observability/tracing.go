package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// OTLP exporter retry configuration defaults.
const (
	// DefaultOTLPRetryInitialInterval is the initial backoff interval for OTLP exporter retries.
	DefaultOTLPRetryInitialInterval = 1 * time.Second

	// DefaultOTLPRetryMaxInterval is the maximum backoff interval for OTLP exporter retries.
	DefaultOTLPRetryMaxInterval = 30 * time.Second

	// DefaultOTLPRetryMaxElapsedTime is the maximum total time for OTLP exporter retries.
	DefaultOTLPRetryMaxElapsedTime = 1 * time.Minute

	// DefaultOTLPTimeout is the default timeout for OTLP exporter operations.
	DefaultOTLPTimeout = 10 * time.Second

	// DefaultOTLPReconnectionPeriod is the default reconnection period for OTLP gRPC connection.
	DefaultOTLPReconnectionPeriod = 10 * time.Second
)

// propagator carries W3C trace context and baggage across service hops.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// TracerConfig contains tracing configuration.
type TracerConfig struct {
	ServiceName  string
	OTLPEndpoint string
	SamplingRate float64
	Enabled      bool

	// Insecure disables TLS towards the collector.
	Insecure bool

	// Retry configuration for OTLP exporter.
	// If nil, defaults will be used.
	RetryConfig *OTLPRetryConfig
}

// OTLPRetryConfig contains retry configuration for OTLP exporter.
type OTLPRetryConfig struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// TracerOption is a functional option for NewTracer.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	logger     Logger
	processors []sdktrace.SpanProcessor
}

// WithTracerLogger sets the logger that receives exporter errors.
func WithTracerLogger(logger Logger) TracerOption {
	return func(o *tracerOptions) {
		o.logger = logger
	}
}

// WithSpanProcessor registers an additional span processor. It is only
// used when tracing is enabled.
func WithSpanProcessor(sp sdktrace.SpanProcessor) TracerOption {
	return func(o *tracerOptions) {
		o.processors = append(o.processors, sp)
	}
}

// Tracer is the process-wide tracing lifecycle handle.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracerConfig
	logger   Logger

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewTracer creates a new tracer. A disabled configuration yields an
// inert Tracer whose spans are no-ops.
func NewTracer(cfg TracerConfig, opts ...TracerOption) (*Tracer, error) {
	o := &tracerOptions{logger: NopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	if !cfg.Enabled {
		return &Tracer{
			config: cfg,
			tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName),
			logger: o.logger,
		}, nil
	}

	ctx := context.Background()

	var exporter *otlptrace.Exporter
	if cfg.OTLPEndpoint != "" {
		var err error
		// otlptracegrpc connects lazily, so an unreachable collector does
		// not fail startup; export errors surface through the error handler.
		exporter, err = otlptracegrpc.New(ctx, buildOTLPExporterOptions(cfg)...)
		if err != nil {
			return nil, err
		}
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(createSampler(cfg.SamplingRate)),
	}

	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	for _, sp := range o.processors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sp))
	}

	logger := o.logger
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("tracing error", Error(err))
	}))

	provider := sdktrace.NewTracerProvider(providerOpts...)

	logger.Info("tracing enabled",
		String("service", cfg.ServiceName),
		String("endpoint", cfg.OTLPEndpoint),
		Float64("sampling_rate", cfg.SamplingRate),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
		config:   cfg,
		logger:   logger,
	}, nil
}

// createSampler creates a sampler based on the sampling rate.
func createSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// buildOTLPExporterOptions builds OTLP gRPC exporter options with retry configuration.
func buildOTLPExporterOptions(cfg TracerConfig) []otlptracegrpc.Option {
	endpoint, insecure := normalizeOTLPEndpoint(cfg.OTLPEndpoint, cfg.Insecure)

	opts := make([]otlptracegrpc.Option, 0, 5)
	opts = append(opts,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithTimeout(DefaultOTLPTimeout),
		otlptracegrpc.WithReconnectionPeriod(DefaultOTLPReconnectionPeriod),
		otlptracegrpc.WithRetry(buildRetryConfig(cfg.RetryConfig)),
	)
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

// normalizeOTLPEndpoint accepts either host:port or a URL. An http:// URL
// implies a plaintext connection.
func normalizeOTLPEndpoint(endpoint string, insecure bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), insecure
	default:
		return endpoint, insecure
	}
}

// buildRetryConfig builds the retry configuration for OTLP exporter.
func buildRetryConfig(cfg *OTLPRetryConfig) otlptracegrpc.RetryConfig {
	if cfg == nil {
		return otlptracegrpc.RetryConfig{
			Enabled:         true,
			InitialInterval: DefaultOTLPRetryInitialInterval,
			MaxInterval:     DefaultOTLPRetryMaxInterval,
			MaxElapsedTime:  DefaultOTLPRetryMaxElapsedTime,
		}
	}

	retryConfig := otlptracegrpc.RetryConfig{
		Enabled:         cfg.Enabled,
		InitialInterval: DefaultOTLPRetryInitialInterval,
		MaxInterval:     DefaultOTLPRetryMaxInterval,
		MaxElapsedTime:  DefaultOTLPRetryMaxElapsedTime,
	}
	if cfg.InitialInterval > 0 {
		retryConfig.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		retryConfig.MaxInterval = cfg.MaxInterval
	}
	if cfg.MaxElapsedTime > 0 {
		retryConfig.MaxElapsedTime = cfg.MaxElapsedTime
	}

	return retryConfig
}

// Enabled reports whether spans are recorded and exported.
func (t *Tracer) Enabled() bool {
	return t != nil && t.provider != nil
}

// StartSpan starts a new span. It is safe to call on a nil or inert Tracer.
func (t *Tracer) StartSpan(
	ctx context.Context,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name, opts...)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes buffered spans and stops the exporter. Only the first
// call does any work; later calls return the first result.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}

	t.shutdownOnce.Do(func() {
		flushErr := t.provider.ForceFlush(ctx)
		t.shutdownErr = errors.Join(flushErr, t.provider.Shutdown(ctx))
		t.logger.Info("tracing shut down")
	})

	return t.shutdownErr
}

// SpanFromContext returns the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// ExtractTraceContext returns ctx carrying the remote span context found in
// the inbound headers, if any.
func ExtractTraceContext(ctx context.Context, header http.Header) context.Context {
	return propagator.Extract(ctx, propagation.HeaderCarrier(header))
}

// InjectTraceContext injects the span context of ctx into outgoing headers.
func InjectTraceContext(ctx context.Context, header http.Header) {
	propagator.Inject(ctx, propagation.HeaderCarrier(header))
}
