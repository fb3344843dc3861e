package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "test-service"})

	require.NoError(t, err)
	require.NotNil(t, tracer)
	assert.Nil(t, tracer.provider)
	assert.False(t, tracer.Enabled())

	ctx, span := tracer.StartSpan(context.Background(), "noop")
	span.SetAttributes(attribute.String("k", "v"))
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.False(t, span.IsRecording())
	assert.NotNil(t, ctx)
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_NilSafe(t *testing.T) {
	t.Parallel()

	var tracer *Tracer

	assert.False(t, tracer.Enabled())
	assert.NotPanics(t, func() {
		_, span := tracer.StartSpan(context.Background(), "nil")
		span.End()
	})
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test-service",
		Enabled:      true,
		SamplingRate: 1.0,
	}, WithSpanProcessor(recorder))
	require.NoError(t, err)
	require.True(t, tracer.Enabled())

	_, span := tracer.StartSpan(context.Background(), "gateway.dispatch")
	span.SetAttributes(attribute.String("gateway.route", "probe"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "gateway.dispatch", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("gateway.route", "probe"))

	require.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_ShutdownOnce(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test-service",
		Enabled:      true,
		SamplingRate: 1.0,
	}, WithSpanProcessor(recorder))
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "buffered")
	span.End()

	require.NoError(t, tracer.Shutdown(context.Background()))
	assert.Len(t, recorder.Ended(), 1)

	// Spans started after shutdown are dropped and a second call is a no-op.
	_, late := tracer.StartSpan(context.Background(), "late")
	late.End()
	assert.NoError(t, tracer.Shutdown(context.Background()))
	assert.Len(t, recorder.Ended(), 1)
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Equal(t, sdktrace.AlwaysSample().Description(), createSampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), createSampler(0).Description())
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}

func TestNormalizeOTLPEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in           string
		insecure     bool
		wantEndpoint string
		wantInsecure bool
	}{
		{in: "http://localhost:4317", wantEndpoint: "localhost:4317", wantInsecure: true},
		{in: "https://collector:4317/", wantEndpoint: "collector:4317"},
		{in: "collector:4317", insecure: true, wantEndpoint: "collector:4317", wantInsecure: true},
		{in: "collector:4317", wantEndpoint: "collector:4317"},
	}

	for _, tt := range tests {
		endpoint, insecure := normalizeOTLPEndpoint(tt.in, tt.insecure)
		assert.Equal(t, tt.wantEndpoint, endpoint, tt.in)
		assert.Equal(t, tt.wantInsecure, insecure, tt.in)
	}
}

func TestBuildRetryConfig(t *testing.T) {
	t.Parallel()

	def := buildRetryConfig(nil)
	assert.True(t, def.Enabled)
	assert.Equal(t, DefaultOTLPRetryInitialInterval, def.InitialInterval)

	custom := buildRetryConfig(&OTLPRetryConfig{Enabled: false, MaxInterval: DefaultOTLPTimeout})
	assert.False(t, custom.Enabled)
	assert.Equal(t, DefaultOTLPTimeout, custom.MaxInterval)
	assert.Equal(t, DefaultOTLPRetryMaxElapsedTime, custom.MaxElapsedTime)
}

func TestTraceContextPropagation(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tracer, err := NewTracer(TracerConfig{ServiceName: "svc", Enabled: true, SamplingRate: 1},
		WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	ctx, span := tracer.StartSpan(context.Background(), "outbound")
	defer span.End()

	header := http.Header{}
	InjectTraceContext(ctx, header)
	require.NotEmpty(t, header.Get("traceparent"))

	extracted := ExtractTraceContext(context.Background(), header)
	remote := SpanFromContext(extracted).SpanContext()
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
}
