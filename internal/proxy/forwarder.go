package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/router"
)

// RequestIDHeader carries the request ID to downstream services.
const RequestIDHeader = "X-Request-ID"

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Request is the inbound request as seen by the forwarder.
type Request struct {
	Method string
	Header http.Header

	// RawQuery is passed to the upstream unchanged.
	RawQuery string
	Body     []byte

	// RemoteAddr, Host and TLS feed the X-Forwarded-* headers.
	RemoteAddr string
	Host       string
	TLS        bool
}

// Forwarder sends requests to downstream services. It never retries:
// upstream operations such as optimization triggers are not idempotent.
type Forwarder struct {
	client           *http.Client
	logger           observability.Logger
	tracer           *observability.Tracer
	timeout          time.Duration
	maxResponseBytes int64
	breakers         *breakers
}

// Option is a functional option for configuring the Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithTracer sets the tracer used for upstream client spans.
func WithTracer(tracer *observability.Tracer) Option {
	return func(f *Forwarder) {
		f.tracer = tracer
	}
}

// WithTransport replaces the pooled HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Forwarder) {
		f.client.Transport = rt
	}
}

// New creates a Forwarder from cfg.
func New(cfg config.ForwarderConfig, opts ...Option) *Forwarder {
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}
	maxBytes := cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxResponseSize
	}

	f := &Forwarder{
		client: &http.Client{
			Transport: newTransport(cfg),
			// Redirects go back to the caller untouched.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:           observability.NopLogger(),
		timeout:          timeout,
		maxResponseBytes: maxBytes,
	}

	for _, opt := range opts {
		opt(f)
	}

	f.breakers = newBreakers(cfg.CircuitBreaker, f.logger)

	return f
}

func newTransport(cfg config.ForwarderConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConns > 0 {
		t.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost > 0 {
		t.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}
	if d := cfg.IdleConnTimeout.Duration(); d > 0 {
		t.IdleConnTimeout = d
	}
	return t
}

// Forward sends req to the route's service and returns the buffered
// response. Any failure is an *UpstreamError.
func (f *Forwarder) Forward(ctx context.Context, match *router.Match, req Request) (*Response, error) {
	route := match.Route
	target := f.targetURL(route.BaseURL, match.UpstreamPath, req.RawQuery)

	timeout := f.timeout
	if route.Timeout > 0 {
		timeout = route.Timeout
	}

	ctx, span := f.tracer.StartSpan(ctx, "gateway.forward",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", target.String()),
			attribute.String("server.address", target.Host),
			attribute.String("gateway.service", route.Service),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := f.breakers.execute(route.Service, func() (*Response, error) {
		return f.do(ctx, timeout, target, req)
	})
	elapsed := time.Since(start)

	outcome := outcomeSuccess
	if err != nil {
		err, outcome = f.classify(err, route, target)
	}

	metrics := getProxyMetrics()
	metrics.requestsTotal.WithLabelValues(route.Service, outcome).Inc()
	metrics.upstreamDuration.WithLabelValues(route.Service).Observe(elapsed.Seconds())

	logger := f.logger.WithContext(ctx)
	if err != nil {
		if ue, ok := AsUpstreamError(err); ok && ue.StatusCode > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", ue.StatusCode))
		}
		span.SetStatus(codes.Error, outcome)
		span.RecordError(err)
		logger.Warn("upstream request failed",
			observability.String("route", route.Name),
			observability.String("service", route.Service),
			observability.String("target", target.String()),
			observability.String("outcome", outcome),
			observability.Duration("duration", elapsed),
			observability.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	logger.Debug("upstream request completed",
		observability.String("route", route.Name),
		observability.String("service", route.Service),
		observability.Int("status", resp.StatusCode),
		observability.Duration("duration", elapsed))

	return resp, nil
}

// do performs one upstream round trip under its own timeout.
func (f *Forwarder) do(ctx context.Context, timeout time.Duration, target *url.URL, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	out.Header = outboundHeader(ctx, req)

	httpResp, err := f.client.Do(out)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, f.maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxResponseBytes {
		return nil, ErrResponseTooLarge
	}

	header := httpResp.Header.Clone()
	removeHopHeaders(header)

	if httpResp.StatusCode >= http.StatusBadRequest {
		return nil, &UpstreamError{
			Kind:       KindStatus,
			StatusCode: httpResp.StatusCode,
			Header:     header,
			Body:       data,
		}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     header,
		Body:       data,
	}, nil
}

// classify turns err into an UpstreamError and names its outcome.
func (f *Forwarder) classify(err error, route *router.Route, target *url.URL) (*UpstreamError, string) {
	base := UpstreamError{
		Route:   route.Name,
		Service: route.Service,
		Target:  target.String(),
		Cause:   err,
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		classified := *ue
		classified.Route, classified.Service, classified.Target = base.Route, base.Service, base.Target
		return &classified, outcomeStatus
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrCircuitOpen):
		base.Kind = KindUnreachable
		return &base, outcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		base.Kind = KindTimeout
		return &base, outcomeTimeout
	default:
		base.Kind = KindUnreachable
		return &base, outcomeUnreachable
	}
}

// targetURL joins the service base URL, the upstream path and the query.
func (f *Forwarder) targetURL(base *url.URL, upstreamPath, rawQuery string) *url.URL {
	u := *base
	u.Path = singleJoiningSlash(base.Path, upstreamPath)
	u.RawPath = ""
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}
	return &u
}

// BreakerState reports the circuit breaker state for a service.
func (f *Forwarder) BreakerState(service string) string {
	return f.breakers.state(service)
}

// outboundHeader builds the upstream request headers.
func outboundHeader(ctx context.Context, req Request) http.Header {
	header := req.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	removeHopHeaders(header)
	header.Del("Host")

	if header.Get(RequestIDHeader) == "" {
		if id := observability.RequestIDFromContext(ctx); id != "" {
			header.Set(RequestIDHeader, id)
		}
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		header.Set("X-Forwarded-For", clientIP)
	}
	if req.TLS {
		header.Set("X-Forwarded-Proto", "https")
	} else {
		header.Set("X-Forwarded-Proto", "http")
	}
	if req.Host != "" {
		header.Set("X-Forwarded-Host", req.Host)
	}

	observability.InjectTraceContext(ctx, header)
	return header
}

// removeHopHeaders strips hop-by-hop headers, including any named in
// the Connection header.
func removeHopHeaders(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return fmt.Sprintf("%s/%s", a, b)
	}
	return a + b
}
