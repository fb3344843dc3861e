package gateway

import (
	"context"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/energygw/internal/cache"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/proxy"
	"github.com/vyrodovalexey/energygw/internal/router"
	"github.com/vyrodovalexey/energygw/internal/util"
)

// Forwarder sends a resolved request upstream.
type Forwarder interface {
	Forward(ctx context.Context, match *router.Match, req proxy.Request) (*proxy.Response, error)
}

// Request is an inbound request with its body already read.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// RawQuery is forwarded unchanged; Query feeds the cache key.
	RawQuery string
	Header   http.Header
	Body     []byte

	// BodyErr is set when the body could not be read in full. The route
	// is still resolved so unknown paths answer 404.
	BodyErr error

	RemoteAddr string
	Host       string
	TLS        bool
}

// Result is a successful dispatch.
type Result struct {
	Route    string
	Outcome  cache.Outcome
	Response *proxy.Response
}

// Dispatcher resolves, caches and forwards requests. It owns neither the
// route table nor the store.
type Dispatcher struct {
	table     *router.Table
	store     *cache.Store[proxy.Response]
	forwarder Forwarder
	tracer    *observability.Tracer
	logger    observability.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTracer sets the tracing lifecycle handle. Without one, spans are
// no-ops.
func WithTracer(tracer *observability.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = tracer
	}
}

// NewDispatcher creates a Dispatcher. A nil store makes every route
// bypass the cache.
func NewDispatcher(
	table *router.Table,
	store *cache.Store[proxy.Response],
	forwarder Forwarder,
	opts ...DispatcherOption,
) *Dispatcher {
	d := &Dispatcher{
		table:     table,
		store:     store,
		forwarder: forwarder,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch serves req: resolve the route, validate the body, then answer
// from the cache or forward upstream. It never retries. Route and body
// errors are returned before the cache or the forwarder is touched.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := d.tracer.StartSpan(ctx, "gateway.dispatch",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	match, err := d.table.Resolve(req.Method, req.Path)
	if err != nil {
		return nil, d.fail(ctx, span, err)
	}

	route := match.Route
	span.SetAttributes(attribute.String("gateway.route", route.Name))
	info := util.RequestInfoFromContext(ctx)
	info.SetRoute(route.Name)

	if req.BodyErr != nil {
		return nil, d.fail(ctx, span, util.NewInvalidBodyError(route.Name, req.BodyErr))
	}

	fetch := func(ctx context.Context) (proxy.Response, error) {
		resp, err := d.forwarder.Forward(ctx, match, req.forwardRequest())
		if err != nil {
			return proxy.Response{}, err
		}
		return *resp, nil
	}

	var (
		resp    proxy.Response
		outcome cache.Outcome
	)
	if d.cacheable(route) {
		key, kerr := cache.DeriveKey(cache.KeyInput{
			Route:  route.Name,
			Method: req.Method,
			Params: match.Params,
			Query:  req.Query,
			Body:   req.Body,
		})
		if kerr != nil {
			return nil, d.fail(ctx, span, util.NewInvalidBodyError(route.Name, kerr))
		}
		resp, outcome, err = d.store.GetOrFetch(ctx, key, route.Cache.TTL, fetch)
	} else {
		if _, berr := cache.CanonicalBody(req.Body); berr != nil {
			return nil, d.fail(ctx, span, util.NewInvalidBodyError(route.Name, berr))
		}
		outcome = cache.OutcomeBypass
		resp, err = fetch(ctx)
	}

	span.SetAttributes(attribute.String("gateway.cache.outcome", string(outcome)))
	info.SetCacheOutcome(string(outcome))

	if err != nil {
		return nil, d.fail(ctx, span, err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	d.logger.WithContext(ctx).Debug("request dispatched",
		observability.String("route", route.Name),
		observability.String("cache", string(outcome)),
		observability.Int("status", resp.StatusCode))

	return &Result{
		Route:    route.Name,
		Outcome:  outcome,
		Response: &resp,
	}, nil
}

func (d *Dispatcher) cacheable(route *router.Route) bool {
	return d.store != nil && route.Cache.Enabled && route.Cache.TTL > 0
}

// fail records err on the span and returns it.
func (d *Dispatcher) fail(ctx context.Context, span trace.Span, err error) error {
	kind := KindOf(err)
	status := StatusOf(err)

	span.SetAttributes(
		attribute.String("gateway.error.kind", string(kind)),
		attribute.Int("http.response.status_code", status),
	)
	// A caller that went away is not a gateway failure.
	if kind != KindClientClosed {
		span.SetStatus(codes.Error, string(kind))
		span.RecordError(err)
	}

	d.logger.WithContext(ctx).Debug("dispatch failed",
		observability.String("kind", string(kind)),
		observability.Error(err))

	return err
}

func (r *Request) forwardRequest() proxy.Request {
	return proxy.Request{
		Method:     r.Method,
		Header:     r.Header,
		RawQuery:   r.RawQuery,
		Body:       r.Body,
		RemoteAddr: r.RemoteAddr,
		Host:       r.Host,
		TLS:        r.TLS,
	}
}
