package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
	"github.com/vyrodovalexey/energygw/internal/util"
)

const (
	// healthRoute is the route label of the local health endpoint.
	healthRoute = "health"

	// writeTimeoutMargin keeps the public write deadline past the forwarder
	// timeout so the 504 envelope still reaches the client.
	writeTimeoutMargin = 5 * time.Second
)

var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway owns the public listener, where the gin engine serves /health
// and hands every other path to the route handler, and the optional
// admin listener.
type Gateway struct {
	config    *config.GatewayConfig
	logger    observability.Logger
	engine    *gin.Engine
	listener  *Listener
	admin     *Listener
	state     atomic.Int32
	startTime time.Time
	mu        sync.RWMutex

	routeHandler http.Handler
	adminHandler http.Handler
	middleware   []func(http.Handler) http.Handler

	shutdownTimeout time.Duration
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithShutdownTimeout sets the shutdown timeout.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownTimeout = timeout
	}
}

// WithRouteHandler sets the handler for every path except /health.
func WithRouteHandler(handler http.Handler) Option {
	return func(g *Gateway) {
		g.routeHandler = handler
	}
}

// WithAdminHandler sets the handler served on the admin listener. The
// admin listener only starts when one is set and the admin section of
// the configuration is enabled.
func WithAdminHandler(handler http.Handler) Option {
	return func(g *Gateway) {
		g.adminHandler = handler
	}
}

// WithMiddleware wraps the public engine. The first middleware is the
// outermost.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(g *Gateway) {
		g.middleware = append(g.middleware, mw...)
	}
}

// New creates a new Gateway instance.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	g := &Gateway{
		config:          cfg,
		logger:          observability.NopLogger(),
		shutdownTimeout: config.DefaultShutdownTimeout,
	}
	if d := cfg.Spec.Listener.ShutdownTimeout.Duration(); d > 0 {
		g.shutdownTimeout = d
	}

	for _, opt := range opts {
		opt(g)
	}

	g.state.Store(int32(StateStopped))

	return g, nil
}

// Start binds the listeners and starts serving.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrGatewayNotStopped
	}

	g.logger.Info("starting gateway",
		observability.String("name", g.config.Metadata.Name),
	)

	ginModeOnce.Do(func() { gin.SetMode(gin.ReleaseMode) })
	g.engine = gin.New()
	g.setupRoutes()

	g.listener = NewListener("public", g.config.Spec.Listener, g.Handler(),
		WithListenerLogger(g.logger),
		WithMinWriteTimeout(g.config.Spec.Forwarder.Timeout.Duration()+writeTimeoutMargin),
	)
	if err := g.listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to start listener %s: %w", g.listener.Name(), err)
	}

	if g.adminHandler != nil && g.config.Spec.Admin.Enabled {
		admin := config.ListenerConfig{
			Bind:         g.config.Spec.Admin.Bind,
			Port:         g.config.Spec.Admin.Port,
			ReadTimeout:  g.config.Spec.Listener.ReadTimeout,
			WriteTimeout: g.config.Spec.Listener.WriteTimeout,
			IdleTimeout:  g.config.Spec.Listener.IdleTimeout,
		}
		g.admin = NewListener("admin", admin, g.adminHandler, WithListenerLogger(g.logger))
		if err := g.admin.Start(ctx); err != nil {
			_ = g.stopListeners(ctx)
			g.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to start listener %s: %w", g.admin.Name(), err)
		}
	}

	g.mu.Lock()
	g.startTime = time.Now()
	g.mu.Unlock()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started",
		observability.String("name", g.config.Metadata.Name),
		observability.String("address", g.listener.Addr()),
	)

	return nil
}

// Stop stops the gateway gracefully, waiting for in-flight requests up
// to the shutdown timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return ErrGatewayNotRunning
	}

	g.logger.Info("stopping gateway",
		observability.String("name", g.config.Metadata.Name),
	)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.shutdownTimeout)
		defer cancel()
	}

	err := g.stopListeners(ctx)

	g.state.Store(int32(StateStopped))

	g.logger.Info("gateway stopped",
		observability.String("name", g.config.Metadata.Name),
	)

	return err
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startTime.IsZero() {
		return 0
	}
	return time.Since(g.startTime)
}

// Addr returns the bound address of the public listener, or "" before
// Start.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// AdminAddr returns the bound address of the admin listener, or "" if it
// is not running.
func (g *Gateway) AdminAddr() string {
	if g.admin == nil {
		return ""
	}
	return g.admin.Addr()
}

// Handler returns the public handler: the middleware chain around the
// gin engine. It is nil before Start.
func (g *Gateway) Handler() http.Handler {
	if g.engine == nil {
		return nil
	}
	var h http.Handler = g.engine
	for i := len(g.middleware) - 1; i >= 0; i-- {
		h = g.middleware[i](h)
	}
	return h
}

// setupRoutes sets up the gin routes.
func (g *Gateway) setupRoutes() {
	g.engine.GET("/health", g.health)

	if g.routeHandler != nil {
		g.engine.NoRoute(gin.WrapH(g.routeHandler))
	}
}

func (g *Gateway) health(c *gin.Context) {
	util.RequestInfoFromContext(c.Request.Context()).SetRoute(healthRoute)

	name := g.config.Metadata.Name
	if name == "" {
		name = config.DefaultServiceName
	}
	c.JSON(http.StatusOK, gin.H{
		"service": name,
		"status":  "ok",
		"ts":      time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// stopListeners stops every started listener concurrently. The result
// joins shutdown failures with errors that ended serving early.
func (g *Gateway) stopListeners(ctx context.Context) error {
	listeners := make([]*Listener, 0, 2)
	for _, l := range []*Listener{g.listener, g.admin} {
		if l != nil {
			listeners = append(listeners, l)
		}
	}

	errs := make([]error, len(listeners))
	var wg sync.WaitGroup
	for i, l := range listeners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Stop(ctx); err != nil {
				g.logger.Error("failed to stop listener",
					observability.String("name", l.Name()),
					observability.Error(err),
				)
				errs[i] = err
				return
			}
			if err := l.Err(); err != nil {
				errs[i] = fmt.Errorf("listener %s: %w", l.Name(), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}
