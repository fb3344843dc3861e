package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxHeaderBytes    = 1 << 20
)

// Listener serves one handler on one TCP address.
type Listener struct {
	name     string
	config   config.ListenerConfig
	handler  http.Handler
	logger   observability.Logger
	minWrite time.Duration

	mu      sync.Mutex
	server  *http.Server
	addr    string
	running bool
	err     error
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger sets the logger for the listener.
func WithListenerLogger(logger observability.Logger) ListenerOption {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithMinWriteTimeout raises the write timeout to at least d. The public
// listener uses it so a response waiting on the forwarder timeout can
// still be written.
func WithMinWriteTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) {
		l.minWrite = d
	}
}

// NewListener creates a listener. Nothing is bound until Start.
func NewListener(name string, cfg config.ListenerConfig, handler http.Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		name:    name,
		config:  cfg,
		handler: handler,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the listener name.
func (l *Listener) Name() string {
	return l.name
}

// Addr returns the bound address once started, else the configured one.
// With port 0 the bound address carries the port the kernel picked.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addr != "" {
		return l.addr
	}
	return l.config.Address()
}

// IsRunning reports whether the listener is serving.
func (l *Listener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Err returns the error that ended serving unexpectedly, if any.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// WriteTimeout is the effective write timeout of the server.
func (l *Listener) WriteTimeout() time.Duration {
	return max(durationOr(l.config.WriteTimeout, config.DefaultWriteTimeout), l.minWrite)
}

// Start binds the address and serves in the background.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return fmt.Errorf("listener %s is already running", l.name)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", l.config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.config.Address(), err)
	}

	server := &http.Server{
		Handler:           l.handler,
		ReadTimeout:       durationOr(l.config.ReadTimeout, config.DefaultReadTimeout),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      l.WriteTimeout(),
		IdleTimeout:       durationOr(l.config.IdleTimeout, config.DefaultIdleTimeout),
		MaxHeaderBytes:    maxHeaderBytes,
	}
	l.server, l.addr, l.running, l.err = server, ln.Addr().String(), true, nil

	l.logger.Info("listener started",
		observability.String("name", l.name),
		observability.String("address", l.addr),
		observability.Duration("write_timeout", server.WriteTimeout),
	)

	go l.serve(server, ln)
	return nil
}

func (l *Listener) serve(server *http.Server, ln net.Listener) {
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	l.mu.Lock()
	if l.server == server {
		l.running = false
		l.err = err
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("listener failed",
			observability.String("name", l.name),
			observability.Error(err),
		)
	}
}

// Stop drains in-flight requests until ctx is done, then closes the
// remaining connections.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	server := l.server
	l.mu.Unlock()
	if server == nil {
		return nil
	}

	l.logger.Info("stopping listener", observability.String("name", l.name))

	err := server.Shutdown(ctx)
	if err != nil {
		err = errors.Join(fmt.Errorf("failed to shutdown listener %s gracefully: %w", l.name, err), server.Close())
	}

	l.mu.Lock()
	if l.server == server {
		l.running = false
	}
	l.mu.Unlock()

	if err == nil {
		l.logger.Info("listener stopped", observability.String("name", l.name))
	}
	return err
}

func durationOr(d config.Duration, def time.Duration) time.Duration {
	if d > 0 {
		return d.Duration()
	}
	return def
}
