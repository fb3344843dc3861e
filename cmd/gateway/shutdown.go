package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// runGateway starts the gateway and blocks until SIGINT or SIGTERM.
func runGateway(app *application, configPath string, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.gateway.Start(ctx); err != nil {
		app.shutdown(context.Background(), nil)
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return
	}

	watcher := startConfigWatcher(ctx, app, configPath, logger)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	if code := app.shutdown(context.Background(), watcher); code != 0 {
		_ = logger.Sync()
		os.Exit(code)
	}
}

// shutdown drains and releases every component in dependency order: the
// readiness probe first, then the listeners, then the cache and finally
// the tracer, so the spans of drained requests are flushed. It returns a
// non-zero exit code if any step failed.
func (app *application) shutdown(ctx context.Context, watcher *config.Watcher) int {
	logger := app.logger
	code := 0

	shutdownCtx, cancel := context.WithTimeout(ctx, app.shutdownTimeout())
	defer cancel()

	app.healthChecker.SetDraining(true)

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Warn("failed to stop config watcher", observability.Error(err))
		}
		app.reloadMetrics.configWatcherStatus.Set(0)
	}

	if app.gateway.IsRunning() {
		if err := app.gateway.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop gateway gracefully", observability.Error(err))
			code = 1
		}
	}

	// Stop rate limiter cleanup goroutine
	if app.rateLimiter != nil {
		app.rateLimiter.Stop()
	}

	if err := app.cacheBackend.Close(); err != nil {
		logger.Error("failed to close cache backend", observability.Error(err))
		code = 1
	}

	// The tracer gets its own budget so a slow drain cannot starve the
	// final span flush.
	tracerCtx, cancelTracer := context.WithTimeout(ctx, app.shutdownTimeout())
	defer cancelTracer()
	if err := app.tracer.Shutdown(tracerCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
		code = 1
	}

	logger.Info("gateway stopped")
	return code
}

func (app *application) shutdownTimeout() time.Duration {
	if d := app.config.Spec.Listener.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}
