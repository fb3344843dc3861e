package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reloads.
type reloadMetrics struct {
	configReloadTotal       *prometheus.CounterVec
	configReloadLastSuccess prometheus.Gauge
	configWatcherStatus     prometheus.Gauge
	restartRequiredTotal    *prometheus.CounterVec
}

// newReloadMetrics creates reload metrics on the gateway registry.
func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		configReloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		configReloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of last successful config reload",
			},
		),
		configWatcherStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gateway",
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
		restartRequiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gateway",
				Name:      "config_restart_required_total",
				Help:      "Configuration changes that only apply after a restart, by section",
			},
			[]string{"section"},
		),
	}

	m.MustRegisterCollector(
		rm.configReloadTotal,
		rm.configReloadLastSuccess,
		rm.configWatcherStatus,
		rm.restartRequiredTotal,
	)

	return rm
}

// startConfigWatcher watches configPath. Without a config file (embedded
// defaults) there is nothing to watch and nil is returned.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	if configPath == "" {
		return nil
	}
	rm := app.reloadMetrics

	watcher, err := config.NewWatcher(configPath,
		func(previous, current *config.GatewayConfig) {
			logger.Info("configuration changed, reloading")
			applyConfigChange(app, previous, current, logger)
		},
		config.WithLogger(logger),
		config.WithErrorCallback(func(err error) {
			logger.Error("failed to reload configuration", observability.Error(err))
			rm.configReloadTotal.WithLabelValues("error").Inc()
		}),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return watcher
	}

	rm.configWatcherStatus.Set(1)
	return watcher
}

// applyConfigChange applies the parts of a new configuration that can
// change at runtime. Only the log level does; routes, services, the
// cache backend and the listeners are fixed for the process lifetime,
// so changes to them are reported and otherwise ignored.
func applyConfigChange(
	app *application,
	previous, current *config.GatewayConfig,
	logger observability.Logger,
) {
	rm := app.reloadMetrics

	if level := current.Spec.Observability.Logging.Level; level != "" &&
		level != previous.Spec.Observability.Logging.Level {
		if err := logger.SetLevel(level); err != nil {
			logger.Error("failed to apply log level", observability.Error(err))
			rm.configReloadTotal.WithLabelValues("error").Inc()
			return
		}
		logger.Info("log level changed", observability.String("level", level))
	}

	for _, section := range config.RestartRequired(previous, current) {
		logger.Warn("configuration section changed but only applies after a restart",
			observability.String("section", section))
		rm.restartRequiredTotal.WithLabelValues(section).Inc()
	}

	rm.configReloadTotal.WithLabelValues("success").Inc()
	rm.configReloadLastSuccess.SetToCurrentTime()
}
