// Package main is the entry point for the energy API gateway.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/energygw/internal/config"
	"github.com/vyrodovalexey/energygw/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool

	// logLevelSet and logFormatSet are true when the value came from the
	// command line or the environment rather than the built-in default.
	logLevelSet  bool
	logFormatSet bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion(os.Stdout)
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags, logger)
	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize gateway", observability.Error(err))
		return
	}

	runGateway(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Unset flags fall back to the
// GATEWAY_* environment variables.
func parseFlags(args []string) (cliFlags, error) {
	fs := pflag.NewFlagSet("energygw", pflag.ContinueOnError)

	configPath, _ := envDefault(envConfigPath, "")
	logLevel, levelFromEnv := envDefault(envLogLevel, "info")
	logFormat, formatFromEnv := envDefault(envLogFormat, "json")

	var flags cliFlags
	fs.StringVarP(&flags.configPath, "config", "c", configPath,
		"Path to configuration file (embedded defaults when empty)")
	fs.StringVar(&flags.logLevel, "log-level", logLevel,
		"Log level (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", logFormat,
		"Log format (json, console)")
	fs.BoolVarP(&flags.showVersion, "version", "v", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}

	flags.logLevelSet = fs.Changed("log-level") || levelFromEnv
	flags.logFormatSet = fs.Changed("log-format") || formatFromEnv

	return flags, nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	_, _ = fmt.Fprintf(w, "energygw version %s\n", version)
	_, _ = fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	_, _ = fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	return logger
}

// loadAndValidateConfig loads and validates the configuration, then
// applies its logging level unless one was given explicitly.
func loadAndValidateConfig(flags cliFlags, logger observability.Logger) *config.GatewayConfig {
	source := flags.configPath
	if source == "" {
		source = "embedded defaults"
	}
	logger.Info("starting energygw",
		observability.String("version", version),
		observability.String("config", source),
	)

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil
	}

	if level := cfg.Spec.Observability.Logging.Level; level != "" && !flags.logLevelSet {
		if err := logger.SetLevel(level); err != nil {
			logger.Warn("ignoring configured log level", observability.Error(err))
		}
	}

	cached := 0
	for i := range cfg.Spec.Routes {
		if cfg.Spec.Routes[i].Cache.Enabled {
			cached++
		}
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.Int("services", len(cfg.Spec.Services)),
		observability.Int("routes", len(cfg.Spec.Routes)),
		observability.Int("cached_routes", cached),
		observability.String("cache_backend", cfg.Spec.Cache.Type),
		observability.Bool("tracing", cfg.Spec.Observability.Tracing.Enabled),
	)

	return cfg
}

// fatalWithSync flushes buffered log entries before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
