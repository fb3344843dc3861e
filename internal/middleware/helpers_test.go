package middleware

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/energygw/internal/observability"
)

// observedLogger returns a logger whose entries can be inspected.
func observedLogger() (observability.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewLoggerFromZap(zap.New(core), zap.NewAtomicLevelAt(zapcore.DebugLevel)), logs
}
