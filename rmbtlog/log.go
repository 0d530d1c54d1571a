// Package rmbtlog builds the zap loggers shared by the server and client
// binaries. Components receive a *zap.SugaredLogger rather than constructing
// their own, mirroring how per-session loggers are threaded through call
// sites elsewhere in the ecosystem.
package rmbtlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style logger, or a development logger with
// debug-level output and caller info when debug is true.
func New(debug bool) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = !debug
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards all output, for use in tests.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
