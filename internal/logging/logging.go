// Package logging builds the process logger: zap underneath, logr on top.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logr.Logger and a flush function to call before exit.
// level is "debug" or "info"; format is "json" or "console".
func New(level, format string) (logr.Logger, func(), error) {
	var zc zap.Config
	switch format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return logr.Discard(), func() {}, fmt.Errorf("unknown log format %q", format)
	}

	switch level {
	case "debug":
		// logr V(1) maps to zap level -1.
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info", "":
		zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	default:
		return logr.Discard(), func() {}, fmt.Errorf("unknown log level %q", level)
	}

	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}
