package cmd

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func setupLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(levelFor(logLevel, GetDebug(), GetVerbose()))
	config.Development = GetDebug()

	return config.Build()
}

// levelFor resolves the effective log level. --debug always wins; --verbose
// only lowers the default level.
func levelFor(level string, debugFlag, verboseFlag bool) zapcore.Level {
	if debugFlag {
		return zap.DebugLevel
	}

	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "info", "":
		if verboseFlag {
			return zap.DebugLevel
		}
		return zap.InfoLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
