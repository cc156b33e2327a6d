// Package logger provides a logging capability for roster-mirror.
package logger

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

// Initialize sets up the logging system. By default logs are structured
// JSON on stderr; setting the "unstructured-logs" viper key (or the
// ROSTER_UNSTRUCTURED_LOGS environment variable) switches to a
// human-readable console encoder for interactive use.
func Initialize() {
	level := zapcore.InfoLevel
	if viper.GetBool("debug") {
		level = zapcore.DebugLevel
	}

	var cfg zap.Config
	if unstructuredLogs() {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Logging must never take the process down before it even starts;
		// fall back to a no-op logger.
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		zl = zap.NewNop()
	}
	log = zl.Sugar()
}

func unstructuredLogs() bool {
	if viper.GetBool("unstructured-logs") {
		return true
	}
	return os.Getenv("ROSTER_UNSTRUCTURED_LOGS") == "true"
}

func ensure() *zap.SugaredLogger {
	if log == nil {
		Initialize()
	}
	return log
}

// Sync flushes any buffered log entries.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

// Debug logs at debug level with optional structured key-value pairs.
func Debug(msg string, keysAndValues ...any) { ensure().Debugw(msg, keysAndValues...) }

// Info logs at info level with optional structured key-value pairs.
func Info(msg string, keysAndValues ...any) { ensure().Infow(msg, keysAndValues...) }

// Warn logs at warn level with optional structured key-value pairs.
func Warn(msg string, keysAndValues ...any) { ensure().Warnw(msg, keysAndValues...) }

// Error logs at error level with optional structured key-value pairs.
func Error(msg string, keysAndValues ...any) { ensure().Errorw(msg, keysAndValues...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { ensure().Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { ensure().Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { ensure().Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { ensure().Errorf(format, args...) }

// Fatalf logs a formatted message at fatal level and exits.
func Fatalf(format string, args ...any) { ensure().Fatalf(format, args...) }
