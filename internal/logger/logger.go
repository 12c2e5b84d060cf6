package logger

import (
	"log/slog"
	"os"
)

var (
	globalLogger *slog.Logger
	verboseMode  bool
)

// Init initializes the global logger. The daemon always logs INFO and above;
// verbose mode additionally enables DEBUG output.
func Init(verbose bool) {
	verboseMode = verbose

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	globalLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(globalLogger)
}

func logger() *slog.Logger {
	if globalLogger == nil {
		Init(false)
	}
	return globalLogger
}

// Debug logs debug messages only in verbose mode
func Debug(msg string, args ...any) {
	if verboseMode {
		logger().Debug(msg, args...)
	}
}

// Info logs informational messages
func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

// Warn logs warning messages
func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

// Error logs error messages
func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

// IsVerbose returns whether verbose mode is enabled
func IsVerbose() bool {
	return verboseMode
}
