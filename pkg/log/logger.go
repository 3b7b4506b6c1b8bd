package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	logger *slog.Logger
	mu     sync.RWMutex
)

// ParseLogLevel converts a string log level to a slog.Level.
// Valid values are "debug", "info", "warn", "error".
// Unknown values fall back to debug so that misconfiguration is noisy rather than silent.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// InitLog initializes or reinitializes the logger with the specified log level.
// It can be called more than once; the last call wins.
func InitLog(logLevel string) {
	InitLogWithWriter(logLevel, os.Stdout)
}

// InitLogWithWriter is InitLog with an explicit destination, used by the CLI
// to keep stdout free for command output.
func InitLogWithWriter(logLevel string, w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLogLevel(logLevel),
	})

	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(handler)
}

// GetLog returns the process-wide logger, creating an info-level JSON logger
// on stdout when InitLog has not been called yet.
func GetLog() *slog.Logger {
	mu.RLock()
	if logger != nil {
		defer mu.RUnlock()
		return logger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// With returns a child logger carrying a component attribute.
func With(component string) *slog.Logger {
	return GetLog().With("component", component)
}

// Debug logs a message at Debug level.
func Debug(msg string, args ...any) { GetLog().Debug(msg, args...) }

// Info logs a message at Info level.
func Info(msg string, args ...any) { GetLog().Info(msg, args...) }

// Warn logs a message at Warn level.
func Warn(msg string, args ...any) { GetLog().Warn(msg, args...) }

// Error logs a message at Error level.
func Error(msg string, args ...any) { GetLog().Error(msg, args...) }

// Fatalf logs a formatted message and exits.
func Fatalf(format string, args ...any) {
	GetLog().Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Errorf creates an error with a formatted message and logs it at Error level.
// It is a drop-in replacement for fmt.Errorf, %w verbs included.
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	GetLog().Error(err.Error())
	return err
}
