// Package log provides the structured logging interface used across fraudkit.
//
// The Logger interface is slog-compatible and has two backends: a JSON
// handler built on log/slog and a human-readable console writer built on
// zerolog. Packages obtain a logger with GetLogger or GetLoggerWithName and
// attach context with With:
//
//	logger := log.GetLoggerWithName("pipeline").With(
//	    log.OperationKey, log.OperationTrain,
//	)
//	logger.Info("fold finished",
//	    log.FoldKey, 1,
//	    log.MacroF1Key, 0.74,
//	)
//
// Passing an error as the first field of Error attaches it under the
// "error" key together with its stack trace.

package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
type Logger interface {
	// Debug logs a debug-level message with optional key-value fields.
	Debug(msg string, fields ...any)

	// Info logs an info-level message with optional key-value fields.
	Info(msg string, fields ...any)

	// Warn logs a warning-level message with optional key-value fields.
	Warn(msg string, fields ...any)

	// Error logs an error-level message. If the first field is an error it
	// is recorded under ErrAttrKey and the remaining fields are key-value pairs.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every record.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers. The package-level functions delegate to
// the provider installed with SetProvider.
type LoggerProvider interface {
	GetLogger() Logger
	GetLoggerWithName(name string) Logger
	SetLevel(level Level)
}
