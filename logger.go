package burrow

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with burrow-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithStructure adds the structure name to every record.
func (l *Logger) WithStructure(name string) *Logger {
	return &Logger{Logger: l.Logger.With("structure", name)}
}

// LogOperation logs a map operation. Failures are errors, successes debug.
func (l *Logger) LogOperation(ctx context.Context, op string, key any, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"key", key,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, op+" completed", "key", key)
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"duration", duration,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed", "duration", duration)
}

// LogBackup logs a backup export.
func (l *Logger) LogBackup(ctx context.Context, name string, rawBytes, storedBytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup completed",
		"name", name,
		"raw_bytes", rawBytes,
		"stored_bytes", storedBytes,
	)
}

// LogRestore logs a backup import.
func (l *Logger) LogRestore(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "restore completed", "name", name)
}
