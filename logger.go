package dexgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with dexgo-specific context.
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
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIndex adds an index name field to the logger.
func (l *Logger) WithIndex(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", name),
	}
}

// WithJob adds a job name field to the logger.
func (l *Logger) WithJob(job string) *Logger {
	return &Logger{
		Logger: l.Logger.With("job", job),
	}
}

// WithKind adds a job kind field to the logger.
func (l *Logger) WithKind(kind string) *Logger {
	return &Logger{
		Logger: l.Logger.With("kind", kind),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogSubmit logs an indexing job submission.
func (l *Logger) LogSubmit(ctx context.Context, job string, inputs int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "submit failed",
			"job", job,
			"inputs", inputs,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "indexing job submitted",
			"job", job,
			"inputs", inputs,
		)
	}
}

// LogStatus logs a status resolution.
func (l *Logger) LogStatus(ctx context.Context, name, status string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "status resolution failed",
			"index", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "status resolved",
			"index", name,
			"status", status,
		)
	}
}

// LogMaterialize logs the collapse of a completed indexing job into a local
// artifact.
func (l *Logger) LogMaterialize(ctx context.Context, name string, ichunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "materialize failed",
			"index", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index materialized",
			"index", name,
			"ichunks", ichunks,
		)
	}
}

// LogReplace logs an artifact upload/replace.
func (l *Logger) LogReplace(ctx context.Context, name string, ichunks int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "replace failed",
			"index", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "index replaced",
			"index", name,
			"ichunks", ichunks,
		)
	}
}

// LogDelete logs an index deletion.
func (l *Logger) LogDelete(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"index", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "index deleted",
			"index", name,
		)
	}
}

// LogExtract logs an ephemeral keys/values/query job.
func (l *Logger) LogExtract(ctx context.Context, name, kind string, records int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "extract job failed",
			"index", name,
			"kind", kind,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "extract job completed",
			"index", name,
			"kind", kind,
			"records", records,
		)
	}
}

// LogClean logs the post-materialization cleanup of a job's bookkeeping.
// Clean failures never fail the materialization, so they log at Warn.
func (l *Logger) LogClean(ctx context.Context, job string, err error) {
	if err != nil {
		l.WarnContext(ctx, "job clean failed",
			"job", job,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "job cleaned",
			"job", job,
		)
	}
}

// LogPurge logs a job purge. Purge failures never fail the primary
// operation, so they log at Warn.
func (l *Logger) LogPurge(ctx context.Context, job string, err error) {
	if err != nil {
		l.WarnContext(ctx, "job purge failed",
			"job", job,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "job purged",
			"job", job,
		)
	}
}
