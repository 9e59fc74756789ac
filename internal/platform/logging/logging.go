// Package logging builds the service's slog loggers and carries them through
// a context.Context.
//
// Application services never hold a logger field. They pull one from the
// context, which the HTTP middleware and the background workers enrich with
// request_id, correlation_id, user_id and verification_id:
//
//	logger := logging.FromContext(ctx).With(slog.String("operation", "Refund"))
//	logger.ErrorContext(ctx, "refund failed",
//	    slog.String("verification_id", id),
//	    slog.Any("error", err),
//	)
//
// Every handler built by New runs attributes through the masq redactor, so
// secrets and phone numbers never reach the output even when a call site
// forgets to mask them.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// Output formats accepted by New.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// New returns a logger writing to w at the given level ("debug", "info",
// "warn" or "error"; anything else means info). format selects text output
// for FormatText and JSON otherwise. Debug loggers also record the source
// location.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl <= slog.LevelDebug,
		ReplaceAttr: newRedactAttr(),
	}

	if format == FormatText {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a configured level name to a slog.Level, falling back to
// info for empty or unknown names.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default when there
// is none.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

// With enriches the context logger with attrs and stores the result back in
// a child context. Workers use it to tag everything below them with the
// verification they are driving.
func With(ctx context.Context, attrs ...any) (context.Context, *slog.Logger) {
	logger := FromContext(ctx).With(attrs...)
	return WithLogger(ctx, logger), logger
}
