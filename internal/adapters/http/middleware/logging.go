package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

// Logging attaches a request-scoped logger to the context and writes one
// line when the request finishes. 5xx responses log at error, 4xx at warn.
// At debug level the redacted request headers are logged as well.
//
// The caller is read from the X-User-ID header rather than the context
// because UserID runs later, inside the /api/v1 group.
func Logging(logger *slog.Logger, redactor *HeaderRedactor) func(http.Handler) http.Handler {
	if redactor == nil {
		redactor = NewHeaderRedactor()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()

			reqLogger := logger.With(
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("correlation_id", CorrelationIDFromContext(ctx)),
			)
			if user := r.Header.Get(HeaderUserID); user != "" {
				reqLogger = reqLogger.With(slog.String("user_id", user))
			}
			ctx = logging.WithLogger(ctx, reqLogger)

			if reqLogger.Enabled(ctx, slog.LevelDebug) {
				reqLogger.LogAttrs(ctx, slog.LevelDebug, "request headers", redactor.Attrs(r.Header)...)
			}

			rec := record(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			reqLogger.LogAttrs(ctx, levelFor(rec.status), "request completed",
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
