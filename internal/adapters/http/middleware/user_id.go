package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
)

// HeaderUserID carries the authenticated caller, set by the upstream gateway.
const HeaderUserID = "X-User-ID"

const maxUserIDLen = 128

type userIDKey struct{}

// WithUserID returns a new context carrying the caller's user id.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext extracts the caller's user id.
// Returns an empty string if none is stored.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// UserID returns middleware that requires the X-User-ID header and stores it
// in the request context. Requests without it are rejected with 401.
func UserID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(HeaderUserID))
			if id == "" || len(id) > maxUserIDLen {
				dto.WriteProblem(w, r, http.StatusUnauthorized, "missing or invalid "+HeaderUserID+" header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), id)))
		})
	}
}
