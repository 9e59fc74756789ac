// Package http is the inbound HTTP adapter: the chi router and the server
// lifecycle. Every error body it produces, including routing misses, is
// application/problem+json.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/handlers"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/middleware"
)

// defaultMetricsPath is used when Handlers.MetricsPath is empty.
const defaultMetricsPath = "/metrics"

// Handlers groups the endpoint handlers mounted by NewRouter. Metrics is
// optional; when nil no scrape endpoint is registered.
type Handlers struct {
	Verifications *handlers.VerificationHandler
	Balance       *handlers.BalanceHandler
	Webhooks      *handlers.WebhookHandler
	Health        *handlers.HealthHandler
	Metrics       http.Handler
	MetricsPath   string
}

// NewRouter creates an HTTP handler with all application routes registered.
// Middleware is applied globally in the order given. The /api/v1 routes also
// require the X-User-ID header.
func NewRouter(h Handlers, middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		dto.WriteProblem(w, r, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		dto.WriteProblem(w, r, http.StatusMethodNotAllowed, r.Method+" is not supported on "+r.URL.Path)
	})

	// Health endpoints (outside /api/v1 prefix).
	r.Get("/health/live", h.Health.Liveness)
	r.Get("/health/ready", h.Health.Readiness)

	if h.Metrics != nil {
		path := h.MetricsPath
		if path == "" {
			path = defaultMetricsPath
		}
		r.Method(http.MethodGet, path, h.Metrics)
	}

	// Gateway callbacks authenticate by signature, not by user.
	r.Post("/webhooks/payments", h.Webhooks.Payments)

	// API v1 routes.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.UserID())

		r.Post("/verifications", h.Verifications.Purchase)
		r.Get("/verifications/{id}", h.Verifications.Get)
		r.Post("/verifications/{id}/cancel", h.Verifications.Cancel)

		r.Get("/balance", h.Balance.Balance)
	})

	return r
}
