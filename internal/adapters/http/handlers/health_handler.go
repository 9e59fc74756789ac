package handlers

import (
	"net/http"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

const (
	statusOK       = "ok"
	statusReady    = "ready"
	statusNotReady = "not_ready"
)

// BreakerSnapshotter reports the circuit breaker of every provider.
type BreakerSnapshotter interface {
	Snapshots() []domain.CircuitBreakerState
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	registry ports.HealthRegistry
	breakers BreakerSnapshotter
}

// NewHealthHandler returns a HealthHandler. A nil breakers omits breaker
// state from readiness.
func NewHealthHandler(registry ports.HealthRegistry, breakers BreakerSnapshotter) *HealthHandler {
	return &HealthHandler{registry: registry, breakers: breakers}
}

// Liveness handles GET /health/live. The process answering is enough.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	noStore(w)
	writeJSON(w, http.StatusOK, dto.HealthResponse{Status: statusOK})
}

// Readiness handles GET /health/ready: 503 as soon as one registered check
// fails. Provider breaker state is reported alongside the checks.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: statusReady, Checks: map[string]string{}}
	code := http.StatusOK

	for name, err := range h.registry.CheckAll(r.Context()) {
		if err == nil {
			resp.Checks[name] = statusOK
			continue
		}
		resp.Checks[name] = err.Error()
		resp.Status, code = statusNotReady, http.StatusServiceUnavailable
	}
	if h.breakers != nil {
		resp.Breakers = dto.ToBreakerResponses(h.breakers.Snapshots())
	}

	noStore(w)
	writeJSON(w, code, resp)
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}
