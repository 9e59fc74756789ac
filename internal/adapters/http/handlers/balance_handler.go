package handlers

import (
	"net/http"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// BalanceHandler serves the caller's credit balance.
type BalanceHandler struct {
	svc ports.BalanceService
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(svc ports.BalanceService) *BalanceHandler {
	return &BalanceHandler{svc: svc}
}

// Balance handles GET /api/v1/balance.
func (h *BalanceHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	b, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToBalanceResponse(b))
}
