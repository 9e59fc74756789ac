package handlers

import (
	"net/http"
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

const (
	// HeaderIdempotencyKey scopes a purchase so retries return the first result.
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed marks a response served from the idempotency cache.
	HeaderReplayed = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
)

// VerificationHandler handles purchase, lookup and cancellation of
// verification numbers.
type VerificationHandler struct {
	svc ports.PurchaseService
}

// NewVerificationHandler creates a new VerificationHandler with the given
// purchase service port.
func NewVerificationHandler(svc ports.PurchaseService) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// Purchase handles POST /api/v1/verifications. A new purchase answers 201;
// a replay of a completed key answers 200 with the Idempotent-Replayed header.
func (h *VerificationHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if err := validateIdempotencyKey(key); err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	var req dto.PurchaseRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	req.Normalize()

	res, err := h.svc.Purchase(r.Context(), ports.PurchaseRequest{
		UserID:         userID,
		IdempotencyKey: key,
		Provider:       req.Provider,
		Service:        req.Service,
		Country:        req.Country,
	})
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set(HeaderReplayed, "true")
		status = http.StatusOK
	}
	writeJSON(w, status, dto.ToVerificationResponse(&res.Verification))
}

// Get handles GET /api/v1/verifications/{id}.
func (h *VerificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, err := pathParam(r, "id")
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	v, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVerificationResponse(v))
}

// Cancel handles POST /api/v1/verifications/{id}/cancel.
func (h *VerificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, err := pathParam(r, "id")
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	v, err := h.svc.Cancel(r.Context(), userID, id)
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToVerificationResponse(v))
}

func validateIdempotencyKey(key string) error {
	switch {
	case key == "":
		return &domain.ValidationError{Fields: map[string]string{"Idempotency-Key": "header is required"}}
	case len(key) > maxIdempotencyKeyLen:
		return &domain.ValidationError{Fields: map[string]string{"Idempotency-Key": "must be at most 255 characters"}}
	}
	return nil
}
