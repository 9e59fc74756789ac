package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

const (
	defaultSignatureHeader = "X-Signature"
	defaultWebhookBodySize = 64 << 10
)

// WebhookHandler accepts signed payment gateway callbacks.
type WebhookHandler struct {
	svc          ports.WebhookService
	header       string
	maxBodyBytes int64
}

// NewWebhookHandler creates a new WebhookHandler. The signature is read from
// header, and bodies larger than maxBodyBytes are rejected with 413.
func NewWebhookHandler(svc ports.WebhookService, header string, maxBodyBytes int64) *WebhookHandler {
	if header == "" {
		header = defaultSignatureHeader
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultWebhookBodySize
	}
	return &WebhookHandler{svc: svc, header: header, maxBodyBytes: maxBodyBytes}
}

// Payments handles POST /webhooks/payments. The raw body is passed through
// unparsed so the signature is verified over the exact bytes received.
func (h *WebhookHandler) Payments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeTooLarge(w, r)
			return
		}
		dto.WriteErrorResponse(w, r, &domain.ValidationError{
			Fields: map[string]string{"body": "unreadable"},
		})
		return
	}

	out, err := h.svc.Process(r.Context(), body, r.Header.Get(h.header))
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToWebhookResponse(out))
}

func writeTooLarge(w http.ResponseWriter, r *http.Request) {
	resp := dto.ErrorResponse{
		Type:     "about:blank",
		Title:    http.StatusText(http.StatusRequestEntityTooLarge),
		Status:   http.StatusRequestEntityTooLarge,
		Instance: r.RequestURI,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp)
}
