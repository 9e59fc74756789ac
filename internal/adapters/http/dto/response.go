// Package dto provides HTTP request/response data transfer objects and
// RFC 9457 Problem Details error responses for the inbound HTTP adapter layer.
package dto

import (
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// VerificationResponse represents a single verification in HTTP responses.
// Amounts are decimal strings in major units.
type VerificationResponse struct {
	ID            string           `json:"id"`
	Status        string           `json:"status"`
	Provider      string           `json:"provider"`
	Service       string           `json:"service"`
	Country       string           `json:"country"`
	PhoneNumber   string           `json:"phone_number,omitempty"`
	Cost          string           `json:"cost"`
	Message       *MessageResponse `json:"message,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	Refunded      bool             `json:"refunded"`
	ExpiresAt     string           `json:"expires_at,omitempty"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

// MessageResponse carries the received verification code.
type MessageResponse struct {
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}

// BalanceResponse represents a user's credit balance.
type BalanceResponse struct {
	UserID    string `json:"user_id"`
	Balance   string `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// WebhookResponse acknowledges an inbound webhook delivery.
type WebhookResponse struct {
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

// HealthResponse is the body of the liveness and readiness probes. Checks
// maps each dependency to "ok" or its error text.
type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks,omitempty"`
	Breakers []BreakerResponse `json:"breakers,omitempty"`
}

// BreakerResponse reports the circuit breaker of one provider.
type BreakerResponse struct {
	Provider      string `json:"provider"`
	State         string `json:"state"`
	FailureCount  uint32 `json:"failure_count"`
	LastFailureAt string `json:"last_failure_at,omitempty"`
	NextRetryAt   string `json:"next_retry_at,omitempty"`
}

// ToVerificationResponse converts a domain Verification to an HTTP response DTO.
func ToVerificationResponse(v *verification.Verification) VerificationResponse {
	resp := VerificationResponse{
		ID:            v.ID,
		Status:        v.Status.String(),
		Provider:      v.Provider,
		Service:       v.Service,
		Country:       v.Country,
		PhoneNumber:   v.PhoneNumber,
		Cost:          v.Cost.String(),
		FailureReason: v.FailureReason,
		Refunded:      v.RefundTransactionID != "",
		ExpiresAt:     formatTime(v.PollDeadline),
		CreatedAt:     v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     v.UpdatedAt.Format(time.RFC3339),
	}
	if v.MessageCode != "" || v.MessageText != "" {
		resp.Message = &MessageResponse{Code: v.MessageCode, Text: v.MessageText}
	}
	return resp
}

// ToBalanceResponse converts a ledger Balance to an HTTP response DTO.
func ToBalanceResponse(b ledger.Balance) BalanceResponse {
	return BalanceResponse{
		UserID:    b.UserID,
		Balance:   b.Amount.String(),
		UpdatedAt: formatTime(b.UpdatedAt),
	}
}

// ToWebhookResponse converts a webhook outcome to an HTTP response DTO.
func ToWebhookResponse(o ports.WebhookOutcome) WebhookResponse {
	return WebhookResponse{EventID: o.EventID, Duplicate: o.Duplicate, Ignored: o.Ignored}
}

// ToBreakerResponses converts breaker snapshots to HTTP response DTOs.
func ToBreakerResponses(states []domain.CircuitBreakerState) []BreakerResponse {
	out := make([]BreakerResponse, len(states))
	for i, s := range states {
		out[i] = BreakerResponse{
			Provider:      s.Provider,
			State:         string(s.State),
			FailureCount:  s.FailureCount,
			LastFailureAt: formatTime(s.LastFailureAt),
			NextRetryAt:   formatTime(s.NextRetryAt),
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
