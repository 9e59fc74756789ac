package ports

import (
	"context"

	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

// PurchaseRequest is a user's request to buy a verification number.
type PurchaseRequest struct {
	UserID         string
	IdempotencyKey string
	Provider       string
	Service        string
	Country        string
}

// PurchaseResult is the outcome of a purchase. Replayed is true when the
// result came from the idempotency cache.
type PurchaseResult struct {
	Verification verification.Verification `json:"verification"`
	Replayed     bool                      `json:"-"`
}

// PurchaseService defines the service port for verification purchases.
// Implemented by the purchase orchestrator; called by HTTP handlers.
type PurchaseService interface {
	// Purchase reserves credit, provisions a number and starts polling.
	// Returns *domain.InsufficientBalanceError, *domain.CircuitOpenError,
	// *domain.IdempotencyConflictError or a provider error.
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)

	// Get returns a verification owned by userID.
	// Returns domain.ErrNotFound for unknown ids and for other users' ids.
	Get(ctx context.Context, userID, id string) (*verification.Verification, error)

	// Cancel stops a verification and compensates any committed charge.
	Cancel(ctx context.Context, userID, id string) (*verification.Verification, error)
}

// BalanceService exposes read access to credit balances.
type BalanceService interface {
	Balance(ctx context.Context, userID string) (ledger.Balance, error)
}

// WebhookOutcome describes how an inbound webhook was handled.
type WebhookOutcome struct {
	EventID   string
	Duplicate bool
	Ignored   bool
}

// WebhookService authenticates and applies inbound payment webhooks.
type WebhookService interface {
	// Process returns *domain.InvalidSignatureError for bad signatures.
	Process(ctx context.Context, body []byte, signature string) (WebhookOutcome, error)
}
