package ports

import (
	"context"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/domain/webhook"
)

// LedgerRepository persists balances, reservations and transactions.
type LedgerRepository interface {
	// GetBalance returns the user's balance row. A user without a row has a
	// zero balance at version 0.
	GetBalance(ctx context.Context, userID string) (ledger.Balance, error)

	// SwapBalance sets the balance if the stored version equals
	// expectedVersion, incrementing the version. Version 0 creates the row.
	// Returns domain.ErrVersionConflict when the version moved.
	SwapBalance(ctx context.Context, userID string, expectedVersion int64, amount ledger.Cents) error

	// InsertTransaction records a committed monetary effect.
	// Returns domain.ErrDuplicate when the idempotency key or the
	// (type, verification) pair already exists.
	InsertTransaction(ctx context.Context, tx *ledger.Transaction) error

	// GetTransactionByKey returns domain.ErrNotFound when absent.
	GetTransactionByKey(ctx context.Context, key string) (*ledger.Transaction, error)

	// ListTransactions returns a user's transactions, oldest first.
	ListTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error)

	InsertReservation(ctx context.Context, r *ledger.Reservation) error
	GetReservation(ctx context.Context, id string) (*ledger.Reservation, error)

	// UpdateReservationStatus moves a reservation from -> to.
	// Returns domain.ErrVersionConflict when it is no longer in from.
	UpdateReservationStatus(ctx context.Context, id string, from, to ledger.ReservationStatus) error
}

// VerificationRepository persists verifications. All status changes go
// through TransitionVerification.
type VerificationRepository interface {
	CreateVerification(ctx context.Context, v *verification.Verification) error

	// GetVerification returns domain.ErrNotFound when absent.
	GetVerification(ctx context.Context, id string) (*verification.Verification, error)

	// TransitionVerification applies t if the row still has t.From and
	// t.ExpectedVersion, returning the updated verification.
	// Returns domain.ErrVersionConflict when another transition won.
	TransitionVerification(ctx context.Context, t verification.Transition) (*verification.Verification, error)

	// ListVerificationsByStatus returns verifications in any of statuses,
	// oldest first, up to limit.
	ListVerificationsByStatus(ctx context.Context, statuses []verification.Status, limit int) ([]verification.Verification, error)

	// ListAwaitingRefund returns unsuccessful verifications whose charge was
	// committed but not refunded, oldest first, up to limit.
	ListAwaitingRefund(ctx context.Context, limit int) ([]verification.Verification, error)
}

// WebhookRepository persists processed webhook events for deduplication.
type WebhookRepository interface {
	// InsertWebhookEvent returns domain.ErrDuplicate for a known event id.
	InsertWebhookEvent(ctx context.Context, e *webhook.Event) error

	// GetWebhookEvent returns domain.ErrNotFound when absent.
	GetWebhookEvent(ctx context.Context, id string) (*webhook.Event, error)
}

// EventRepository stages domain events in the transaction that caused them.
// A staged event is deleted once it reached the publisher, so rows left
// behind are events whose publish failed or was interrupted.
type EventRepository interface {
	// StageEvent stores ev. Returns domain.ErrDuplicate for a known id.
	StageEvent(ctx context.Context, ev event.Event) error

	// GetStagedEvent returns domain.ErrNotFound when absent.
	GetStagedEvent(ctx context.Context, id string) (event.Event, error)

	// ListStagedEvents returns up to limit staged events in staging order.
	ListStagedEvents(ctx context.Context, limit int) ([]event.Event, error)

	// DeleteStagedEvent removes the event. Deleting a missing id is not an
	// error.
	DeleteStagedEvent(ctx context.Context, id string) error
}

// IdempotencyStore persists idempotency records. Implemented by the SQL
// stores and by the Redis adapter.
type IdempotencyStore interface {
	// CreateRecord inserts an in-progress record.
	// Returns domain.ErrDuplicate when the key exists.
	CreateRecord(ctx context.Context, r *idempotency.Record) error

	// GetRecord returns domain.ErrNotFound when absent.
	GetRecord(ctx context.Context, key string) (*idempotency.Record, error)

	// AttachResource stores the id of the resource the operation created.
	AttachResource(ctx context.Context, key, resourceID string) error

	// CompleteRecord stores the result of an in-progress record.
	// Returns domain.ErrVersionConflict if the record is not in progress.
	CompleteRecord(ctx context.Context, key string, result []byte, expiresAt time.Time) error

	// DeleteRecord removes the record. Deleting a missing key is not an error.
	DeleteRecord(ctx context.Context, key string) error

	// PurgeExpired removes records whose expiry is before now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store is the transactional persistence port. Repositories obtained inside
// WithinTx share one database transaction; nested calls join the outer one.
type Store interface {
	LedgerRepository
	VerificationRepository
	WebhookRepository
	EventRepository
	IdempotencyStore
	HealthChecker

	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close() error
}
