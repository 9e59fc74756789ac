// Package webhook defines inbound payment gateway events and the record
// used to deduplicate their deliveries.
package webhook

import (
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
)

// Payment event types understood by the credit path.
const (
	TypePaymentCompleted = "payment.completed"
)

// EventStatus records what happened to a delivered webhook event.
type EventStatus string

const (
	StatusProcessed EventStatus = "processed"
	StatusIgnored   EventStatus = "ignored"
)

// PaymentEvent is the parsed webhook body.
type PaymentEvent struct {
	EventID   string
	Type      string
	Amount    ledger.Cents
	Reference string
}

// IsCredit reports whether the event should credit a balance.
func (e *PaymentEvent) IsCredit() bool {
	return e.Type == TypePaymentCompleted || e.Type == "payment_completed"
}

// Event is the stored dedup row for a provider event id.
type Event struct {
	ID            string
	Type          string
	Signature     string
	PayloadHash   string
	Status        EventStatus
	TransactionID string
	ProcessedAt   time.Time
}
