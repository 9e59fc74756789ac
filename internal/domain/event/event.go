// Package event defines the domain events fanned out to notification
// channels.
package event

import (
	"errors"
	"time"
)

// ErrUndeliverable marks a delivery failure that retrying cannot fix, such
// as a receiver rejecting the payload. Channels wrap it.
var ErrUndeliverable = errors.New("event: undeliverable")

// Type names a domain event.
type Type string

const (
	PaymentCompleted      Type = "payment_completed"
	VerificationCompleted Type = "verification_completed"
	RefundIssued          Type = "refund_issued"
	SMSReceived           Type = "sms_received"
)

// Event is one domain occurrence. ID is the dedup id subscribers use to
// discard repeats; OrderingKey groups events whose relative order matters
// (a verification or transaction id). Sequence is assigned by the outbox.
type Event struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	UserID      string            `json:"user_id"`
	OrderingKey string            `json:"ordering_key"`
	Sequence    uint64            `json:"sequence"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Data        map[string]string `json:"data,omitempty"`
}
