package ports

import (
	"context"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
)

// Channel is a notification subscriber (toast, sound, webhook, push).
// Implementations must be safe for concurrent use. Deliver wraps
// event.ErrUndeliverable when a retry cannot succeed.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev event.Event) error
}

// EventPublisher accepts domain events for at-least-once delivery.
type EventPublisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// Outbox durably stores events until every channel acknowledged them.
type Outbox interface {
	// Append stores ev with the next sequence number and marks it pending
	// for each channel. The stored event is returned.
	Append(ctx context.Context, ev event.Event, channels []string) (event.Event, error)

	// Pending returns up to limit unacknowledged events for channel with a
	// sequence above after, in sequence order.
	Pending(ctx context.Context, channel string, after uint64, limit int) ([]event.Event, error)

	// Ack marks the event delivered to channel. Events with no pending
	// channels are removed.
	Ack(ctx context.Context, channel string, sequence uint64) error

	// DeadLetter keeps a copy of the event for channel aside and then acks
	// it, so it no longer holds up delivery.
	DeadLetter(ctx context.Context, channel string, sequence uint64, reason string) error

	// DeadLetters returns the events dead-lettered for channel, oldest
	// first.
	DeadLetters(ctx context.Context, channel string) ([]DeadLetter, error)

	Close() error
}

// DeadLetter is an event a channel gave up on.
type DeadLetter struct {
	Event  event.Event `json:"event"`
	Reason string      `json:"reason"`
	At     time.Time   `json:"at"`
}
