package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

const relayBatchSize = 100

// Relay moves events staged in the database to a publisher. Services stage
// an event in the transaction that caused it and call Emit after commit;
// whatever Emit could not hand over stays staged until Redeliver or Flush
// picks it up. Staged events keep their id, so subscribers discard repeats.
//
// A Relay with a nil publisher stages nothing and publishes nothing.
type Relay struct {
	store     ports.Store
	publisher ports.EventPublisher
}

// NewRelay creates a Relay over store.
func NewRelay(store ports.Store, publisher ports.EventPublisher) *Relay {
	return &Relay{store: store, publisher: publisher}
}

func (r *Relay) enabled() bool {
	return r != nil && r.publisher != nil
}

// Stage records ev in tx. ev must carry its final id and time. Staging an
// id twice is a no-op.
func (r *Relay) Stage(ctx context.Context, tx ports.Store, ev event.Event) error {
	if !r.enabled() {
		return nil
	}
	if ev.ID == "" {
		return errors.New("events: staged event needs an id")
	}
	if err := tx.StageEvent(ctx, ev); err != nil && !errors.Is(err, domain.ErrDuplicate) {
		return fmt.Errorf("staging %s: %w", ev.Type, err)
	}
	return nil
}

// Emit publishes a committed event and clears its staged copy. Failures are
// logged; the staged copy is kept for a later attempt.
func (r *Relay) Emit(ctx context.Context, ev event.Event) {
	if !r.enabled() {
		return
	}
	if err := r.emit(ctx, ev); err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to publish event, kept for redelivery",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}

// Redeliver publishes the staged event id if it is still staged.
func (r *Relay) Redeliver(ctx context.Context, id string) {
	if !r.enabled() {
		return
	}
	ev, err := r.store.GetStagedEvent(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return
	}
	if err != nil {
		logging.FromContext(ctx).ErrorContext(ctx, "failed to read staged event",
			slog.String("event_id", id),
			slog.Any("error", err),
		)
		return
	}
	r.Emit(ctx, ev)
}

// Flush publishes every staged event in staging order and returns how many
// were handed over. It stops at the first publish failure.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if !r.enabled() {
		return 0, nil
	}

	total := 0
	for ctx.Err() == nil {
		staged, err := r.store.ListStagedEvents(ctx, relayBatchSize)
		if err != nil {
			return total, fmt.Errorf("listing staged events: %w", err)
		}
		for _, ev := range staged {
			if err := r.emit(ctx, ev); err != nil {
				return total, err
			}
			total++
		}
		if len(staged) < relayBatchSize {
			return total, nil
		}
	}
	return total, ctx.Err()
}

func (r *Relay) emit(ctx context.Context, ev event.Event) error {
	if err := r.publisher.Publish(ctx, ev); err != nil {
		return fmt.Errorf("publishing %s: %w", ev.ID, err)
	}
	if err := r.store.DeleteStagedEvent(ctx, ev.ID); err != nil {
		return fmt.Errorf("clearing staged %s: %w", ev.ID, err)
	}
	return nil
}
