// Package compensation returns money for verifications that ended without
// a delivered message. Refunds, the transition to refunded and the
// refund_issued event commit in one database transaction, so a verification
// is refunded at most once and its event survives a failed publish.
package compensation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/app/events"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	domainledger "github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Reason labels why a verification is compensated.
type Reason string

const (
	ReasonTimeout         Reason = "timeout"
	ReasonCancelled       Reason = "cancelled"
	ReasonProviderFailure Reason = "provider_failure"
	ReasonRecovery        Reason = "recovery"
)

// Service issues refunds and releases reservations.
type Service struct {
	store   ports.Store
	ledger  *ledger.Service
	relay   *events.Relay
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a compensation service. A nil m disables metrics.
func New(store ports.Store, l *ledger.Service, publisher ports.EventPublisher, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		ledger:  l,
		relay:   events.NewRelay(store, publisher),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Compensate settles an unsuccessful verification:
//   - refunded: the current state is returned and an unpublished
//     refund_issued event is published again;
//   - completed or still active: domain.ErrConflict;
//   - never charged: any held reservation is released;
//   - charged: the charge is refunded and the verification moves to refunded.
func (s *Service) Compensate(ctx context.Context, verificationID string, reason Reason) (*verification.Verification, error) {
	logger := logging.FromContext(ctx).With(
		slog.String("operation", "Compensate"),
		slog.String("verification_id", verificationID),
		slog.String("reason", string(reason)),
	)

	v, err := s.store.GetVerification(ctx, verificationID)
	if err != nil {
		return nil, fmt.Errorf("loading verification: %w", err)
	}

	switch {
	case v.Status == verification.StatusRefunded:
		s.metrics.CompensationRecorded(string(reason), "noop")
		s.relay.Redeliver(ctx, RefundEventID(v.ID))
		return v, nil
	case v.Status == verification.StatusCompleted || v.Status.IsActive():
		return nil, fmt.Errorf("%w: verification %s is %s", domain.ErrConflict, v.ID, v.Status)
	case !v.Charged():
		if v.ReservationID != "" {
			if err := s.ledger.Release(ctx, v.ReservationID); err != nil {
				s.metrics.CompensationRecorded(string(reason), "error")
				logger.ErrorContext(ctx, "failed to release reservation", slog.Any("error", err))
				return nil, fmt.Errorf("releasing reservation: %w", err)
			}
		}
		s.metrics.CompensationRecorded(string(reason), "released")
		return v, nil
	}

	var (
		refunded *verification.Verification
		issued   event.Event
	)
	hook := func(ctx context.Context, tx ports.Store, t *domainledger.Transaction) error {
		cur, err := tx.GetVerification(ctx, v.ID)
		if err != nil {
			return err
		}
		if !cur.Status.NeedsCompensation() {
			return fmt.Errorf("%w: verification %s is %s", domain.ErrVersionConflict, cur.ID, cur.Status)
		}
		tr := cur.Next(verification.StatusRefunded)
		tr.RefundTransactionID = t.ID
		if refunded, err = tx.TransitionVerification(ctx, tr); err != nil {
			return err
		}

		issued = event.Event{
			ID:          RefundEventID(v.ID),
			Type:        event.RefundIssued,
			UserID:      v.UserID,
			OrderingKey: v.ID,
			OccurredAt:  s.now(),
			Data: map[string]string{
				"verification_id": v.ID,
				"transaction_id":  t.ID,
				"amount":          t.Amount.String(),
				"reason":          string(reason),
			},
		}
		return s.relay.Stage(ctx, tx, issued)
	}

	refund, created, err := s.ledger.Refund(ctx, v.UserID, v.Cost, v.ChargeTransactionID, v.ID, hook)
	if errors.Is(err, domain.ErrVersionConflict) {
		// Another compensator won; report its result.
		cur, gerr := s.store.GetVerification(ctx, v.ID)
		if gerr == nil && cur.Status == verification.StatusRefunded {
			s.metrics.CompensationRecorded(string(reason), "noop")
			s.relay.Redeliver(ctx, RefundEventID(v.ID))
			return cur, nil
		}
		return nil, fmt.Errorf("%w: verification %s changed during refund", domain.ErrConflict, v.ID)
	}
	if err != nil {
		s.metrics.CompensationRecorded(string(reason), "error")
		logger.ErrorContext(ctx, "refund failed", slog.Any("error", err))
		return nil, fmt.Errorf("refunding charge: %w", err)
	}

	if !created {
		s.metrics.CompensationRecorded(string(reason), "noop")
		s.relay.Redeliver(ctx, RefundEventID(v.ID))
		return s.store.GetVerification(ctx, v.ID)
	}

	s.metrics.CompensationRecorded(string(reason), "refunded")
	s.metrics.RefundIssued(string(reason))
	logger.InfoContext(ctx, "refund issued",
		slog.String("transaction_id", refund.ID),
		slog.String("amount", refund.Amount.String()),
	)

	s.relay.Emit(ctx, issued)
	return refunded, nil
}

// RefundEventID is the dedup id of a verification's refund_issued event.
func RefundEventID(verificationID string) string {
	return verificationID + ":refund"
}
