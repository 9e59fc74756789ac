package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jsamuelsen11/numbers-core/internal/app/compensation"
	"github.com/jsamuelsen11/numbers-core/internal/app/fanout"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

// recoveryLock excludes concurrent sweeps across instances.
const recoveryLock = "recovery"

// Action is what recovery did with one verification.
type Action string

const (
	ActionSkipped     Action = "skipped"
	ActionFailed      Action = "failed"
	ActionResumed     Action = "resumed"
	ActionRescheduled Action = "rescheduled"
	ActionTimedOut    Action = "timed_out"
	ActionRefunded    Action = "refunded"
)

// RecoveryReport summarises one sweep.
type RecoveryReport struct {
	Scanned int            `json:"scanned"`
	Actions map[Action]int `json:"actions"`
	Errors  int            `json:"errors"`
	// Republished counts staged events handed to the publisher.
	Republished int `json:"republished"`
	// Locked is true when another instance held the recovery lock and
	// nothing was scanned.
	Locked bool `json:"locked"`
}

var activeStatuses = []verification.Status{
	verification.StatusInitiated,
	verification.StatusReservingCredit,
	verification.StatusRequestingNumber,
	verification.StatusNumberAssigned,
	verification.StatusPolling,
}

// Recover settles verifications left behind by a crash or restart:
//   - initiated, reserving_credit, requesting_number: release and fail;
//   - number_assigned: resume when the purchase is still being waited on,
//     otherwise cancel the number, release and fail;
//   - polling: reschedule, or time out past the deadline;
//   - ended unsuccessfully with an unrefunded charge: refund.
//
// Events still staged after that, from a publish that failed or never ran,
// are published again.
//
// Verifications in the early statuses that changed within the configured
// stale period are left alone; a live purchase may own them. Errors on
// individual verifications are counted and joined into the returned error.
func (s *Service) Recover(ctx context.Context) (RecoveryReport, error) {
	logger := logging.FromContext(ctx).With(slog.String("operation", "Recover"))
	report := RecoveryReport{Actions: make(map[Action]int)}

	if s.locker != nil {
		lock, err := s.locker.TryAcquire(ctx, recoveryLock, s.cfg.Recovery.LockTTL)
		if errors.Is(err, domain.ErrConflict) {
			logger.InfoContext(ctx, "recovery running elsewhere, skipping")
			report.Locked = true
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("acquiring recovery lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "failed to release recovery lock", slog.Any("error", err))
			}
		}()
	}

	active, err := s.store.ListVerificationsByStatus(ctx, activeStatuses, s.cfg.Recovery.BatchSize)
	if err != nil {
		return report, fmt.Errorf("listing active verifications: %w", err)
	}
	unrefunded, err := s.store.ListAwaitingRefund(ctx, s.cfg.Recovery.BatchSize)
	if err != nil {
		return report, fmt.Errorf("listing unrefunded verifications: %w", err)
	}
	items := make([]verification.Verification, 0, len(active)+len(unrefunded))
	items = append(items, active...)
	items = append(items, unrefunded...)
	report.Scanned = len(items)

	results := fanout.Run(ctx, max(s.cfg.Recovery.Workers, 1), items,
		func(ctx context.Context, v verification.Verification) (Action, error) {
			return s.recoverOne(ctx, &v)
		})

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			report.Errors++
			errs = append(errs, fmt.Errorf("verification %s: %w", items[i].ID, r.Err))
			continue
		}
		report.Actions[r.Value]++
	}

	n, err := s.relay.Flush(ctx)
	report.Republished = n
	if err != nil {
		report.Errors++
		errs = append(errs, fmt.Errorf("republishing staged events: %w", err))
	}

	logger.InfoContext(ctx, "recovery finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("errors", report.Errors),
		slog.Int("republished", report.Republished),
		slog.Any("actions", report.Actions),
	)
	return report, errors.Join(errs...)
}

func (s *Service) recoverOne(ctx context.Context, v *verification.Verification) (Action, error) {
	ctx, logger := logging.With(ctx,
		slog.String("verification_id", v.ID),
		slog.String("status", v.Status.String()),
	)

	var (
		action Action
		err    error
	)
	switch v.Status {
	case verification.StatusInitiated, verification.StatusReservingCredit, verification.StatusRequestingNumber:
		if s.fresh(v) {
			return ActionSkipped, nil
		}
		if v.Status == verification.StatusRequestingNumber {
			logger.WarnContext(ctx, "purchase interrupted during provisioning, a provider number may be orphaned")
		}
		action, err = s.abort(ctx, v, "interrupted before charge")
	case verification.StatusNumberAssigned:
		if s.fresh(v) {
			return ActionSkipped, nil
		}
		action, err = s.recoverAssigned(ctx, v)
	case verification.StatusPolling:
		if !s.now().Before(v.PollDeadline) {
			err = s.OnTimeout(ctx, v.ID)
			action = ActionTimedOut
			break
		}
		if !s.schedule(ctx, v) {
			// Already polling in this process, or shutting down.
			return ActionSkipped, nil
		}
		action = ActionRescheduled
	default:
		if !v.AwaitingRefund() {
			return ActionSkipped, nil
		}
		_, err = s.compensation.Compensate(ctx, v.ID, compensation.ReasonRecovery)
		action = ActionRefunded
	}
	if err != nil {
		return "", err
	}

	s.settleKey(ctx, v)
	return action, nil
}

// recoverAssigned resumes a purchase whose client may still be waiting,
// and fails it otherwise.
func (s *Service) recoverAssigned(ctx context.Context, v *verification.Verification) (Action, error) {
	logger := logging.FromContext(ctx)

	rec, err := s.guard.Lookup(ctx, v.IdempotencyKey)
	waiting := err == nil && rec.Status == idempotency.StatusInProgress
	if waiting && s.now().Before(v.CreatedAt.Add(s.cfg.MaxWait)) && v.ReservationID != "" {
		polled, err := s.commit(ctx, v, v.ReservationID)
		if err == nil {
			s.schedule(ctx, polled)
			logger.InfoContext(ctx, "resumed interrupted purchase")
			return ActionResumed, nil
		}
		logger.WarnContext(ctx, "failed to resume purchase", slog.Any("error", err))
	}

	if gw, err := s.providers.Get(v.Provider); err == nil {
		s.cancelNumber(ctx, gw, v.ProviderRef)
	}
	logger.WarnContext(ctx, "reconciliation required: number assigned but never charged",
		slog.String("provider", v.Provider),
		slog.String("provider_ref", v.ProviderRef),
	)
	return s.abort(ctx, v, "interrupted after number assignment")
}

// abort fails an uncharged verification and releases its reservation.
func (s *Service) abort(ctx context.Context, v *verification.Verification, why string) (Action, error) {
	tr := v.Next(verification.StatusFailed)
	tr.FailureReason = why
	if _, err := s.store.TransitionVerification(ctx, tr); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			// A live purchase or a cancel got there first.
			return ActionSkipped, nil
		}
		return "", fmt.Errorf("failing verification: %w", err)
	}
	if _, err := s.compensation.Compensate(ctx, v.ID, compensation.ReasonRecovery); err != nil {
		return "", err
	}
	return ActionFailed, nil
}

// fresh reports whether v changed too recently to be declared interrupted.
func (s *Service) fresh(v *verification.Verification) bool {
	return s.now().Sub(v.UpdatedAt) < s.cfg.Recovery.StaleAfter
}

// settleKey completes the purchase's idempotency record with the
// verification's current state if the record is still in progress.
func (s *Service) settleKey(ctx context.Context, v *verification.Verification) {
	if v.IdempotencyKey == "" {
		return
	}
	rec, err := s.guard.Lookup(ctx, v.IdempotencyKey)
	if err != nil || rec.Status != idempotency.StatusInProgress {
		return
	}
	if rec.ResourceID != "" && rec.ResourceID != v.ID {
		return
	}
	cur, err := s.store.GetVerification(ctx, v.ID)
	if err != nil {
		return
	}
	s.complete(ctx, v.IdempotencyKey, cur)
}
