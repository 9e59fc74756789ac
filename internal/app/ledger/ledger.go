// Package ledger implements the credit ledger: reservations against a
// user's balance, charges, refunds and top-up credits. Every balance change
// is a compare-and-swap on the balance row's version, retried with jittered
// backoff, and every transaction is unique per idempotency key.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.BalanceService = (*Service)(nil)

// Hook runs inside the database transaction that records t. Returning an
// error rolls back the whole operation. Hooks must use tx, never the
// service's own store.
type Hook func(ctx context.Context, tx ports.Store, t *ledger.Transaction) error

// ReservationHook runs inside the database transaction that creates r.
type ReservationHook func(ctx context.Context, tx ports.Store, r *ledger.Reservation) error

// hookError marks a failure raised by a Hook so it is never mistaken for a
// balance version conflict and retried.
type hookError struct{ err error }

func (e *hookError) Error() string { return "ledger hook: " + e.err.Error() }
func (e *hookError) Unwrap() error { return e.err }

// Service is the credit ledger.
type Service struct {
	store   ports.Store
	policy  retry.Policy
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a ledger over store. A nil m disables metrics.
func New(store ports.Store, cfg config.LedgerConfig, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		policy:  retry.FromConfig(cfg.Retry),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Balance returns the user's current balance.
func (s *Service) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	b, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("reading balance: %w", err)
	}
	return b, nil
}

// Transactions returns the user's transactions, oldest first.
func (s *Service) Transactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	return s.store.ListTransactions(ctx, userID)
}

// Reserve deducts amount from the user's balance and records a held
// reservation for verificationID. It returns *domain.InsufficientBalanceError
// when the balance is too low; nothing changes in that case.
func (s *Service) Reserve(ctx context.Context, userID string, amount ledger.Cents, verificationID string) (*ledger.Reservation, error) {
	return s.ReserveWith(ctx, userID, amount, verificationID, nil)
}

// ReserveWith is Reserve with a hook that runs in the reservation's database
// transaction. A hook error undoes the reservation.
func (s *Service) ReserveWith(ctx context.Context, userID string, amount ledger.Cents, verificationID string, hook ReservationHook) (*ledger.Reservation, error) {
	if amount <= 0 {
		return nil, &domain.ValidationError{Fields: map[string]string{"amount": domain.MsgPositive}}
	}

	var res *ledger.Reservation
	err := s.mutate(ctx, "reserve", userID, func(ctx context.Context, tx ports.Store) error {
		bal, err := tx.GetBalance(ctx, userID)
		if err != nil {
			return err
		}
		if bal.Amount < amount {
			return &domain.InsufficientBalanceError{
				UserID:    userID,
				Available: int64(bal.Amount),
				Required:  int64(amount),
			}
		}
		if err := tx.SwapBalance(ctx, userID, bal.Version, bal.Amount-amount); err != nil {
			return err
		}

		now := s.now()
		r := &ledger.Reservation{
			ID:             uuid.NewString(),
			UserID:         userID,
			VerificationID: verificationID,
			Amount:         amount,
			Status:         ledger.ReservationHeld,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		if hook != nil {
			if err := hook(ctx, tx, r); err != nil {
				return &hookError{err: err}
			}
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Release returns a held reservation's amount to the balance. Releasing a
// reservation that is already released or committed does nothing.
func (s *Service) Release(ctx context.Context, reservationID string) error {
	var released *ledger.Reservation
	err := s.mutate(ctx, "release", "", func(ctx context.Context, tx ports.Store) error {
		released = nil

		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != ledger.ReservationHeld {
			return nil
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, ledger.ReservationHeld, ledger.ReservationReleased); err != nil {
			return err
		}
		bal, err := tx.GetBalance(ctx, r.UserID)
		if err != nil {
			return err
		}
		if err := tx.SwapBalance(ctx, r.UserID, bal.Version, bal.Amount+r.Amount); err != nil {
			return err
		}
		released = r
		return nil
	})
	if err != nil {
		return err
	}

	if released != nil {
		logging.FromContext(ctx).InfoContext(ctx, "reservation released",
			slog.String("reservation_id", released.ID),
			slog.String("verification_id", released.VerificationID),
			slog.String("amount", released.Amount.String()),
		)
	}
	return nil
}

// Commit turns a held reservation into a charge transaction keyed by
// chargeKey. The balance was already reduced by Reserve, so only the
// reservation status and the transaction change. hook, if not nil, runs in
// the same database transaction.
//
// Committing a key that already has a charge returns that charge without
// running hook.
func (s *Service) Commit(ctx context.Context, reservationID, chargeKey string, hook Hook) (*ledger.Transaction, error) {
	var charge *ledger.Transaction
	err := s.mutate(ctx, "commit", "", func(ctx context.Context, tx ports.Store) error {
		existing, err := tx.GetTransactionByKey(ctx, chargeKey)
		if err == nil {
			charge = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Status != ledger.ReservationHeld {
			return fmt.Errorf("%w: reservation %s is %s", domain.ErrConflict, r.ID, r.Status)
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, ledger.ReservationHeld, ledger.ReservationCommitted); err != nil {
			return err
		}
		bal, err := tx.GetBalance(ctx, r.UserID)
		if err != nil {
			return err
		}

		t := &ledger.Transaction{
			ID:             uuid.NewString(),
			UserID:         r.UserID,
			Type:           ledger.TypeCharge,
			Amount:         r.Amount,
			IdempotencyKey: chargeKey,
			VerificationID: r.VerificationID,
			Status:         ledger.StatusPosted,
			BalanceAfter:   bal.Amount,
			CreatedAt:      s.now(),
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if err := runHook(ctx, tx, hook, t); err != nil {
			return err
		}
		charge = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}

// Refund credits amount back for the charge sourceTransactionID. It is
// idempotent per source transaction and per verification: a repeated call
// returns the existing refund with created=false, credits nothing and does
// not run hook.
func (s *Service) Refund(ctx context.Context, userID string, amount ledger.Cents, sourceTransactionID, verificationID string, hook Hook) (t *ledger.Transaction, created bool, err error) {
	return s.post(ctx, "refund", &ledger.Transaction{
		UserID:              userID,
		Type:                ledger.TypeRefund,
		Amount:              amount,
		IdempotencyKey:      "refund:" + sourceTransactionID,
		VerificationID:      verificationID,
		SourceTransactionID: sourceTransactionID,
	}, hook)
}

// Credit tops up the user's balance, at most once per key.
func (s *Service) Credit(ctx context.Context, userID string, amount ledger.Cents, key string, hook Hook) (t *ledger.Transaction, created bool, err error) {
	return s.post(ctx, "credit", &ledger.Transaction{
		UserID:         userID,
		Type:           ledger.TypeCredit,
		Amount:         amount,
		IdempotencyKey: key,
	}, hook)
}

// post adds t.Amount to the balance and records t, unless a transaction
// with the same key already exists.
func (s *Service) post(ctx context.Context, op string, t *ledger.Transaction, hook Hook) (*ledger.Transaction, bool, error) {
	if t.Amount <= 0 {
		return nil, false, &domain.ValidationError{Fields: map[string]string{"amount": domain.MsgPositive}}
	}
	if t.UserID == "" {
		return nil, false, &domain.ValidationError{Fields: map[string]string{"user_id": domain.MsgRequired}}
	}

	var (
		out     *ledger.Transaction
		created bool
	)
	err := s.mutate(ctx, op, t.UserID, func(ctx context.Context, tx ports.Store) error {
		out, created = nil, false

		existing, err := tx.GetTransactionByKey(ctx, t.IdempotencyKey)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		bal, err := tx.GetBalance(ctx, t.UserID)
		if err != nil {
			return err
		}
		if err := tx.SwapBalance(ctx, t.UserID, bal.Version, bal.Amount+t.Amount); err != nil {
			return err
		}

		rec := *t
		rec.ID = uuid.NewString()
		rec.Status = ledger.StatusPosted
		rec.BalanceAfter = bal.Amount + t.Amount
		rec.CreatedAt = s.now()
		if err := tx.InsertTransaction(ctx, &rec); err != nil {
			return err
		}
		if err := runHook(ctx, tx, hook, &rec); err != nil {
			return err
		}
		out, created = &rec, true
		return nil
	})
	var he *hookError
	if errors.Is(err, domain.ErrDuplicate) && !errors.As(err, &he) {
		// Lost a race to another writer of the same key.
		existing, gerr := s.store.GetTransactionByKey(ctx, t.IdempotencyKey)
		if gerr != nil {
			return nil, false, fmt.Errorf("%s: %w", op, errors.Join(err, gerr))
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// mutate runs fn in a database transaction, retrying the whole transaction
// when a balance compare-and-swap loses. Exhausted retries become
// domain.ErrConflict.
func (s *Service) mutate(ctx context.Context, op, userID string, fn func(ctx context.Context, tx ports.Store) error) error {
	err := retry.Do(ctx, s.policy, isBalanceConflict, func(ctx context.Context) error {
		err := s.store.WithinTx(ctx, fn)
		if isBalanceConflict(err) {
			s.metrics.LedgerConflict(op)
		}
		return err
	})
	if errors.Is(err, retry.ErrExhausted) {
		logging.FromContext(ctx).WarnContext(ctx, "balance contention",
			slog.String("operation", "ledger."+op),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%s: %w: balance contention", op, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func runHook(ctx context.Context, tx ports.Store, hook Hook, t *ledger.Transaction) error {
	if hook == nil {
		return nil
	}
	if err := hook(ctx, tx, t); err != nil {
		return &hookError{err: err}
	}
	return nil
}

func isBalanceConflict(err error) bool {
	var he *hookError
	return errors.Is(err, domain.ErrVersionConflict) && !errors.As(err, &he)
}
