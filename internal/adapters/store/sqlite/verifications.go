package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

const verificationColumns = `id, user_id, provider, provider_ref, phone_number, service, country, cost, status,
idempotency_key, reservation_id, charge_transaction_id, refund_transaction_id, message_code, message_text,
failure_reason, poll_deadline, created_at, updated_at, version`

func (s *Store) CreateVerification(ctx context.Context, v *verification.Verification) error {
	const q = `
INSERT INTO verifications (` + verificationColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		v.ID, v.UserID, v.Provider, v.ProviderRef, v.PhoneNumber, v.Service, v.Country,
		int64(v.Cost), string(v.Status), v.IdempotencyKey, v.ReservationID,
		v.ChargeTransactionID, v.RefundTransactionID, v.MessageCode, v.MessageText,
		v.FailureReason, toMillis(v.PollDeadline), toMillis(v.CreatedAt), toMillis(v.UpdatedAt),
		v.Version,
	)
	return mapErr("create verification", err)
}

func (s *Store) GetVerification(ctx context.Context, id string) (*verification.Verification, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+verificationColumns+` FROM verifications WHERE id = ?`, id)
	v, err := scanVerification(row)
	if err != nil {
		return nil, mapErr("get verification", err)
	}
	return v, nil
}

func (s *Store) TransitionVerification(ctx context.Context, t verification.Transition) (*verification.Verification, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	const q = `
UPDATE verifications SET
    status = ?,
    version = version + 1,
    updated_at = ?,
    provider_ref = COALESCE(NULLIF(?, ''), provider_ref),
    phone_number = COALESCE(NULLIF(?, ''), phone_number),
    reservation_id = COALESCE(NULLIF(?, ''), reservation_id),
    charge_transaction_id = COALESCE(NULLIF(?, ''), charge_transaction_id),
    refund_transaction_id = COALESCE(NULLIF(?, ''), refund_transaction_id),
    message_code = COALESCE(NULLIF(?, ''), message_code),
    message_text = COALESCE(NULLIF(?, ''), message_text),
    failure_reason = COALESCE(NULLIF(?, ''), failure_reason),
    poll_deadline = COALESCE(NULLIF(?, 0), poll_deadline)
WHERE id = ? AND status = ? AND version = ?`

	res, err := s.q.ExecContext(ctx, q,
		string(t.To), toMillis(s.now()),
		t.ProviderRef, t.PhoneNumber, t.ReservationID, t.ChargeTransactionID,
		t.RefundTransactionID, t.MessageCode, t.MessageText, t.FailureReason,
		toMillis(t.PollDeadline),
		t.ID, string(t.From), t.ExpectedVersion,
	)
	if err != nil {
		return nil, mapErr("transition verification", err)
	}

	if err := expectOne("transition verification", res, domain.ErrVersionConflict); err != nil {
		if _, getErr := s.GetVerification(ctx, t.ID); errors.Is(getErr, domain.ErrNotFound) {
			return nil, getErr
		}
		return nil, err
	}

	return s.GetVerification(ctx, t.ID)
}

func (s *Store) ListAwaitingRefund(ctx context.Context, limit int) ([]verification.Verification, error) {
	if limit <= 0 {
		limit = 100
	}

	const q = `SELECT ` + verificationColumns + ` FROM verifications
WHERE status IN (?, ?, ?)
  AND COALESCE(charge_transaction_id, '') <> ''
  AND COALESCE(refund_transaction_id, '') = ''
ORDER BY created_at, id LIMIT ?`

	rows, err := s.q.QueryContext(ctx, q,
		string(verification.StatusTimedOut), string(verification.StatusFailed),
		string(verification.StatusCancelled), limit)
	if err != nil {
		return nil, mapErr("list awaiting refund", err)
	}
	defer rows.Close()

	var out []verification.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list awaiting refund: %w", err)
	}
	return out, nil
}

func (s *Store) ListVerificationsByStatus(ctx context.Context, statuses []verification.Status, limit int) ([]verification.Verification, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	args := make([]any, 0, len(statuses)+1)
	for _, st := range statuses {
		args = append(args, string(st))
	}
	args = append(args, limit)

	q := `SELECT ` + verificationColumns + ` FROM verifications WHERE status IN (` +
		placeholders(len(statuses)) + `) ORDER BY created_at, id LIMIT ?`

	rows, err := s.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr("list verifications", err)
	}
	defer rows.Close()

	var out []verification.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	return out, nil
}

func scanVerification(row scanner) (*verification.Verification, error) {
	var (
		v                          verification.Verification
		status                     string
		deadline, created, updated int64
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.Provider, &v.ProviderRef, &v.PhoneNumber, &v.Service, &v.Country,
		&v.Cost, &status, &v.IdempotencyKey, &v.ReservationID, &v.ChargeTransactionID,
		&v.RefundTransactionID, &v.MessageCode, &v.MessageText, &v.FailureReason,
		&deadline, &created, &updated, &v.Version,
	)
	if err != nil {
		return nil, err
	}
	v.Status = verification.Status(status)
	v.PollDeadline = fromMillis(deadline)
	v.CreatedAt = fromMillis(created)
	v.UpdatedAt = fromMillis(updated)
	return &v, nil
}
