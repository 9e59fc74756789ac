package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

const verificationColumns = `id, user_id, provider, provider_ref, phone_number, service, country, cost, status,
idempotency_key, reservation_id, charge_transaction_id, refund_transaction_id, message_code, message_text,
failure_reason, poll_deadline, created_at, updated_at, version`

func (s *Store) CreateVerification(ctx context.Context, v *verification.Verification) error {
	const q = `
INSERT INTO verifications (` + verificationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	_, err := s.q.Exec(ctx, q,
		v.ID, v.UserID, v.Provider, v.ProviderRef, v.PhoneNumber, v.Service, v.Country,
		int64(v.Cost), string(v.Status), v.IdempotencyKey, v.ReservationID,
		v.ChargeTransactionID, v.RefundTransactionID, v.MessageCode, v.MessageText,
		v.FailureReason, nullTime(v.PollDeadline), v.CreatedAt, v.UpdatedAt, v.Version,
	)
	return mapErr("create verification", err)
}

func (s *Store) GetVerification(ctx context.Context, id string) (*verification.Verification, error) {
	row := s.q.QueryRow(ctx, `SELECT `+verificationColumns+` FROM verifications WHERE id = $1`, id)
	v, err := scanVerification(row)
	if err != nil {
		return nil, mapErr("get verification", err)
	}
	return v, nil
}

// TransitionVerification uses UPDATE ... RETURNING so the new row comes back
// in the same round trip.
func (s *Store) TransitionVerification(ctx context.Context, t verification.Transition) (*verification.Verification, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	const q = `
UPDATE verifications SET
    status = $1,
    version = version + 1,
    updated_at = $2,
    provider_ref = COALESCE(NULLIF($3, ''), provider_ref),
    phone_number = COALESCE(NULLIF($4, ''), phone_number),
    reservation_id = COALESCE(NULLIF($5, ''), reservation_id),
    charge_transaction_id = COALESCE(NULLIF($6, ''), charge_transaction_id),
    refund_transaction_id = COALESCE(NULLIF($7, ''), refund_transaction_id),
    message_code = COALESCE(NULLIF($8, ''), message_code),
    message_text = COALESCE(NULLIF($9, ''), message_text),
    failure_reason = COALESCE(NULLIF($10, ''), failure_reason),
    poll_deadline = COALESCE($11, poll_deadline)
WHERE id = $12 AND status = $13 AND version = $14
RETURNING ` + verificationColumns

	row := s.q.QueryRow(ctx, q,
		string(t.To), s.now(),
		t.ProviderRef, t.PhoneNumber, t.ReservationID, t.ChargeTransactionID,
		t.RefundTransactionID, t.MessageCode, t.MessageText, t.FailureReason,
		nullTime(t.PollDeadline),
		t.ID, string(t.From), t.ExpectedVersion,
	)
	v, err := scanVerification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetVerification(ctx, t.ID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("transition verification %s: %w", t.ID, domain.ErrVersionConflict)
	}
	if err != nil {
		return nil, mapErr("transition verification", err)
	}
	return v, nil
}

func (s *Store) ListAwaitingRefund(ctx context.Context, limit int) ([]verification.Verification, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.q.Query(ctx, `SELECT `+verificationColumns+` FROM verifications
WHERE status = ANY($1)
  AND COALESCE(charge_transaction_id, '') <> ''
  AND COALESCE(refund_transaction_id, '') = ''
ORDER BY created_at, id LIMIT $2`,
		[]string{
			string(verification.StatusTimedOut),
			string(verification.StatusFailed),
			string(verification.StatusCancelled),
		}, limit)
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

	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := s.q.Query(ctx,
		`SELECT `+verificationColumns+` FROM verifications WHERE status = ANY($1) ORDER BY created_at, id LIMIT $2`,
		names, limit)
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

func scanVerification(row pgx.Row) (*verification.Verification, error) {
	var (
		v        verification.Verification
		cost     int64
		status   string
		deadline *time.Time
	)
	err := row.Scan(
		&v.ID, &v.UserID, &v.Provider, &v.ProviderRef, &v.PhoneNumber, &v.Service, &v.Country,
		&cost, &status, &v.IdempotencyKey, &v.ReservationID, &v.ChargeTransactionID,
		&v.RefundTransactionID, &v.MessageCode, &v.MessageText, &v.FailureReason,
		&deadline, &v.CreatedAt, &v.UpdatedAt, &v.Version,
	)
	if err != nil {
		return nil, err
	}
	v.Cost = ledger.Cents(cost)
	v.Status = verification.Status(status)
	if deadline != nil {
		v.PollDeadline = deadline.UTC()
	}
	return &v, nil
}
