package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
)

func (s *Store) GetBalance(ctx context.Context, userID string) (ledger.Balance, error) {
	const q = `SELECT amount, version, updated_at FROM credit_balances WHERE user_id = $1`

	b := ledger.Balance{UserID: userID}
	var amount int64
	err := s.q.QueryRow(ctx, q, userID).Scan(&amount, &b.Version, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return ledger.Balance{}, mapErr("get balance", err)
	}
	b.Amount = ledger.Cents(amount)
	return b, nil
}

func (s *Store) SwapBalance(ctx context.Context, userID string, expectedVersion int64, amount ledger.Cents) error {
	if expectedVersion == 0 {
		const q = `
INSERT INTO credit_balances (user_id, amount, version, updated_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (user_id) DO NOTHING`
		tag, err := s.q.Exec(ctx, q, userID, int64(amount), s.now())
		if err != nil {
			return mapErr("create balance", err)
		}
		return expectOne("create balance", tag, domain.ErrVersionConflict)
	}

	const q = `
UPDATE credit_balances
SET amount = $1, version = version + 1, updated_at = $2
WHERE user_id = $3 AND version = $4`
	tag, err := s.q.Exec(ctx, q, int64(amount), s.now(), userID, expectedVersion)
	if err != nil {
		return mapErr("swap balance", err)
	}
	return expectOne("swap balance", tag, domain.ErrVersionConflict)
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	const q = `
INSERT INTO credit_transactions
    (id, user_id, type, amount, idempotency_key, verification_id, source_transaction_id, status, balance_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.q.Exec(ctx, q,
		t.ID, t.UserID, string(t.Type), int64(t.Amount), t.IdempotencyKey,
		nullString(t.VerificationID), nullString(t.SourceTransactionID),
		string(t.Status), int64(t.BalanceAfter), t.CreatedAt,
	)
	return mapErr("insert transaction", err)
}

const transactionColumns = `id, user_id, type, amount, idempotency_key, verification_id, source_transaction_id, status, balance_after, created_at`

func (s *Store) GetTransactionByKey(ctx context.Context, key string) (*ledger.Transaction, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE idempotency_key = $1`, key)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapErr("get transaction", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, mapErr("list transactions", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (s *Store) InsertReservation(ctx context.Context, r *ledger.Reservation) error {
	const q = `
INSERT INTO credit_reservations (id, user_id, verification_id, amount, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, q,
		r.ID, r.UserID, r.VerificationID, int64(r.Amount), string(r.Status), r.CreatedAt, r.UpdatedAt,
	)
	return mapErr("insert reservation", err)
}

func (s *Store) GetReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	const q = `
SELECT id, user_id, verification_id, amount, status, created_at, updated_at
FROM credit_reservations WHERE id = $1`

	var (
		r      ledger.Reservation
		amount int64
		status string
	)
	err := s.q.QueryRow(ctx, q, id).Scan(
		&r.ID, &r.UserID, &r.VerificationID, &amount, &status, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr("get reservation", err)
	}
	r.Amount = ledger.Cents(amount)
	r.Status = ledger.ReservationStatus(status)
	return &r, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, from, to ledger.ReservationStatus) error {
	const q = `UPDATE credit_reservations SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	tag, err := s.q.Exec(ctx, q, string(to), s.now(), id, string(from))
	if err != nil {
		return mapErr("update reservation", err)
	}
	return expectOne("update reservation", tag, domain.ErrVersionConflict)
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		t                   ledger.Transaction
		typ, status         string
		amount, after       int64
		verificationID, src *string
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &amount, &t.IdempotencyKey,
		&verificationID, &src, &status, &after, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = ledger.TransactionType(typ)
	t.Status = ledger.TransactionStatus(status)
	t.Amount = ledger.Cents(amount)
	t.BalanceAfter = ledger.Cents(after)
	if verificationID != nil {
		t.VerificationID = *verificationID
	}
	if src != nil {
		t.SourceTransactionID = *src
	}
	return &t, nil
}
