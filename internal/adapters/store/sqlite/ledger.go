package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
)

func (s *Store) GetBalance(ctx context.Context, userID string) (ledger.Balance, error) {
	const q = `SELECT amount, version, updated_at FROM credit_balances WHERE user_id = ?`

	b := ledger.Balance{UserID: userID}
	var updated int64
	err := s.q.QueryRowContext(ctx, q, userID).Scan(&b.Amount, &b.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return ledger.Balance{}, mapErr("get balance", err)
	}
	b.UpdatedAt = fromMillis(updated)
	return b, nil
}

func (s *Store) SwapBalance(ctx context.Context, userID string, expectedVersion int64, amount ledger.Cents) error {
	now := toMillis(s.now())

	if expectedVersion == 0 {
		const q = `
INSERT INTO credit_balances (user_id, amount, version, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (user_id) DO NOTHING`
		res, err := s.q.ExecContext(ctx, q, userID, int64(amount), now)
		if err != nil {
			return mapErr("create balance", err)
		}
		return expectOne("create balance", res, domain.ErrVersionConflict)
	}

	const q = `
UPDATE credit_balances
SET amount = ?, version = version + 1, updated_at = ?
WHERE user_id = ? AND version = ?`
	res, err := s.q.ExecContext(ctx, q, int64(amount), now, userID, expectedVersion)
	if err != nil {
		return mapErr("swap balance", err)
	}
	return expectOne("swap balance", res, domain.ErrVersionConflict)
}

func (s *Store) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	const q = `
INSERT INTO credit_transactions
    (id, user_id, type, amount, idempotency_key, verification_id, source_transaction_id, status, balance_after, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		t.ID, t.UserID, string(t.Type), int64(t.Amount), t.IdempotencyKey,
		nullString(t.VerificationID), nullString(t.SourceTransactionID),
		string(t.Status), int64(t.BalanceAfter), toMillis(t.CreatedAt),
	)
	return mapErr("insert transaction", err)
}

const transactionColumns = `id, user_id, type, amount, idempotency_key, verification_id, source_transaction_id, status, balance_after, created_at`

func (s *Store) GetTransactionByKey(ctx context.Context, key string) (*ledger.Transaction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE idempotency_key = ?`, key)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapErr("get transaction", err)
	}
	return t, nil
}

func (s *Store) ListTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM credit_transactions WHERE user_id = ? ORDER BY created_at, rowid`, userID)
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
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		r.ID, r.UserID, r.VerificationID, int64(r.Amount), string(r.Status),
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	return mapErr("insert reservation", err)
}

func (s *Store) GetReservation(ctx context.Context, id string) (*ledger.Reservation, error) {
	const q = `
SELECT id, user_id, verification_id, amount, status, created_at, updated_at
FROM credit_reservations WHERE id = ?`

	var (
		r                ledger.Reservation
		status           string
		created, updated int64
	)
	err := s.q.QueryRowContext(ctx, q, id).Scan(
		&r.ID, &r.UserID, &r.VerificationID, &r.Amount, &status, &created, &updated,
	)
	if err != nil {
		return nil, mapErr("get reservation", err)
	}
	r.Status = ledger.ReservationStatus(status)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return &r, nil
}

func (s *Store) UpdateReservationStatus(ctx context.Context, id string, from, to ledger.ReservationStatus) error {
	const q = `UPDATE credit_reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := s.q.ExecContext(ctx, q, string(to), toMillis(s.now()), id, string(from))
	if err != nil {
		return mapErr("update reservation", err)
	}
	return expectOne("update reservation", res, domain.ErrVersionConflict)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*ledger.Transaction, error) {
	var (
		t                   ledger.Transaction
		typ, status         string
		verificationID, src sql.NullString
		created             int64
	)
	err := row.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &t.IdempotencyKey,
		&verificationID, &src, &status, &t.BalanceAfter, &created)
	if err != nil {
		return nil, err
	}
	t.Type = ledger.TransactionType(typ)
	t.Status = ledger.TransactionStatus(status)
	t.VerificationID = verificationID.String
	t.SourceTransactionID = src.String
	t.CreatedAt = fromMillis(created)
	return &t, nil
}
