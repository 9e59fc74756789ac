package sqlite

import (
	"context"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
)

func (s *Store) CreateRecord(ctx context.Context, r *idempotency.Record) error {
	const q = `
INSERT INTO idempotency_records (key, fingerprint, status, result, resource_id, created_at, updated_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		r.Key, r.Fingerprint, string(r.Status), r.Result, r.ResourceID,
		toMillis(r.CreatedAt), toMillis(r.UpdatedAt), toMillis(r.ExpiresAt),
	)
	return mapErr("create idempotency record", err)
}

func (s *Store) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	const q = `
SELECT key, fingerprint, status, result, resource_id, created_at, updated_at, expires_at
FROM idempotency_records WHERE key = ?`

	var (
		r                         idempotency.Record
		status                    string
		created, updated, expires int64
	)
	err := s.q.QueryRowContext(ctx, q, key).Scan(
		&r.Key, &r.Fingerprint, &status, &r.Result, &r.ResourceID, &created, &updated, &expires,
	)
	if err != nil {
		return nil, mapErr("get idempotency record", err)
	}
	r.Status = idempotency.Status(status)
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	r.ExpiresAt = fromMillis(expires)
	return &r, nil
}

func (s *Store) AttachResource(ctx context.Context, key, resourceID string) error {
	const q = `UPDATE idempotency_records SET resource_id = ?, updated_at = ? WHERE key = ?`
	res, err := s.q.ExecContext(ctx, q, resourceID, toMillis(s.now()), key)
	if err != nil {
		return mapErr("attach idempotency resource", err)
	}
	return expectOne("attach idempotency resource", res, domain.ErrNotFound)
}

func (s *Store) CompleteRecord(ctx context.Context, key string, result []byte, expiresAt time.Time) error {
	const q = `
UPDATE idempotency_records
SET status = ?, result = ?, expires_at = ?, updated_at = ?
WHERE key = ? AND status = ?`
	res, err := s.q.ExecContext(ctx, q,
		string(idempotency.StatusCompleted), result, toMillis(expiresAt), toMillis(s.now()),
		key, string(idempotency.StatusInProgress),
	)
	if err != nil {
		return mapErr("complete idempotency record", err)
	}
	return expectOne("complete idempotency record", res, domain.ErrVersionConflict)
}

func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM idempotency_records WHERE key = ?`, key)
	return mapErr("delete idempotency record", err)
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE expires_at > 0 AND expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, mapErr("purge idempotency records", err)
	}
	return res.RowsAffected()
}
