package postgres

import (
	"context"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
)

func (s *Store) CreateRecord(ctx context.Context, r *idempotency.Record) error {
	const q = `
INSERT INTO idempotency_records (key, fingerprint, status, result, resource_id, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.q.Exec(ctx, q,
		r.Key, r.Fingerprint, string(r.Status), r.Result, r.ResourceID, r.CreatedAt, r.UpdatedAt, r.ExpiresAt,
	)
	return mapErr("create idempotency record", err)
}

func (s *Store) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	const q = `
SELECT key, fingerprint, status, result, resource_id, created_at, updated_at, expires_at
FROM idempotency_records WHERE key = $1`

	var (
		r      idempotency.Record
		status string
	)
	err := s.q.QueryRow(ctx, q, key).Scan(
		&r.Key, &r.Fingerprint, &status, &r.Result, &r.ResourceID, &r.CreatedAt, &r.UpdatedAt, &r.ExpiresAt,
	)
	if err != nil {
		return nil, mapErr("get idempotency record", err)
	}
	r.Status = idempotency.Status(status)
	return &r, nil
}

func (s *Store) AttachResource(ctx context.Context, key, resourceID string) error {
	const q = `UPDATE idempotency_records SET resource_id = $1, updated_at = $2 WHERE key = $3`
	tag, err := s.q.Exec(ctx, q, resourceID, s.now(), key)
	if err != nil {
		return mapErr("attach idempotency resource", err)
	}
	return expectOne("attach idempotency resource", tag, domain.ErrNotFound)
}

func (s *Store) CompleteRecord(ctx context.Context, key string, result []byte, expiresAt time.Time) error {
	const q = `
UPDATE idempotency_records
SET status = $1, result = $2, expires_at = $3, updated_at = $4
WHERE key = $5 AND status = $6`
	tag, err := s.q.Exec(ctx, q,
		string(idempotency.StatusCompleted), result, expiresAt, s.now(),
		key, string(idempotency.StatusInProgress),
	)
	if err != nil {
		return mapErr("complete idempotency record", err)
	}
	return expectOne("complete idempotency record", tag, domain.ErrVersionConflict)
}

func (s *Store) DeleteRecord(ctx context.Context, key string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key)
	return mapErr("delete idempotency record", err)
}

func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM idempotency_records WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, mapErr("purge idempotency records", err)
	}
	return tag.RowsAffected(), nil
}
