package sqlite

import (
	"context"

	"github.com/jsamuelsen11/numbers-core/internal/domain/webhook"
)

func (s *Store) InsertWebhookEvent(ctx context.Context, e *webhook.Event) error {
	const q = `
INSERT INTO webhook_events (id, type, signature, payload_hash, status, transaction_id, processed_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.q.ExecContext(ctx, q,
		e.ID, e.Type, e.Signature, e.PayloadHash, string(e.Status), e.TransactionID, toMillis(e.ProcessedAt),
	)
	return mapErr("insert webhook event", err)
}

func (s *Store) GetWebhookEvent(ctx context.Context, id string) (*webhook.Event, error) {
	const q = `
SELECT id, type, signature, payload_hash, status, transaction_id, processed_at
FROM webhook_events WHERE id = ?`

	var (
		e         webhook.Event
		status    string
		processed int64
	)
	err := s.q.QueryRowContext(ctx, q, id).Scan(
		&e.ID, &e.Type, &e.Signature, &e.PayloadHash, &status, &e.TransactionID, &processed,
	)
	if err != nil {
		return nil, mapErr("get webhook event", err)
	}
	e.Status = webhook.EventStatus(status)
	e.ProcessedAt = fromMillis(processed)
	return &e, nil
}
