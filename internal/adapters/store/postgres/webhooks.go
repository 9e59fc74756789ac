package postgres

import (
	"context"

	"github.com/jsamuelsen11/numbers-core/internal/domain/webhook"
)

func (s *Store) InsertWebhookEvent(ctx context.Context, e *webhook.Event) error {
	const q = `
INSERT INTO webhook_events (id, type, signature, payload_hash, status, transaction_id, processed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.q.Exec(ctx, q,
		e.ID, e.Type, e.Signature, e.PayloadHash, string(e.Status), e.TransactionID, e.ProcessedAt,
	)
	return mapErr("insert webhook event", err)
}

func (s *Store) GetWebhookEvent(ctx context.Context, id string) (*webhook.Event, error) {
	const q = `
SELECT id, type, signature, payload_hash, status, transaction_id, processed_at
FROM webhook_events WHERE id = $1`

	var (
		e      webhook.Event
		status string
	)
	err := s.q.QueryRow(ctx, q, id).Scan(
		&e.ID, &e.Type, &e.Signature, &e.PayloadHash, &status, &e.TransactionID, &e.ProcessedAt,
	)
	if err != nil {
		return nil, mapErr("get webhook event", err)
	}
	e.Status = webhook.EventStatus(status)
	return &e, nil
}
