package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
)

func (s *Store) StageEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("stage event: encode: %w", err)
	}
	_, err = s.q.Exec(ctx,
		`INSERT INTO staged_events (id, type, payload, staged_at) VALUES ($1, $2, $3, $4)`,
		ev.ID, string(ev.Type), payload, s.now(),
	)
	return mapErr("stage event", err)
}

func (s *Store) GetStagedEvent(ctx context.Context, id string) (event.Event, error) {
	var payload []byte
	err := s.q.QueryRow(ctx, `SELECT payload FROM staged_events WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return event.Event{}, mapErr("get staged event", err)
	}
	return decodeEvent(payload)
}

func (s *Store) ListStagedEvents(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.q.Query(ctx, `SELECT payload FROM staged_events ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, mapErr("list staged events", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan staged event: %w", err)
		}
		ev, err := decodeEvent(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list staged events: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteStagedEvent(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM staged_events WHERE id = $1`, id)
	return mapErr("delete staged event", err)
}

func decodeEvent(payload []byte) (event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return event.Event{}, fmt.Errorf("decode staged event: %w", err)
	}
	return ev, nil
}
