package sqlite

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
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO staged_events (id, type, payload, staged_at) VALUES (?, ?, ?, ?)`,
		ev.ID, string(ev.Type), string(payload), toMillis(s.now()),
	)
	return mapErr("stage event", err)
}

func (s *Store) GetStagedEvent(ctx context.Context, id string) (event.Event, error) {
	var payload string
	err := s.q.QueryRowContext(ctx, `SELECT payload FROM staged_events WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		return event.Event{}, mapErr("get staged event", err)
	}
	return decodeEvent(payload)
}

func (s *Store) ListStagedEvents(ctx context.Context, limit int) ([]event.Event, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT payload FROM staged_events ORDER BY seq LIMIT ?`, limit)
	if err != nil {
		return nil, mapErr("list staged events", err)
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var payload string
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
	_, err := s.q.ExecContext(ctx, `DELETE FROM staged_events WHERE id = ?`, id)
	return mapErr("delete staged event", err)
}

func decodeEvent(payload string) (event.Event, error) {
	var ev event.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return event.Event{}, fmt.Errorf("decode staged event: %w", err)
	}
	return ev, nil
}
