package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.IdempotencyStore = (*IdempotencyStore)(nil)

// casAttempts bounds WATCH/MULTI retries when another writer touches the key.
const casAttempts = 3

// IdempotencyStore keeps idempotency records as JSON strings whose Redis TTL
// matches the record's expiry. Expired records disappear on their own, so
// PurgeExpired has nothing to do.
type IdempotencyStore struct {
	client *Client
	now    func() time.Time
}

// NewIdempotencyStore returns a store using keys "<prefix>idem:<key>".
func NewIdempotencyStore(client *Client) *IdempotencyStore {
	return &IdempotencyStore{client: client, now: time.Now}
}

type storedRecord struct {
	Key         string    `json:"key"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"`
	Result      []byte    `json:"result,omitempty"`
	ResourceID  string    `json:"resource_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *IdempotencyStore) key(k string) string {
	return s.client.Key("idem:", k)
}

func (s *IdempotencyStore) ttl(expiresAt time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	d := expiresAt.Sub(s.now())
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (s *IdempotencyStore) CreateRecord(ctx context.Context, r *idempotency.Record) error {
	data, err := json.Marshal(toStored(r))
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, s.key(r.Key), data, s.ttl(r.ExpiresAt)).Result()
	if err != nil {
		return fmt.Errorf("create idempotency record: %w", err)
	}
	if !ok {
		return fmt.Errorf("create idempotency record %s: %w", r.Key, domain.ErrDuplicate)
	}
	return nil
}

func (s *IdempotencyStore) GetRecord(ctx context.Context, key string) (*idempotency.Record, error) {
	data, err := s.client.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("get idempotency record %s: %w", key, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return decode(data)
}

func (s *IdempotencyStore) AttachResource(ctx context.Context, key, resourceID string) error {
	return s.update(ctx, key, func(r *idempotency.Record) error {
		r.ResourceID = resourceID
		return nil
	})
}

func (s *IdempotencyStore) CompleteRecord(ctx context.Context, key string, result []byte, expiresAt time.Time) error {
	return s.update(ctx, key, func(r *idempotency.Record) error {
		if r.Status != idempotency.StatusInProgress {
			return fmt.Errorf("complete idempotency record %s: %w", key, domain.ErrVersionConflict)
		}
		r.Status = idempotency.StatusCompleted
		r.Result = result
		r.ExpiresAt = expiresAt
		return nil
	})
}

func (s *IdempotencyStore) DeleteRecord(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("delete idempotency record: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// update applies mutate under WATCH so a concurrent writer forces a retry.
func (s *IdempotencyStore) update(ctx context.Context, key string, mutate func(*idempotency.Record) error) error {
	rk := s.key(key)

	txf := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("idempotency record %s: %w", key, domain.ErrNotFound)
		}
		if err != nil {
			return err
		}

		r, err := decode(data)
		if err != nil {
			return err
		}
		if err := mutate(r); err != nil {
			return err
		}
		r.UpdatedAt = s.now().UTC()

		out, err := json.Marshal(toStored(r))
		if err != nil {
			return fmt.Errorf("encode idempotency record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, rk, out, s.ttl(r.ExpiresAt))
			return nil
		})
		return err
	}

	for range casAttempts {
		err := s.client.rdb.Watch(ctx, txf, rk)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("idempotency record %s: %w", key, domain.ErrVersionConflict)
}

func toStored(r *idempotency.Record) storedRecord {
	return storedRecord{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		Result:      r.Result,
		ResourceID:  r.ResourceID,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func decode(data []byte) (*idempotency.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &idempotency.Record{
		Key:         sr.Key,
		Fingerprint: sr.Fingerprint,
		Status:      idempotency.Status(sr.Status),
		Result:      sr.Result,
		ResourceID:  sr.ResourceID,
		CreatedAt:   sr.CreatedAt,
		UpdatedAt:   sr.UpdatedAt,
		ExpiresAt:   sr.ExpiresAt,
	}, nil
}
