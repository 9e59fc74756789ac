// Package idempotency guards operations with client-supplied idempotency
// keys. The first caller for a key runs the operation; later callers with
// the same request get the stored result, and callers with a different
// request are rejected.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// State is the result of Begin.
type State int

const (
	// StateNew means the caller owns the key and must run the operation,
	// then Complete or Abandon it.
	StateNew State = iota + 1
	// StateCompleted means the operation already ran; Outcome.Result holds
	// its stored result.
	StateCompleted
)

// Outcome is returned by Begin.
type Outcome struct {
	State  State
	Result []byte
}

// Guard implements the begin/complete protocol over a [ports.IdempotencyStore].
type Guard struct {
	store        ports.IdempotencyStore
	ttl          time.Duration
	wait         time.Duration
	pollInterval time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
}

// New creates a Guard. A nil m disables metrics.
func New(store ports.IdempotencyStore, cfg config.IdempotencyConfig, m *metrics.Metrics) *Guard {
	return &Guard{
		store:        store,
		ttl:          cfg.TTL,
		wait:         cfg.InProgressWait,
		pollInterval: max(cfg.PollInterval, time.Millisecond),
		metrics:      m,
		now:          time.Now,
	}
}

// Begin claims key for a request with the given fingerprint.
//
// If another caller holds the key in progress, Begin polls until that
// caller completes or the configured wait elapses, then returns
// domain.ErrInProgress. A completed key with a different fingerprint
// returns *domain.IdempotencyConflictError. Expired records are replaced.
func (g *Guard) Begin(ctx context.Context, key, fingerprint string) (Outcome, error) {
	if strings.TrimSpace(key) == "" {
		return Outcome{}, &domain.ValidationError{Fields: map[string]string{"idempotency_key": domain.MsgRequired}}
	}

	deadline := g.now().Add(g.wait)
	for {
		now := g.now()
		err := g.store.CreateRecord(ctx, &idempotency.Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      idempotency.StatusInProgress,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(g.ttl),
		})
		if err == nil {
			g.metrics.IdempotencyRecorded("new")
			return Outcome{State: StateNew}, nil
		}
		if !errors.Is(err, domain.ErrDuplicate) {
			return Outcome{}, fmt.Errorf("creating idempotency record: %w", err)
		}

		rec, err := g.store.GetRecord(ctx, key)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Deleted between insert and read; claim again.
		case err != nil:
			return Outcome{}, fmt.Errorf("reading idempotency record: %w", err)
		case rec.Expired(now):
			if err := g.store.DeleteRecord(ctx, key); err != nil {
				return Outcome{}, fmt.Errorf("replacing expired idempotency record: %w", err)
			}
			continue
		case rec.Fingerprint != fingerprint:
			g.metrics.IdempotencyRecorded("conflict")
			return Outcome{}, &domain.IdempotencyConflictError{Key: key}
		case rec.Status == idempotency.StatusCompleted:
			g.metrics.IdempotencyRecorded("replayed")
			return Outcome{State: StateCompleted, Result: rec.Result}, nil
		}

		if !g.now().Before(deadline) {
			g.metrics.IdempotencyRecorded("in_progress")
			logging.FromContext(ctx).WarnContext(ctx, "idempotency key still in progress",
				slog.String("operation", "Guard.Begin"),
				slog.String("idempotency_key", key),
			)
			return Outcome{}, fmt.Errorf("key %q: %w", key, domain.ErrInProgress)
		}
		if err := retry.Sleep(ctx, g.pollInterval); err != nil {
			return Outcome{}, err
		}
	}
}

// Attach records the id of the resource the guarded operation created, so
// recovery can find the key from the resource.
func (g *Guard) Attach(ctx context.Context, key, resourceID string) error {
	if err := g.store.AttachResource(ctx, key, resourceID); err != nil {
		return fmt.Errorf("attaching %s to idempotency key: %w", resourceID, err)
	}
	return nil
}

// Complete stores result for replay and extends the record's expiry.
func (g *Guard) Complete(ctx context.Context, key string, result []byte) error {
	if err := g.store.CompleteRecord(ctx, key, result, g.now().Add(g.ttl)); err != nil {
		return fmt.Errorf("completing idempotency key: %w", err)
	}
	return nil
}

// Abandon releases an in-progress key so the client can retry. Use it only
// when the guarded operation failed before any money moved.
func (g *Guard) Abandon(ctx context.Context, key string) error {
	if err := g.store.DeleteRecord(ctx, key); err != nil {
		return fmt.Errorf("abandoning idempotency key: %w", err)
	}
	return nil
}

// Lookup returns the stored record for key or domain.ErrNotFound.
func (g *Guard) Lookup(ctx context.Context, key string) (*idempotency.Record, error) {
	return g.store.GetRecord(ctx, key)
}

// Purge deletes expired records and returns how many were removed.
func (g *Guard) Purge(ctx context.Context) (int64, error) {
	n, err := g.store.PurgeExpired(ctx, g.now())
	if err != nil {
		return 0, fmt.Errorf("purging idempotency records: %w", err)
	}
	return n, nil
}

// Fingerprint returns the SHA-256 hex digest of the request parts. Parts are
// separated by a unit separator so ("ab","c") and ("a","bc") differ.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
