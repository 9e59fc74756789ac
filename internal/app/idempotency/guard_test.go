package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/redis"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/store/storetest"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
)

func testConfig() config.IdempotencyConfig {
	return config.IdempotencyConfig{
		Backend:        "sql",
		TTL:            time.Hour,
		InProgressWait: 30 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
}

func newSQLGuard(t *testing.T) *Guard {
	t.Helper()
	return New(storetest.NewSQLite(t), testConfig(), nil)
}

func newRedisGuard(t *testing.T) *Guard {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.New(config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "test:"}, storetest.Logger())
	t.Cleanup(func() { _ = client.Close() })
	return New(redis.NewIdempotencyStore(client), testConfig(), nil)
}

func backends() map[string]func(*testing.T) *Guard {
	return map[string]func(*testing.T) *Guard{
		"sql":   newSQLGuard,
		"redis": newRedisGuard,
	}
}

func TestGuard_BeginCompleteReplay(t *testing.T) {
	t.Parallel()

	for name, newGuard := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			g := newGuard(t)
			fp := Fingerprint("user-1", "whatsapp", "us")

			out, err := g.Begin(ctx, "key-1", fp)
			require.NoError(t, err)
			assert.Equal(t, StateNew, out.State)

			require.NoError(t, g.Attach(ctx, "key-1", "ver-1"))
			require.NoError(t, g.Complete(ctx, "key-1", []byte(`{"id":"ver-1"}`)))

			out, err = g.Begin(ctx, "key-1", fp)
			require.NoError(t, err)
			assert.Equal(t, StateCompleted, out.State)
			assert.JSONEq(t, `{"id":"ver-1"}`, string(out.Result))

			rec, err := g.Lookup(ctx, "key-1")
			require.NoError(t, err)
			assert.Equal(t, "ver-1", rec.ResourceID)
		})
	}
}

func TestGuard_FingerprintMismatch(t *testing.T) {
	t.Parallel()

	for name, newGuard := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			g := newGuard(t)

			_, err := g.Begin(ctx, "key-1", Fingerprint("a"))
			require.NoError(t, err)
			require.NoError(t, g.Complete(ctx, "key-1", []byte(`{}`)))

			_, err = g.Begin(ctx, "key-1", Fingerprint("b"))
			var conflict *domain.IdempotencyConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, "key-1", conflict.Key)
		})
	}
}

func TestGuard_InProgressTimesOut(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newSQLGuard(t)
	fp := Fingerprint("a")

	_, err := g.Begin(ctx, "key-1", fp)
	require.NoError(t, err)

	start := time.Now()
	_, err = g.Begin(ctx, "key-1", fp)
	if !errors.Is(err, domain.ErrInProgress) {
		t.Fatalf("Begin() error = %v, want ErrInProgress", err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestGuard_WaiterSeesCompletion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newSQLGuard(t)
	g.wait = 5 * time.Second
	fp := Fingerprint("a")

	_, err := g.Begin(ctx, "key-1", fp)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		done <- g.Complete(ctx, "key-1", []byte(`"ok"`))
	}()

	out, err := g.Begin(ctx, "key-1", fp)
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, out.State)
	assert.Equal(t, `"ok"`, string(out.Result))
}

func TestGuard_AbandonAllowsRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newSQLGuard(t)
	fp := Fingerprint("a")

	_, err := g.Begin(ctx, "key-1", fp)
	require.NoError(t, err)
	require.NoError(t, g.Abandon(ctx, "key-1"))

	out, err := g.Begin(ctx, "key-1", fp)
	require.NoError(t, err)
	assert.Equal(t, StateNew, out.State)
}

func TestGuard_ExpiredRecordIsReplaced(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newSQLGuard(t)

	_, err := g.Begin(ctx, "key-1", Fingerprint("a"))
	require.NoError(t, err)
	require.NoError(t, g.Complete(ctx, "key-1", []byte(`{}`)))

	later := time.Now().Add(2 * time.Hour)
	g.now = func() time.Time { return later }

	out, err := g.Begin(ctx, "key-1", Fingerprint("b"))
	require.NoError(t, err)
	assert.Equal(t, StateNew, out.State)
}

func TestGuard_Purge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	g := newSQLGuard(t)

	_, err := g.Begin(ctx, "key-1", Fingerprint("a"))
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	g.now = func() time.Time { return later }

	n, err := g.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = g.Lookup(ctx, "key-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGuard_EmptyKey(t *testing.T) {
	t.Parallel()

	_, err := newSQLGuard(t).Begin(context.Background(), " ", Fingerprint("a"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Fingerprint("a", "b"), Fingerprint("a", "b"))
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	assert.Len(t, Fingerprint("x"), 64)
}
