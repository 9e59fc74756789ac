package bolt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/outbox/bolt"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
)

func newOutbox(t *testing.T) (*bolt.Outbox, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "outbox.db")
	o, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o, path
}

func sample(id string) event.Event {
	return event.Event{
		ID:          id,
		Type:        event.RefundIssued,
		UserID:      "user-1",
		OrderingKey: "v-1",
		OccurredAt:  time.Now().UTC(),
		Data:        map[string]string{"amount": "2.50"},
	}
}

func TestAppend_AssignsIncreasingSequence(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	first, err := o.Append(ctx, sample("e-1"), []string{"log"})
	require.NoError(t, err)
	second, err := o.Append(ctx, sample("e-2"), []string{"log"})
	require.NoError(t, err)

	assert.Less(t, first.Sequence, second.Sequence)

	_, err = o.Append(ctx, sample("e-3"), nil)
	assert.Error(t, err)
}

func TestAppend_DeduplicatesPendingID(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	first, err := o.Append(ctx, sample("v-1:refund"), []string{"log"})
	require.NoError(t, err)
	again, err := o.Append(ctx, sample("v-1:refund"), []string{"log"})
	require.NoError(t, err)
	assert.Equal(t, first.Sequence, again.Sequence, "pending copy returned")

	pending, err := o.Pending(ctx, "log", 0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, o.Ack(ctx, "log", first.Sequence))

	// Once delivered the id is forgotten; subscribers discard the repeat.
	later, err := o.Append(ctx, sample("v-1:refund"), []string{"log"})
	require.NoError(t, err)
	assert.Greater(t, later.Sequence, first.Sequence)
}

func TestPending_PerChannelOrder(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	for _, id := range []string{"e-1", "e-2", "e-3"} {
		_, err := o.Append(ctx, sample(id), []string{"log", "webhook"})
		require.NoError(t, err)
	}

	got, err := o.Pending(ctx, "webhook", 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-1", got[0].ID)
	assert.Equal(t, "e-2", got[1].ID)
	assert.Equal(t, "2.50", got[0].Data["amount"])

	none, err := o.Pending(ctx, "unknown", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAck_RemovesEventOnceAllChannelsDone(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	ev, err := o.Append(ctx, sample("e-1"), []string{"log", "webhook"})
	require.NoError(t, err)

	require.NoError(t, o.Ack(ctx, "log", ev.Sequence))

	logPending, err := o.Pending(ctx, "log", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, logPending)

	hookPending, err := o.Pending(ctx, "webhook", 0, 10)
	require.NoError(t, err)
	assert.Len(t, hookPending, 1)

	n, err := o.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, o.Ack(ctx, "webhook", ev.Sequence))
	require.NoError(t, o.Ack(ctx, "webhook", ev.Sequence), "ack is idempotent")

	n, err = o.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutbox_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "outbox.db")
	ctx := context.Background()

	o, err := bolt.Open(path)
	require.NoError(t, err)
	_, err = o.Append(ctx, sample("e-1"), []string{"redis"})
	require.NoError(t, err)
	require.NoError(t, o.Close())

	reopened, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Pending(ctx, "redis", 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e-1", got[0].ID)
	require.NoError(t, reopened.HealthCheck(ctx))
	assert.Equal(t, "outbox", reopened.Name())
}

func TestPending_AfterCursor(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	var seqs []uint64
	for _, id := range []string{"e-1", "e-2", "e-3"} {
		ev, err := o.Append(ctx, sample(id), []string{"log"})
		require.NoError(t, err)
		seqs = append(seqs, ev.Sequence)
	}

	got, err := o.Pending(ctx, "log", seqs[0], 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e-2", got[0].ID)

	none, err := o.Pending(ctx, "log", seqs[2], 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeadLetter(t *testing.T) {
	t.Parallel()

	o, _ := newOutbox(t)
	ctx := context.Background()

	ev, err := o.Append(ctx, sample("e-1"), []string{"log", "webhook"})
	require.NoError(t, err)

	require.NoError(t, o.DeadLetter(ctx, "webhook", ev.Sequence, "HTTP 400"))
	require.NoError(t, o.DeadLetter(ctx, "webhook", 999, "unknown"), "unknown sequence")

	pending, err := o.Pending(ctx, "webhook", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	letters, err := o.DeadLetters(ctx, "webhook")
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "e-1", letters[0].Event.ID)
	assert.Equal(t, "HTTP 400", letters[0].Reason)
	assert.False(t, letters[0].At.IsZero())

	logPending, err := o.Pending(ctx, "log", 0, 10)
	require.NoError(t, err)
	assert.Len(t, logPending, 1, "other channels keep the event")

	none, err := o.DeadLetters(ctx, "log")
	require.NoError(t, err)
	assert.Empty(t, none)
}
