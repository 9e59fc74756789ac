package compensation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/store/storetest"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	domainledger "github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

var errPublisherDown = errors.New("publisher down")

// recordingPublisher fails while down is set.
type recordingPublisher struct {
	mu     sync.Mutex
	down   bool
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.down {
		return errPublisherDown
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

// count returns the distinct event ids of typ, as a subscriber sees them.
func (p *recordingPublisher) count(typ event.Type) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]struct{})
	for _, ev := range p.events {
		if ev.Type == typ {
			seen[ev.ID] = struct{}{}
		}
	}
	return len(seen)
}

type fixture struct {
	store  ports.Store
	ledger *ledger.Service
	events *recordingPublisher
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storetest.NewSQLite(t)
	l := ledger.New(store, config.LedgerConfig{Retry: config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}}, nil)
	events := &recordingPublisher{}

	_, _, err := l.Credit(context.Background(), "user-1", 1000, "seed", nil)
	require.NoError(t, err)

	return &fixture{store: store, ledger: l, events: events, svc: New(store, l, events, nil)}
}

func (f *fixture) advance(t *testing.T, tr verification.Transition) *verification.Verification {
	t.Helper()
	next, err := f.store.TransitionVerification(context.Background(), tr)
	require.NoError(t, err)
	return next
}

// purchase walks a verification to polling. When charge is false it stops
// at number_assigned with the reservation still held.
func (f *fixture) purchase(t *testing.T, charge bool) *verification.Verification {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC()
	v := &verification.Verification{
		ID: uuid.NewString(), UserID: "user-1", Provider: "primary", Service: "whatsapp", Country: "us",
		Cost: 250, Status: verification.StatusInitiated, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.store.CreateVerification(ctx, v))

	v = f.advance(t, v.Next(verification.StatusReservingCredit))
	r, err := f.ledger.Reserve(ctx, v.UserID, v.Cost, v.ID)
	require.NoError(t, err)

	tr := v.Next(verification.StatusRequestingNumber)
	tr.ReservationID = r.ID
	v = f.advance(t, tr)

	tr = v.Next(verification.StatusNumberAssigned)
	tr.ProviderRef = "ref-1"
	v = f.advance(t, tr)
	if !charge {
		return v
	}

	_, err = f.ledger.Commit(ctx, r.ID, "charge:"+v.ID, func(ctx context.Context, tx ports.Store, t *domainledger.Transaction) error {
		cur, err := tx.GetVerification(ctx, v.ID)
		if err != nil {
			return err
		}
		next := cur.Next(verification.StatusPolling)
		next.ChargeTransactionID = t.ID
		_, err = tx.TransitionVerification(ctx, next)
		return err
	})
	require.NoError(t, err)

	v, err = f.store.GetVerification(ctx, v.ID)
	require.NoError(t, err)
	return v
}

func (f *fixture) balance(t *testing.T) domainledger.Cents {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	return b.Amount
}

func TestCompensate_RefundsChargedTimeout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	v := f.purchase(t, true)
	require.Equal(t, domainledger.Cents(750), f.balance(t))

	f.advance(t, v.Next(verification.StatusTimedOut))

	got, err := f.svc.Compensate(ctx, v.ID, ReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRefunded, got.Status)
	assert.NotEmpty(t, got.RefundTransactionID)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t))
	assert.Equal(t, 1, f.events.count(event.RefundIssued))

	again, err := f.svc.Compensate(ctx, v.ID, ReasonTimeout)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRefunded, again.Status)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t), "second compensation must not refund again")
	assert.Equal(t, 1, f.events.count(event.RefundIssued))
}

func TestCompensate_ReleasesUnchargedReservation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	v := f.purchase(t, false)
	require.Equal(t, domainledger.Cents(750), f.balance(t))

	f.advance(t, v.Next(verification.StatusFailed))

	got, err := f.svc.Compensate(ctx, v.ID, ReasonProviderFailure)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusFailed, got.Status)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t))
	assert.Equal(t, 0, f.events.count(event.RefundIssued))
}

func TestCompensate_RejectsActiveAndCompleted(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	active := f.purchase(t, true)
	_, err := f.svc.Compensate(ctx, active.ID, ReasonTimeout)
	require.ErrorIs(t, err, domain.ErrConflict)

	done := f.purchase(t, true)
	f.advance(t, done.Next(verification.StatusCompleted))
	_, err = f.svc.Compensate(ctx, done.ID, ReasonTimeout)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestCompensate_NotFound(t *testing.T) {
	t.Parallel()

	_, err := newFixture(t).svc.Compensate(context.Background(), "missing", ReasonTimeout)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompensate_ConcurrentCallsRefundOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	v := f.purchase(t, true)
	f.advance(t, v.Next(verification.StatusCancelled))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.svc.Compensate(ctx, v.ID, ReasonCancelled)
			if err != nil {
				t.Errorf("Compensate() error = %v", err)
				return
			}
			if got.Status != verification.StatusRefunded {
				t.Errorf("Status = %s, want refunded", got.Status)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, domainledger.Cents(1000), f.balance(t))
	assert.Equal(t, 1, f.events.count(event.RefundIssued))
}

func TestCompensate_RepublishesRefundAfterPublishFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	v := f.purchase(t, true)
	f.advance(t, v.Next(verification.StatusTimedOut))

	f.events.setDown(true)
	got, err := f.svc.Compensate(ctx, v.ID, ReasonTimeout)
	require.NoError(t, err, "a failed publish does not undo the refund")
	require.Equal(t, verification.StatusRefunded, got.Status)
	require.Equal(t, 0, f.events.count(event.RefundIssued))

	staged, err := f.store.GetStagedEvent(ctx, RefundEventID(v.ID))
	require.NoError(t, err)
	assert.Equal(t, event.RefundIssued, staged.Type)
	assert.Equal(t, got.RefundTransactionID, staged.Data["transaction_id"])

	f.events.setDown(false)
	again, err := f.svc.Compensate(ctx, v.ID, ReasonRecovery)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusRefunded, again.Status)
	assert.Equal(t, 1, f.events.count(event.RefundIssued))
	assert.Equal(t, domainledger.Cents(1000), f.balance(t), "refunded once")

	_, err = f.store.GetStagedEvent(ctx, RefundEventID(v.ID))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCompensate_UsesDeterministicEventID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	v := f.purchase(t, true)
	f.advance(t, v.Next(verification.StatusFailed))

	_, err := f.svc.Compensate(ctx, v.ID, ReasonProviderFailure)
	require.NoError(t, err)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.events, 1)
	assert.Equal(t, v.ID+":refund", f.events.events[0].ID)
	assert.Equal(t, v.ID, f.events.events[0].OrderingKey)
}
