package purchase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appidem "github.com/jsamuelsen11/numbers-core/internal/app/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/domain/idempotency"
	domainledger "github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

// seed inserts a verification at status, walking the state machine the way
// an interrupted purchase would have. updated sets the row's last change
// for the initiated status only.
func (f *fixture) seed(t *testing.T, key string, status verification.Status, updated time.Time) *verification.Verification {
	t.Helper()
	ctx := context.Background()

	v := &verification.Verification{
		ID: uuid.NewString(), UserID: "user-1", Provider: "primary", Service: "whatsapp", Country: "us",
		Cost: 250, Status: verification.StatusInitiated, IdempotencyKey: key,
		CreatedAt: updated, UpdatedAt: updated,
	}
	require.NoError(t, f.store.CreateVerification(ctx, v))

	advance := func(tr verification.Transition) {
		t.Helper()
		next, err := f.store.TransitionVerification(ctx, tr)
		require.NoError(t, err)
		v = next
	}

	for _, next := range []verification.Status{
		verification.StatusReservingCredit,
		verification.StatusRequestingNumber,
		verification.StatusNumberAssigned,
	} {
		if v.Status == status {
			return v
		}
		tr := v.Next(next)
		switch next {
		case verification.StatusRequestingNumber:
			r, err := f.ledger.Reserve(ctx, v.UserID, v.Cost, v.ID)
			require.NoError(t, err)
			tr.ReservationID = r.ID
		case verification.StatusNumberAssigned:
			tr.ProviderRef = "ref-" + v.ID
		}
		advance(tr)
	}
	return v
}

func TestService_Recover_InterruptedEarly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *options) { o.cfg.Recovery.StaleAfter = time.Minute })
	ctx := testContext()

	stale := f.seed(t, "", verification.StatusInitiated, time.Now().Add(-time.Hour))
	fresh := f.seed(t, "", verification.StatusInitiated, time.Now())

	report, err := f.svc.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Actions[ActionFailed])
	assert.Equal(t, 1, report.Actions[ActionSkipped])

	assert.Equal(t, verification.StatusFailed, f.get(t, stale.ID).Status)
	assert.Equal(t, verification.StatusInitiated, f.get(t, fresh.ID).Status)
}

func TestService_Recover_ReleasesReservation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext()

	v := f.seed(t, "", verification.StatusRequestingNumber, time.Now())
	require.Equal(t, domainledger.Cents(750), f.balance(t))

	_, err := f.svc.Recover(ctx)
	require.NoError(t, err)

	assert.Equal(t, verification.StatusFailed, f.get(t, v.ID).Status)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t))
}

func TestService_Recover_NumberAssigned(t *testing.T) {
	t.Parallel()

	t.Run("resumes while the client waits", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx := testContext()

		key := purchaseKey("user-1", "k-1")
		out, err := f.guard.Begin(ctx, key, "fp")
		require.NoError(t, err)
		require.Equal(t, appidem.StateNew, out.State)

		v := f.seed(t, key, verification.StatusNumberAssigned, time.Now())
		require.NoError(t, f.guard.Attach(ctx, key, v.ID))

		report, err := f.svc.Recover(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Actions[ActionResumed])

		got := f.get(t, v.ID)
		assert.Equal(t, verification.StatusPolling, got.Status)
		assert.True(t, got.Charged())
		assert.Equal(t, domainledger.Cents(750), f.balance(t))

		rec, err := f.guard.Lookup(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, idempotency.StatusCompleted, rec.Status)
	})

	t.Run("fails without a waiting client", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		v := f.seed(t, purchaseKey("user-1", "gone"), verification.StatusNumberAssigned, time.Now())

		report, err := f.svc.Recover(testContext())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Actions[ActionFailed])

		got := f.get(t, v.ID)
		assert.Equal(t, verification.StatusFailed, got.Status)
		assert.False(t, got.Charged())
		assert.Equal(t, domainledger.Cents(1000), f.balance(t))
		assert.True(t, f.gw.cancelled(got.ProviderRef))
	})
}

func TestService_Recover_PollingPastDeadline(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *options) { o.cfg.MaxWait = time.Millisecond })
	ctx := testContext()

	res, err := f.svc.Purchase(ctx, request("k-1"))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	report, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions[ActionTimedOut])

	assert.Equal(t, verification.StatusRefunded, f.get(t, res.Verification.ID).Status)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t))
}

func TestService_Recover_ReschedulesPolling(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(o *options) { o.withPoller = true })
	ctx := testContext()

	res, err := f.svc.Purchase(ctx, request("k-1"))
	require.NoError(t, err)

	// Simulate a restart: the task is gone but the row is still polling.
	require.True(t, f.poller.Cancel(res.Verification.ID))

	report, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions[ActionRescheduled])
	assert.Equal(t, 1, f.poller.Active())

	report, err = f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions[ActionSkipped], "already polling")
}

func TestService_Recover_RefundsUnrefunded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext()

	res, err := f.svc.Purchase(ctx, request("k-1"))
	require.NoError(t, err)

	// The process died between the timeout and the refund.
	v := res.Verification
	_, err = f.store.TransitionVerification(ctx, v.Next(verification.StatusTimedOut))
	require.NoError(t, err)

	report, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Actions[ActionRefunded])
	assert.Equal(t, verification.StatusRefunded, f.get(t, v.ID).Status)
	assert.Equal(t, domainledger.Cents(1000), f.balance(t))

	report, err = f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned, "refunded verifications are final")
}

func TestService_Recover_SkipsWhenLocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext()

	held, err := f.locker.TryAcquire(ctx, recoveryLock, time.Minute)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	f.seed(t, "", verification.StatusInitiated, time.Now().Add(-time.Hour))

	report, err := f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, report.Locked)
	assert.Zero(t, report.Scanned)
}

func TestService_Recover_RepublishesStagedEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext()

	res, err := f.svc.Purchase(ctx, request("k-1"))
	require.NoError(t, err)
	id := res.Verification.ID

	f.events.setDown(true)
	require.NoError(t, f.svc.OnDelivered(ctx, id, []verification.Message{{Kind: verification.KindSMS, Code: "1"}}))
	require.Equal(t, verification.StatusCompleted, f.get(t, id).Status)
	require.Empty(t, f.events.types())

	staged, err := f.store.ListStagedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, staged, 2)

	report, err := f.svc.Recover(ctx)
	require.Error(t, err, "publisher still down")
	assert.Zero(t, report.Republished)

	f.events.setDown(false)
	report, err = f.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Republished)
	assert.Equal(t, []event.Type{event.SMSReceived, event.VerificationCompleted}, f.events.types())

	staged, err = f.store.ListStagedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestService_OnDelivered_RepeatRepublishesCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := testContext()

	res, err := f.svc.Purchase(ctx, request("k-1"))
	require.NoError(t, err)
	id := res.Verification.ID

	f.events.setDown(true)
	require.NoError(t, f.svc.OnDelivered(ctx, id, []verification.Message{{Kind: verification.KindSMS, Code: "1"}}))

	f.events.setDown(false)
	require.NoError(t, f.svc.OnDelivered(ctx, id, []verification.Message{{Kind: verification.KindSMS, Code: "1"}}))
	assert.Equal(t, []event.Type{event.SMSReceived, event.VerificationCompleted}, f.events.types())
	assert.Equal(t, "1", f.get(t, id).MessageCode)
}
