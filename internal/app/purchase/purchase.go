// Package purchase orchestrates verification purchases: credit reservation,
// number provisioning, charge commit, delivery polling, cancellation and
// crash recovery. Every status change is a compare-and-swap on the
// verification row; the charge and the move to polling commit together.
package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen11/numbers-core/internal/app/breaker"
	"github.com/jsamuelsen11/numbers-core/internal/app/compensation"
	"github.com/jsamuelsen11/numbers-core/internal/app/events"
	"github.com/jsamuelsen11/numbers-core/internal/app/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/app/poller"
	"github.com/jsamuelsen11/numbers-core/internal/app/saga"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	domainledger "github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface checks.
var (
	_ ports.PurchaseService = (*Service)(nil)
	_ poller.Handler        = (*Service)(nil)
)

// Deps are the collaborators of a Service. Events, Locker and Metrics may
// be nil.
type Deps struct {
	Store        ports.Store
	Ledger       *ledger.Service
	Guard        *idempotency.Guard
	Providers    ports.Providers
	Breakers     *breaker.Registry
	Prices       ports.PriceBook
	Poller       *poller.Poller
	Compensation *compensation.Service
	Events       ports.EventPublisher
	Locker       ports.Locker
	Metrics      *metrics.Metrics
}

// Config holds the orchestrator settings.
type Config struct {
	// DefaultProvider is used when a request names no provider.
	DefaultProvider string
	// ProviderRetry bounds attempts at provisioning a number.
	ProviderRetry config.RetryConfig
	// ProviderTimeout applies to each provider call.
	ProviderTimeout time.Duration
	// MaxWait is how long a verification polls for a message.
	MaxWait time.Duration

	Recovery config.RecoveryConfig
}

// Service is the purchase orchestrator.
type Service struct {
	store        ports.Store
	ledger       *ledger.Service
	guard        *idempotency.Guard
	providers    ports.Providers
	breakers     *breaker.Registry
	prices       ports.PriceBook
	poller       *poller.Poller
	compensation *compensation.Service
	relay        *events.Relay
	locker       ports.Locker
	metrics      *metrics.Metrics

	cfg           Config
	providerRetry retry.Policy
	now           func() time.Time
}

// New creates the orchestrator and installs it as the poller's handler.
func New(d Deps, cfg Config) *Service {
	s := &Service{
		store:         d.Store,
		ledger:        d.Ledger,
		guard:         d.Guard,
		providers:     d.Providers,
		breakers:      d.Breakers,
		prices:        d.Prices,
		poller:        d.Poller,
		compensation:  d.Compensation,
		relay:         events.NewRelay(d.Store, d.Events),
		locker:        d.Locker,
		metrics:       d.Metrics,
		cfg:           cfg,
		providerRetry: retry.FromConfig(cfg.ProviderRetry),
		now:           func() time.Time { return time.Now().UTC() },
	}
	if s.poller != nil {
		s.poller.SetHandler(s)
	}
	return s
}

// Purchase implements [ports.PurchaseService].
func (s *Service) Purchase(ctx context.Context, req ports.PurchaseRequest) (res *ports.PurchaseResult, err error) {
	if req.Provider == "" {
		req.Provider = s.cfg.DefaultProvider
	}

	ctx, span := telemetry.StartSpan(ctx, "purchase.Purchase")
	defer func() { telemetry.EndSpan(span, err) }()

	start := s.now()
	logger := logging.FromContext(ctx).With(
		slog.String("operation", "Purchase"),
		slog.String("user_id", req.UserID),
		slog.String("provider", req.Provider),
	)

	if err := validateRequest(req); err != nil {
		return nil, err
	}
	gw, err := s.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	key := purchaseKey(req.UserID, req.IdempotencyKey)
	outcome, err := s.guard.Begin(ctx, key, idempotency.Fingerprint(req.UserID, req.Provider, req.Service, req.Country))
	if err != nil {
		return nil, err
	}
	if outcome.State == idempotency.StateCompleted {
		var v verification.Verification
		if err := json.Unmarshal(outcome.Result, &v); err != nil {
			return nil, fmt.Errorf("decoding stored purchase: %w", err)
		}
		s.record(req.Provider, "replayed", start)
		return &ports.PurchaseResult{Verification: v, Replayed: true}, nil
	}

	// Money may move from here on; a disconnecting client must not cut
	// the purchase short.
	ctx = context.WithoutCancel(ctx)

	br := s.breakers.For(req.Provider)
	if err := br.Allow(); err != nil {
		s.abandon(ctx, key)
		s.record(req.Provider, "rejected", start)
		return nil, err
	}

	price, err := s.prices.Price(req.Provider, req.Service, req.Country)
	if err != nil {
		s.abandon(ctx, key)
		return nil, err
	}

	now := s.now()
	v := &verification.Verification{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Provider:       req.Provider,
		Service:        req.Service,
		Country:        req.Country,
		Cost:           price,
		Status:         verification.StatusInitiated,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateVerification(ctx, v); err != nil {
		s.abandon(ctx, key)
		return nil, fmt.Errorf("creating verification: %w", err)
	}
	if err := s.guard.Attach(ctx, key, v.ID); err != nil {
		logger.WarnContext(ctx, "failed to attach verification to idempotency key",
			slog.String("verification_id", v.ID),
			slog.Any("error", err),
		)
	}

	cur, err := s.provision(ctx, gw, br, v)
	if err != nil {
		s.fail(ctx, cur, err)
		s.abandon(ctx, key)
		s.record(req.Provider, outcomeOf(err), start)
		logger.WarnContext(ctx, "purchase failed",
			slog.String("verification_id", v.ID),
			slog.Any("error", err),
		)
		return nil, translate(err)
	}

	s.schedule(ctx, cur)
	s.complete(ctx, key, cur)
	s.record(req.Provider, "success", start)
	logger.InfoContext(ctx, "verification purchased",
		slog.String("verification_id", cur.ID),
		slog.String("cost", cur.Cost.String()),
	)

	return &ports.PurchaseResult{Verification: *cur}, nil
}

// provision runs the reserve, request-number and commit steps as a saga.
// It returns the latest known state of v, also on failure.
func (s *Service) provision(ctx context.Context, gw ports.ProviderGateway, br *breaker.Breaker, v *verification.Verification) (*verification.Verification, error) {
	cur := v
	var reservation *domainledger.Reservation

	sg := saga.New("purchase")
	steps := []saga.Step{
		{
			Name: "reserve_credit",
			Do: func(ctx context.Context) error {
				next, err := s.store.TransitionVerification(ctx, cur.Next(verification.StatusReservingCredit))
				if err != nil {
					return err
				}
				cur = next

				base := cur
				var moved *verification.Verification
				r, err := s.ledger.ReserveWith(ctx, base.UserID, base.Cost, base.ID,
					func(ctx context.Context, tx ports.Store, r *domainledger.Reservation) error {
						tr := base.Next(verification.StatusRequestingNumber)
						tr.ReservationID = r.ID
						next, err := tx.TransitionVerification(ctx, tr)
						if err != nil {
							return err
						}
						moved = next
						return nil
					})
				if err != nil {
					return err
				}
				reservation, cur = r, moved
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.ledger.Release(ctx, reservation.ID)
			},
		},
		{
			Name: "request_number",
			Do: func(ctx context.Context) error {
				a, err := s.requestNumber(ctx, gw, br, cur.Service, cur.Country)
				if err != nil {
					return err
				}
				tr := cur.Next(verification.StatusNumberAssigned)
				tr.ProviderRef = a.Ref
				tr.PhoneNumber = a.PhoneNumber
				next, err := s.store.TransitionVerification(ctx, tr)
				if err != nil {
					s.cancelNumber(ctx, gw, a.Ref)
					return err
				}
				cur = next
				return nil
			},
			Compensate: func(ctx context.Context) error {
				s.cancelNumber(ctx, gw, cur.ProviderRef)
				return nil
			},
		},
		{
			Name: "commit_charge",
			Do: func(ctx context.Context) error {
				next, err := s.commit(ctx, cur, reservation.ID)
				if err != nil {
					return err
				}
				cur = next
				return nil
			},
		},
	}
	for _, step := range steps {
		if err := sg.Add(step); err != nil {
			return cur, err
		}
	}

	err := sg.Run(ctx)
	return cur, err
}

// commit charges the reservation and moves v from number_assigned to
// polling in one database transaction.
func (s *Service) commit(ctx context.Context, v *verification.Verification, reservationID string) (*verification.Verification, error) {
	deadline := s.now().Add(s.cfg.MaxWait)

	var polled *verification.Verification
	_, err := s.ledger.Commit(ctx, reservationID, chargeKey(v.ID),
		func(ctx context.Context, tx ports.Store, t *domainledger.Transaction) error {
			tr := v.Next(verification.StatusPolling)
			tr.ChargeTransactionID = t.ID
			tr.PollDeadline = deadline
			next, err := tx.TransitionVerification(ctx, tr)
			if err != nil {
				return err
			}
			polled = next
			return nil
		})
	if err != nil {
		return nil, err
	}
	if polled == nil {
		// The charge already existed; the row moved with it.
		return s.store.GetVerification(ctx, v.ID)
	}
	return polled, nil
}

func (s *Service) requestNumber(ctx context.Context, gw ports.ProviderGateway, br *breaker.Breaker, service, country string) (verification.Assignment, error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.RequestNumber")

	var a verification.Assignment
	err := retry.Do(ctx, s.providerRetry, isTransientProvider, func(ctx context.Context) error {
		return br.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := s.providerContext(ctx)
			defer cancel()

			got, err := gw.RequestNumber(callCtx, service, country)
			if err != nil {
				return err
			}
			a = got
			return nil
		})
	})
	telemetry.EndSpan(span, err)
	return a, err
}

// cancelNumber releases a provisioned number. Failures are logged only;
// the provider expires unused numbers on its own.
func (s *Service) cancelNumber(ctx context.Context, gw ports.ProviderGateway, ref string) {
	if ref == "" {
		return
	}
	callCtx, cancel := s.providerContext(ctx)
	defer cancel()

	if err := gw.Cancel(callCtx, ref); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to cancel provider number",
			slog.String("provider", gw.Name()),
			slog.String("provider_ref", ref),
			slog.Any("error", err),
		)
	}
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

// fail moves a verification that never got charged to failed. A lost race
// (a concurrent cancel) leaves the row as the winner wrote it.
func (s *Service) fail(ctx context.Context, v *verification.Verification, cause error) {
	if v == nil || !v.Status.CanTransition(verification.StatusFailed) {
		return
	}
	tr := v.Next(verification.StatusFailed)
	tr.FailureReason = failureReason(cause)
	if _, err := s.store.TransitionVerification(ctx, tr); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to mark verification failed",
			slog.String("verification_id", v.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) schedule(ctx context.Context, v *verification.Verification) bool {
	if s.poller == nil {
		return false
	}
	return s.poller.Schedule(ctx, poller.Task{
		VerificationID: v.ID,
		Provider:       v.Provider,
		ProviderRef:    v.ProviderRef,
		Deadline:       v.PollDeadline,
	})
}

func (s *Service) complete(ctx context.Context, key string, v *verification.Verification) {
	body, err := json.Marshal(v)
	if err == nil {
		err = s.guard.Complete(ctx, key, body)
	}
	if err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to complete idempotency key",
			slog.String("verification_id", v.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) abandon(ctx context.Context, key string) {
	if err := s.guard.Abandon(ctx, key); err != nil {
		logging.FromContext(ctx).WarnContext(ctx, "failed to abandon idempotency key", slog.Any("error", err))
	}
}

func (s *Service) record(provider, outcome string, start time.Time) {
	s.metrics.PurchaseRecorded(provider, outcome, s.now().Sub(start).Seconds())
}

// Get implements [ports.PurchaseService].
func (s *Service) Get(ctx context.Context, userID, id string) (*verification.Verification, error) {
	v, err := s.store.GetVerification(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, fmt.Errorf("verification %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

// maxCancelAttempts bounds how often Cancel re-reads a verification that
// moved under it.
const maxCancelAttempts = 5

// Cancel implements [ports.PurchaseService].
func (s *Service) Cancel(ctx context.Context, userID, id string) (*verification.Verification, error) {
	logger := logging.FromContext(ctx).With(
		slog.String("operation", "Cancel"),
		slog.String("verification_id", id),
	)
	ctx = context.WithoutCancel(ctx)

	var cancelled *verification.Verification
	for range maxCancelAttempts {
		v, err := s.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}

		switch {
		case v.Status == verification.StatusCompleted:
			return nil, fmt.Errorf("%w: verification %s is completed", domain.ErrConflict, v.ID)
		case !v.Status.IsActive():
			if v.AwaitingRefund() {
				return s.compensation.Compensate(ctx, v.ID, compensation.ReasonCancelled)
			}
			return v, nil
		}

		tr := v.Next(verification.StatusCancelled)
		tr.FailureReason = "cancelled by user"
		next, err := s.store.TransitionVerification(ctx, tr)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("cancelling verification: %w", err)
		}
		cancelled = next
		break
	}
	if cancelled == nil {
		return nil, fmt.Errorf("%w: verification %s keeps changing", domain.ErrConflict, id)
	}

	if s.poller != nil {
		s.poller.Cancel(cancelled.ID)
	}
	if gw, err := s.providers.Get(cancelled.Provider); err == nil {
		s.cancelNumber(ctx, gw, cancelled.ProviderRef)
	}

	out, err := s.compensation.Compensate(ctx, cancelled.ID, compensation.ReasonCancelled)
	if err != nil {
		logger.ErrorContext(ctx, "compensation after cancel failed", slog.Any("error", err))
		return nil, err
	}
	logger.InfoContext(ctx, "verification cancelled", slog.Bool("refunded", out.Status == verification.StatusRefunded))
	return out, nil
}

// OnDelivered implements [poller.Handler]. The first message completes the
// verification; deliveries for a verification that already ended are
// ignored.
func (s *Service) OnDelivered(ctx context.Context, id string, msgs []verification.Message) error {
	logger := logging.FromContext(ctx).With(
		slog.String("operation", "OnDelivered"),
		slog.String("verification_id", id),
	)
	if len(msgs) == 0 {
		return nil
	}

	v, err := s.store.GetVerification(ctx, id)
	if err != nil {
		return fmt.Errorf("loading verification: %w", err)
	}
	if v.Status != verification.StatusPolling {
		s.lateDelivery(ctx, logger, v)
		return nil
	}

	msg := msgs[0]
	tr := v.Next(verification.StatusCompleted)
	tr.MessageCode = msg.Code
	tr.MessageText = msg.Text

	var (
		done   *verification.Verification
		staged []event.Event
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx ports.Store) error {
		var err error
		if done, err = tx.TransitionVerification(ctx, tr); err != nil {
			return err
		}
		staged = completionEvents(done, msg, s.now())
		for _, ev := range staged {
			if err := s.relay.Stage(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		if cur, gerr := s.store.GetVerification(ctx, id); gerr == nil {
			s.lateDelivery(ctx, logger, cur)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("completing verification: %w", err)
	}

	logger.InfoContext(ctx, "verification completed", slog.String("message_kind", string(msg.Kind)))
	for _, ev := range staged {
		s.relay.Emit(ctx, ev)
	}
	return nil
}

// completionEvents are the events of a completed verification, in delivery
// order.
func completionEvents(v *verification.Verification, msg verification.Message, at time.Time) []event.Event {
	return []event.Event{
		{
			ID:          v.ID + ":sms",
			Type:        event.SMSReceived,
			UserID:      v.UserID,
			OrderingKey: v.ID,
			OccurredAt:  at,
			Data: map[string]string{
				"verification_id": v.ID,
				"kind":            string(msg.Kind),
				"code":            msg.Code,
				"text":            msg.Text,
			},
		},
		{
			ID:          CompletedEventID(v.ID),
			Type:        event.VerificationCompleted,
			UserID:      v.UserID,
			OrderingKey: v.ID,
			OccurredAt:  at,
			Data: map[string]string{
				"verification_id": v.ID,
				"service":         v.Service,
				"cost":            v.Cost.String(),
			},
		},
	}
}

// CompletedEventID is the dedup id of a verification's
// verification_completed event.
func CompletedEventID(verificationID string) string {
	return verificationID + ":completed"
}

// lateDelivery ignores a message for a verification that already ended. A
// completed verification whose events are still staged gets them published.
func (s *Service) lateDelivery(ctx context.Context, logger *slog.Logger, v *verification.Verification) {
	if v.Status == verification.StatusCompleted {
		s.relay.Redeliver(ctx, v.ID+":sms")
		s.relay.Redeliver(ctx, CompletedEventID(v.ID))
	}
	s.metrics.LateDelivery()
	logger.InfoContext(ctx, "ignoring delivery for settled verification", slog.String("status", v.Status.String()))
}

// OnTimeout implements [poller.Handler].
func (s *Service) OnTimeout(ctx context.Context, id string) error {
	return s.settle(ctx, id, verification.StatusTimedOut, "no message before deadline", compensation.ReasonTimeout)
}

// OnFailed implements [poller.Handler].
func (s *Service) OnFailed(ctx context.Context, id string, cause error) error {
	reason := "provider failure"
	if cause != nil {
		reason = failureReason(cause)
	}
	return s.settle(ctx, id, verification.StatusFailed, reason, compensation.ReasonProviderFailure)
}

// settle ends a polling verification unsuccessfully and refunds it.
func (s *Service) settle(ctx context.Context, id string, to verification.Status, why string, reason compensation.Reason) error {
	logger := logging.FromContext(ctx).With(
		slog.String("operation", "settle"),
		slog.String("verification_id", id),
		slog.String("status", to.String()),
	)

	v, err := s.store.GetVerification(ctx, id)
	if err != nil {
		return fmt.Errorf("loading verification: %w", err)
	}

	if v.Status == verification.StatusPolling {
		tr := v.Next(to)
		tr.FailureReason = why
		next, err := s.store.TransitionVerification(ctx, tr)
		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			if v, err = s.store.GetVerification(ctx, id); err != nil {
				return fmt.Errorf("reloading verification: %w", err)
			}
		case err != nil:
			return fmt.Errorf("settling verification: %w", err)
		default:
			v = next
		}
	}

	if !v.AwaitingRefund() {
		logger.DebugContext(ctx, "nothing to settle", slog.String("current", v.Status.String()))
		return nil
	}

	if gw, err := s.providers.Get(v.Provider); err == nil {
		s.cancelNumber(ctx, gw, v.ProviderRef)
	}
	if _, err := s.compensation.Compensate(ctx, v.ID, reason); err != nil {
		logger.ErrorContext(ctx, "compensation failed, recovery will retry", slog.Any("error", err))
		return err
	}
	return nil
}

func validateRequest(req ports.PurchaseRequest) error {
	fields := make(map[string]string)
	if strings.TrimSpace(req.UserID) == "" {
		fields["user_id"] = domain.MsgRequired
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		fields["idempotency_key"] = domain.MsgRequired
	}
	if strings.TrimSpace(req.Provider) == "" {
		fields["provider"] = domain.MsgRequired
	}
	if strings.TrimSpace(req.Service) == "" {
		fields["service"] = domain.MsgRequired
	}
	if strings.TrimSpace(req.Country) == "" {
		fields["country"] = domain.MsgRequired
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// purchaseKey scopes a client idempotency key to its user.
func purchaseKey(userID, key string) string {
	return "purchase:" + userID + ":" + key
}

func chargeKey(verificationID string) string {
	return "charge:" + verificationID
}

func isTransientProvider(err error) bool {
	var te *domain.TransientProviderError
	return errors.As(err, &te)
}

// translate maps store-level races to a conflict the caller can act on.
func translate(err error) error {
	if errors.Is(err, domain.ErrVersionConflict) {
		return fmt.Errorf("%w: verification changed during purchase: %w", domain.ErrConflict, err)
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "rejected"
	case errors.Is(err, domain.ErrVersionConflict):
		return "cancelled"
	default:
		return "failed"
	}
}

func failureReason(err error) string {
	var se *saga.StepError
	if errors.As(err, &se) {
		return se.Step + ": " + se.Err.Error()
	}
	return err.Error()
}
