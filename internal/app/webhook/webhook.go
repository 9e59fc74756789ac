// Package webhook authenticates inbound payment gateway webhooks and credits
// balances exactly once per gateway event id. The credit, the dedup row and
// the payment_completed event commit together.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsamuelsen11/numbers-core/internal/app/events"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	domainledger "github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/webhook"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.WebhookService = (*Service)(nil)

const signaturePrefix = "sha256="

// payload is the gateway's JSON body. Amount accepts a JSON number or a
// decimal string.
type payload struct {
	EventID   string          `json:"event_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// Service verifies and applies payment webhooks.
type Service struct {
	store   ports.Store
	ledger  *ledger.Service
	relay   *events.Relay
	secret  []byte
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates the webhook service. A nil m disables metrics.
func New(store ports.Store, l *ledger.Service, publisher ports.EventPublisher, cfg config.WebhookConfig, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		ledger:  l,
		relay:   events.NewRelay(store, publisher),
		secret:  []byte(cfg.Secret),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks the HMAC-SHA256 of body against signature, given as hex or
// as "sha256=<hex>".
func (s *Service) Verify(body []byte, signature string) error {
	if len(s.secret) == 0 {
		return &domain.InvalidSignatureError{Reason: "no webhook secret configured"}
	}

	sig := strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	if sig == "" {
		return &domain.InvalidSignatureError{Reason: "missing signature"}
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return &domain.InvalidSignatureError{Reason: "signature is not hex"}
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return &domain.InvalidSignatureError{Reason: "signature mismatch"}
	}
	return nil
}

// Process verifies, deduplicates and applies one webhook delivery. A
// repeated event id succeeds with Duplicate set and credits nothing.
// Events that do not credit a balance are recorded as ignored.
func (s *Service) Process(ctx context.Context, body []byte, signature string) (out ports.WebhookOutcome, err error) {
	ctx, span := telemetry.StartSpan(ctx, "webhook.Process")
	defer func() { telemetry.EndSpan(span, err) }()

	logger := logging.FromContext(ctx).With(slog.String("operation", "webhook.Process"))

	if err := s.Verify(body, signature); err != nil {
		s.metrics.WebhookRecorded("invalid_signature")
		logger.WarnContext(ctx, "rejected webhook", slog.Any("error", err))
		return ports.WebhookOutcome{}, err
	}

	p, err := parse(body)
	if err != nil {
		s.metrics.WebhookRecorded("invalid")
		return ports.WebhookOutcome{}, err
	}
	out.EventID = p.EventID
	logger = logger.With(slog.String("event_id", p.EventID), slog.String("event_type", p.Type))
	hash := payloadHash(body)

	if dup, err := s.duplicate(ctx, logger, p.EventID, hash); err != nil || dup {
		if dup {
			s.relay.Redeliver(ctx, PaymentEventID(p.EventID))
		}
		out.Duplicate = dup
		return out, err
	}

	if !p.isCredit() {
		err := s.store.InsertWebhookEvent(ctx, &webhook.Event{
			ID:          p.EventID,
			Type:        p.Type,
			Signature:   signature,
			PayloadHash: hash,
			Status:      webhook.StatusIgnored,
			ProcessedAt: s.now(),
		})
		if errors.Is(err, domain.ErrDuplicate) {
			s.metrics.WebhookRecorded("duplicate")
			out.Duplicate = true
			return out, nil
		}
		if err != nil {
			return ports.WebhookOutcome{}, fmt.Errorf("recording webhook event: %w", err)
		}
		s.metrics.WebhookRecorded("ignored")
		logger.InfoContext(ctx, "ignored webhook event")
		out.Ignored = true
		return out, nil
	}

	amount, err := p.amount()
	if err != nil {
		s.metrics.WebhookRecorded("invalid")
		return ports.WebhookOutcome{}, err
	}

	var completed event.Event
	record := func(ctx context.Context, tx ports.Store, t *domainledger.Transaction) error {
		err := tx.InsertWebhookEvent(ctx, &webhook.Event{
			ID:            p.EventID,
			Type:          p.Type,
			Signature:     signature,
			PayloadHash:   hash,
			Status:        webhook.StatusProcessed,
			TransactionID: t.ID,
			ProcessedAt:   s.now(),
		})
		if err != nil {
			return err
		}

		completed = event.Event{
			ID:          PaymentEventID(p.EventID),
			Type:        event.PaymentCompleted,
			UserID:      p.Reference,
			OrderingKey: t.ID,
			OccurredAt:  s.now(),
			Data: map[string]string{
				"event_id":       p.EventID,
				"transaction_id": t.ID,
				"amount":         t.Amount.String(),
				"balance_after":  t.BalanceAfter.String(),
			},
		}
		return s.relay.Stage(ctx, tx, completed)
	}

	credit, created, err := s.ledger.Credit(ctx, p.Reference, amount, "webhook:"+p.EventID, record)
	if errors.Is(err, domain.ErrDuplicate) || (err == nil && !created) {
		s.metrics.WebhookRecorded("duplicate")
		s.relay.Redeliver(ctx, PaymentEventID(p.EventID))
		out.Duplicate = true
		return out, nil
	}
	if err != nil {
		s.metrics.WebhookRecorded("error")
		logger.ErrorContext(ctx, "failed to credit balance",
			slog.String("user_id", p.Reference),
			slog.Any("error", err),
		)
		return ports.WebhookOutcome{}, fmt.Errorf("crediting balance: %w", err)
	}

	s.metrics.WebhookRecorded("processed")
	logger.InfoContext(ctx, "balance credited",
		slog.String("user_id", p.Reference),
		slog.String("transaction_id", credit.ID),
		slog.String("amount", credit.Amount.String()),
	)

	s.relay.Emit(ctx, completed)
	return out, nil
}

// PaymentEventID is the dedup id of the payment_completed event for a
// gateway event.
func PaymentEventID(gatewayEventID string) string {
	return "payment:" + gatewayEventID
}

// duplicate reports whether eventID was already handled, warning when the
// repeated delivery carries a different body.
func (s *Service) duplicate(ctx context.Context, logger *slog.Logger, eventID, hash string) (bool, error) {
	existing, err := s.store.GetWebhookEvent(ctx, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading webhook event: %w", err)
	}

	s.metrics.WebhookRecorded("duplicate")
	if existing.PayloadHash != hash {
		logger.WarnContext(ctx, "duplicate webhook event with different payload",
			slog.String("stored_hash", existing.PayloadHash),
			slog.String("received_hash", hash),
		)
	}
	return true, nil
}

func parse(body []byte) (*payload, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &domain.ValidationError{Fields: map[string]string{"body": "invalid JSON: " + err.Error()}}
	}

	fields := make(map[string]string)
	if strings.TrimSpace(p.EventID) == "" {
		fields["event_id"] = domain.MsgRequired
	}
	if strings.TrimSpace(p.Type) == "" {
		fields["type"] = domain.MsgRequired
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Fields: fields}
	}
	return &p, nil
}

func (p *payload) isCredit() bool {
	ev := webhook.PaymentEvent{Type: p.Type}
	return ev.IsCredit()
}

func (p *payload) amount() (domainledger.Cents, error) {
	fields := make(map[string]string)
	if strings.TrimSpace(p.Reference) == "" {
		fields["reference"] = domain.MsgRequired
	}
	amount, err := domainledger.FromDecimal(p.Amount)
	switch {
	case err != nil:
		fields["amount"] = err.Error()
	case amount <= 0:
		fields["amount"] = domain.MsgPositive
	}
	if len(fields) > 0 {
		return 0, &domain.ValidationError{Fields: fields}
	}
	return amount, nil
}

func payloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
