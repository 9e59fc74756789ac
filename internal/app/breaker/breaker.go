// Package breaker provides per-provider circuit breakers. Each Breaker wraps
// a gobreaker two-step state machine and adds exponential cooldown: every
// failed half-open trial doubles the open period up to a ceiling.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.HealthChecker = (*Breaker)(nil)

// Breaker guards calls to one provider.
type Breaker struct {
	provider    string
	enabled     bool
	cb          *gobreaker.CircuitBreaker[struct{}]
	baseDelay   time.Duration
	maxDelay    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
	delay       atomic.Int64 // current open period in ns
	nextRetryAt atomic.Int64 // unix ns; calls fail fast before it
	lastFailure atomic.Int64 // unix ns
}

// New creates a Breaker for provider. A disabled config yields a breaker
// that always allows calls.
func New(provider string, cfg config.CircuitBreakerConfig, m *metrics.Metrics, logger *slog.Logger) *Breaker {
	b := &Breaker{
		provider:  provider,
		enabled:   cfg.Enabled,
		baseDelay: cfg.Cooldown,
		maxDelay:  max(cfg.MaxCooldown, cfg.Cooldown),
		metrics:   m,
		logger:    logger.With(slog.String("breaker", provider)),
		now:       time.Now,
	}

	maxFailures := uint32(max(cfg.MaxFailures, 1))
	b.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful:  isSuccessful,
		OnStateChange: b.onStateChange,
	})
	return b
}

// isSuccessful decides which outcomes count against the provider. A
// permanent error means the provider answered; a cancelled caller says
// nothing about the provider.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, domain.ErrPermanentProvider) ||
		errors.Is(err, context.Canceled)
}

// onStateChange runs under gobreaker's lock; it must not call back into cb.
func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	now := b.now()

	switch to {
	case gobreaker.StateOpen:
		delay := b.baseDelay
		if from == gobreaker.StateHalfOpen {
			delay = min(time.Duration(b.delay.Load())*2, b.maxDelay)
		}
		b.delay.Store(int64(delay))
		b.nextRetryAt.Store(now.Add(delay).UnixNano())
	case gobreaker.StateClosed:
		b.delay.Store(0)
		b.nextRetryAt.Store(0)
	case gobreaker.StateHalfOpen:
	}

	b.metrics.BreakerTransition(b.provider, stateName(from), stateName(to))
	b.logger.Warn("circuit breaker state change",
		slog.String("from", stateName(from)),
		slog.String("to", stateName(to)),
		slog.Duration("cooldown", time.Duration(b.delay.Load())),
	)
}

// Name implements [ports.HealthChecker].
func (b *Breaker) Name() string {
	return "breaker:" + b.provider
}

// Provider returns the guarded provider's name.
func (b *Breaker) Provider() string {
	return b.provider
}

// Allow reports whether a call would currently be attempted. It does not
// consume the half-open trial.
func (b *Breaker) Allow() error {
	if !b.enabled {
		return nil
	}
	if err := b.gate(); err != nil {
		return err
	}
	if b.cb.State() == gobreaker.StateOpen {
		return b.openError()
	}
	return nil
}

// Execute runs fn through the breaker. When the breaker is open, or the
// single half-open trial is already running, fn is not called and
// *domain.CircuitOpenError is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.enabled {
		return fn(ctx)
	}
	if err := b.gate(); err != nil {
		b.metrics.BreakerRejected(b.provider)
		return err
	}

	_, err := b.cb.Execute(func() (struct{}, error) {
		err := fn(ctx)
		if !isSuccessful(err) {
			b.lastFailure.Store(b.now().UnixNano())
		}
		return struct{}{}, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.BreakerRejected(b.provider)
		return b.openError()
	}
	return err
}

// gate fails fast while the extended cooldown has not elapsed.
func (b *Breaker) gate() error {
	next := b.nextRetryAt.Load()
	if next != 0 && b.now().UnixNano() < next {
		return b.openError()
	}
	return nil
}

func (b *Breaker) openError() error {
	return &domain.CircuitOpenError{Provider: b.provider, RetryAt: unixNano(b.nextRetryAt.Load())}
}

// Snapshot returns the breaker's current state.
func (b *Breaker) Snapshot() domain.CircuitBreakerState {
	s := domain.CircuitBreakerState{
		Provider:      b.provider,
		State:         domain.BreakerClosed,
		LastFailureAt: unixNano(b.lastFailure.Load()),
	}
	if !b.enabled {
		return s
	}

	s.FailureCount = b.cb.Counts().ConsecutiveFailures
	s.State = toDomainState(b.cb.State())
	if b.gate() != nil {
		s.State = domain.BreakerOpen
	}
	if s.State != domain.BreakerClosed {
		s.NextRetryAt = unixNano(b.nextRetryAt.Load())
	}
	return s
}

// HealthCheck reports an open breaker as failing and a half-open one as
// degraded.
func (b *Breaker) HealthCheck(context.Context) error {
	switch s := b.Snapshot(); s.State {
	case domain.BreakerOpen:
		return fmt.Errorf("%s: failing (circuit breaker open until %s)", b.provider, s.NextRetryAt.UTC().Format(time.RFC3339))
	case domain.BreakerHalfOpen:
		return fmt.Errorf("%s: degraded (circuit breaker half-open)", b.provider)
	default:
		return nil
	}
}

func toDomainState(s gobreaker.State) domain.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return domain.BreakerOpen
	case gobreaker.StateHalfOpen:
		return domain.BreakerHalfOpen
	default:
		return domain.BreakerClosed
	}
}

func stateName(s gobreaker.State) string {
	return string(toDomainState(s))
}

func unixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
