// Package poller polls providers for messages delivered to purchased
// numbers. Each verification gets one cancellable goroutine that backs off
// between polls until a message arrives, the provider fails permanently or
// the deadline passes. Concurrent provider calls are bounded by a semaphore.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jsamuelsen11/numbers-core/internal/app/breaker"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Task identifies one verification to poll.
type Task struct {
	VerificationID string
	Provider       string
	ProviderRef    string
	Deadline       time.Time
}

// Handler receives poll outcomes. Calls run on the task goroutine with a
// context that outlives Cancel and Stop.
type Handler interface {
	OnDelivered(ctx context.Context, verificationID string, msgs []verification.Message) error
	OnTimeout(ctx context.Context, verificationID string) error
	OnFailed(ctx context.Context, verificationID string, cause error) error
}

type entry struct {
	cancel context.CancelFunc
}

// Poller owns the polling goroutines.
type Poller struct {
	providers ports.Providers
	breakers  *breaker.Registry
	locker    ports.Locker
	cfg       config.PollerConfig
	backoff   retry.Policy
	sem       *semaphore.Weighted
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu      sync.Mutex
	handler Handler
	tasks   map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Poller. locker may be nil when only one instance runs.
func New(providers ports.Providers, breakers *breaker.Registry, locker ports.Locker, cfg config.PollerConfig, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		providers: providers,
		breakers:  breakers,
		locker:    locker,
		cfg:       cfg,
		backoff: retry.Policy{
			InitialInterval: cfg.Interval,
			MaxInterval:     cfg.MaxInterval,
			Multiplier:      cfg.Multiplier,
		},
		sem:     semaphore.NewWeighted(int64(max(cfg.MaxConcurrentPolls, 1))),
		metrics: m,
		logger:  logger.With(slog.String("component", "poller")),
		tasks:   make(map[string]*entry),
	}
}

// SetHandler installs the outcome handler. It must be called before the
// first Schedule.
func (p *Poller) SetHandler(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Schedule starts polling t unless a task for the same verification is
// already running or the poller is stopped. It reports whether a task was
// started. The task is detached from ctx; only its logger is carried over.
func (p *Poller) Schedule(ctx context.Context, t Task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped || p.handler == nil {
		return false
	}
	if _, ok := p.tasks[t.VerificationID]; ok {
		return false
	}

	logger := logging.FromContext(ctx).With(
		slog.String("verification_id", t.VerificationID),
		slog.String("provider", t.Provider),
	)
	taskCtx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))
	e := &entry{cancel: cancel}
	p.tasks[t.VerificationID] = e
	p.metrics.PollTasks(len(p.tasks))

	p.wg.Add(1)
	go p.run(taskCtx, t, p.handler, e)
	return true
}

// Cancel stops the task for verificationID without calling the handler.
func (p *Poller) Cancel(verificationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.tasks[verificationID]
	if ok {
		e.cancel()
		delete(p.tasks, verificationID)
		p.metrics.PollTasks(len(p.tasks))
	}
	return ok
}

// Active returns the number of running tasks.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// Stop cancels every task and waits for the goroutines to exit. Tasks
// cancelled this way are picked up again by recovery on the next start.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	for id, e := range p.tasks {
		e.cancel()
		delete(p.tasks, id)
	}
	p.metrics.PollTasks(0)
	p.mu.Unlock()

	p.wg.Wait()
}

// finish removes e unless a newer task for the same id replaced it.
func (p *Poller) finish(id string, e *entry) {
	e.cancel()

	p.mu.Lock()
	if cur, ok := p.tasks[id]; ok && cur == e {
		delete(p.tasks, id)
		p.metrics.PollTasks(len(p.tasks))
	}
	p.mu.Unlock()
	p.wg.Done()
}

func (p *Poller) run(ctx context.Context, t Task, h Handler, e *entry) {
	defer p.finish(t.VerificationID, e)
	logger := logging.FromContext(ctx)

	if p.locker != nil {
		ttl := time.Until(t.Deadline) + p.cfg.PollTimeout
		lock, err := p.locker.TryAcquire(ctx, "poll:"+t.VerificationID, max(ttl, p.cfg.PollTimeout))
		if err != nil {
			logger.InfoContext(ctx, "skipping poll task",
				slog.String("reason", "lock not acquired"),
				slog.Any("error", err),
			)
			return
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "failed to release poll lock", slog.Any("error", err))
			}
		}()
	}

	// Handler calls must finish even if the task is cancelled meanwhile.
	hctx := context.WithoutCancel(ctx)

	for attempt := 1; ; attempt++ {
		remaining := time.Until(t.Deadline)
		if remaining <= 0 {
			p.report(ctx, "OnTimeout", h.OnTimeout(hctx, t.VerificationID))
			return
		}

		if err := retry.Sleep(ctx, min(p.backoff.Backoff(attempt), remaining)); err != nil {
			return
		}

		msgs, err := p.poll(ctx, t)
		switch {
		case ctx.Err() != nil:
			return
		case err == nil && len(msgs) > 0:
			p.report(ctx, "OnDelivered", h.OnDelivered(hctx, t.VerificationID, msgs))
			return
		case errors.Is(err, domain.ErrPermanentProvider):
			p.report(ctx, "OnFailed", h.OnFailed(hctx, t.VerificationID, err))
			return
		case err != nil:
			logger.DebugContext(ctx, "poll failed, will retry",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
	}
}

// poll makes one bounded, breaker-guarded provider call.
func (p *Poller) poll(ctx context.Context, t Task) ([]verification.Message, error) {
	gw, err := p.providers.Get(t.Provider)
	if err != nil {
		return nil, &domain.PermanentProviderError{Provider: t.Provider, Op: "poll_messages", Err: err}
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	pctx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	var msgs []verification.Message
	err = p.breakers.For(t.Provider).Execute(pctx, func(ctx context.Context) error {
		var err error
		msgs, err = gw.PollMessages(ctx, t.ProviderRef)
		return err
	})
	p.metrics.PollRecorded(t.Provider, pollResult(msgs, err))
	return msgs, err
}

func pollResult(msgs []verification.Message, err error) string {
	switch {
	case err == nil && len(msgs) > 0:
		return "delivered"
	case err == nil:
		return "empty"
	case errors.Is(err, domain.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrPermanentProvider):
		return "permanent"
	default:
		return "transient"
	}
}

func (p *Poller) report(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	logging.FromContext(ctx).ErrorContext(ctx, "poll outcome handler failed",
		slog.String("operation", "Handler."+op),
		slog.Any("error", err),
	)
}
