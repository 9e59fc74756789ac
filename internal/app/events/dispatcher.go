// Package events fans domain events out to notification channels with
// at-least-once delivery. Events are appended to a durable outbox before
// Dispatch returns; one worker per channel delivers that channel's pending
// events in sequence order and acknowledges them.
//
// Order holds per ordering key: a failing event holds back later events
// with its key and nothing else. An event that fails permanently, or for
// too many rounds, is dead-lettered.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.EventPublisher = (*Dispatcher)(nil)

const (
	defaultRedeliveryInterval = 5 * time.Second
	defaultDeliveryTimeout    = 10 * time.Second
	defaultMaxDeliveryRounds  = 20
)

// ErrStarted is returned by Register after Start.
var ErrStarted = errors.New("events: dispatcher already started")

// Dispatcher owns the channel workers.
type Dispatcher struct {
	outbox          ports.Outbox
	policy          retry.Policy
	interval        time.Duration
	deliveryTimeout time.Duration
	batchSize       int
	maxRounds       int
	metrics         *metrics.Metrics
	logger          *slog.Logger
	now             func() time.Time

	mu       sync.Mutex
	channels []ports.Channel
	names    []string
	wake     map[string]chan struct{}
	started  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Dispatcher over outbox. A nil m disables metrics.
func New(outbox ports.Outbox, cfg config.EventsConfig, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if cfg.RedeliveryInterval <= 0 {
		cfg.RedeliveryInterval = defaultRedeliveryInterval
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.MaxDeliveryRounds <= 0 {
		cfg.MaxDeliveryRounds = defaultMaxDeliveryRounds
	}
	return &Dispatcher{
		outbox:          outbox,
		policy:          retry.FromConfig(cfg.Retry),
		interval:        cfg.RedeliveryInterval,
		deliveryTimeout: cfg.DeliveryTimeout,
		batchSize:       max(cfg.BatchSize, 1),
		maxRounds:       cfg.MaxDeliveryRounds,
		metrics:         m,
		logger:          logger.With(slog.String("component", "events")),
		now:             func() time.Time { return time.Now().UTC() },
		wake:            make(map[string]chan struct{}),
	}
}

// Register adds a channel. Channels must be registered before Start and
// names must be unique.
func (d *Dispatcher) Register(ch ports.Channel) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrStarted
	}
	if _, ok := d.wake[ch.Name()]; ok {
		return fmt.Errorf("events: channel %q already registered", ch.Name())
	}
	d.channels = append(d.channels, ch)
	d.names = append(d.names, ch.Name())
	d.wake[ch.Name()] = make(chan struct{}, 1)
	return nil
}

// Channels returns the registered channel names.
func (d *Dispatcher) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...)
}

// Start launches one worker per channel. Each worker first delivers events
// left pending by a previous run.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for _, ch := range d.channels {
		d.wg.Add(1)
		go d.worker(ctx, ch, d.wake[ch.Name()])
	}
}

// Stop cancels the workers and waits for them. Undelivered events stay in
// the outbox.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

// Publish implements [ports.EventPublisher].
func (d *Dispatcher) Publish(ctx context.Context, ev event.Event) error {
	_, err := d.Dispatch(ctx, ev)
	return err
}

// Dispatch assigns ev a dedup id when it has none, stores it durably for
// every registered channel and wakes the workers. It never waits for
// delivery. The stored event, with its sequence, is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) (event.Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OrderingKey == "" {
		ev.OrderingKey = ev.ID
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = d.now()
	}

	names := d.Channels()
	if len(names) == 0 {
		d.logger.DebugContext(ctx, "no channels registered, dropping event",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.Type)),
		)
		return ev, nil
	}

	stored, err := d.outbox.Append(ctx, ev, names)
	if err != nil {
		return ev, fmt.Errorf("dispatching %s: %w", ev.Type, err)
	}

	for _, name := range names {
		select {
		case d.wake[name] <- struct{}{}:
		default:
		}
	}
	return stored, nil
}

func (d *Dispatcher) worker(ctx context.Context, ch ports.Channel, wake <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// failed rounds per sequence; reset on restart
	failures := make(map[uint64]int)
	for {
		d.drain(ctx, ch, failures)

		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// drain makes one pass over the channel's pending events. An event that
// fails holds back the later events sharing its ordering key until the next
// round; other keys keep flowing.
func (d *Dispatcher) drain(ctx context.Context, ch ports.Channel, failures map[uint64]int) {
	logger := d.logger.With(slog.String("channel", ch.Name()))
	blocked := make(map[string]struct{})

	var after uint64
	for ctx.Err() == nil {
		pending, err := d.outbox.Pending(ctx, ch.Name(), after, d.batchSize)
		if err != nil {
			logger.ErrorContext(ctx, "failed to read outbox", slog.Any("error", err))
			return
		}

		for _, ev := range pending {
			after = ev.Sequence
			if _, ok := blocked[ev.OrderingKey]; ok {
				continue
			}

			err := d.deliver(ctx, ch, ev)
			if err != nil && ctx.Err() != nil {
				return
			}
			if err != nil {
				failures[ev.Sequence]++
				if errors.Is(err, event.ErrUndeliverable) || failures[ev.Sequence] >= d.maxRounds {
					d.deadLetter(ctx, logger, ch, ev, failures[ev.Sequence], err)
					delete(failures, ev.Sequence)
					continue
				}

				blocked[ev.OrderingKey] = struct{}{}
				d.metrics.EventDelivered(ch.Name(), "failed")
				logger.WarnContext(ctx, "event delivery failed, will retry next round",
					slog.String("event_id", ev.ID),
					slog.String("ordering_key", ev.OrderingKey),
					slog.Uint64("sequence", ev.Sequence),
					slog.Int("round", failures[ev.Sequence]),
					slog.Any("error", err),
				)
				continue
			}

			delete(failures, ev.Sequence)
			d.metrics.EventDelivered(ch.Name(), "delivered")
			if err := d.outbox.Ack(ctx, ch.Name(), ev.Sequence); err != nil {
				logger.ErrorContext(ctx, "failed to ack event",
					slog.String("event_id", ev.ID),
					slog.Any("error", err),
				)
				return
			}
		}

		if len(pending) < d.batchSize {
			return
		}
	}
}

func (d *Dispatcher) deadLetter(ctx context.Context, logger *slog.Logger, ch ports.Channel, ev event.Event, rounds int, cause error) {
	d.metrics.EventDelivered(ch.Name(), "dead_lettered")
	logger.ErrorContext(ctx, "giving up on event",
		slog.String("event_id", ev.ID),
		slog.String("event_type", string(ev.Type)),
		slog.Uint64("sequence", ev.Sequence),
		slog.Int("rounds", rounds),
		slog.Any("error", cause),
	)
	if err := d.outbox.DeadLetter(ctx, ch.Name(), ev.Sequence, cause.Error()); err != nil {
		logger.ErrorContext(ctx, "failed to dead-letter event",
			slog.String("event_id", ev.ID),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch ports.Channel, ev event.Event) error {
	retryable := func(err error) bool { return !errors.Is(err, event.ErrUndeliverable) }
	return retry.Do(ctx, d.policy, retryable, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
		defer cancel()
		return ch.Deliver(dctx, ev)
	})
}
