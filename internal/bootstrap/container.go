// Package bootstrap builds the service dependency graph with samber/do v2.
// Providers are lazy, so a command that resolves only the ledger never opens
// the outbox or dials a provider. Resources that hold handles are closed in
// reverse construction order by Container.Close.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/samber/do/v2"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/clients/acl"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/lock"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/notify"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/outbox/bolt"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/redis"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/store/postgres"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/store/sqlite"
	"github.com/jsamuelsen11/numbers-core/internal/app/breaker"
	"github.com/jsamuelsen11/numbers-core/internal/app/compensation"
	"github.com/jsamuelsen11/numbers-core/internal/app/events"
	"github.com/jsamuelsen11/numbers-core/internal/app/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/app/poller"
	"github.com/jsamuelsen11/numbers-core/internal/app/purchase"
	"github.com/jsamuelsen11/numbers-core/internal/app/webhook"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/health"
	"github.com/jsamuelsen11/numbers-core/internal/platform/httpclient"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
	"github.com/jsamuelsen11/numbers-core/migrations"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	backendRedis = "redis"
)

// Container owns the injector and the closers registered while resolving it.
type Container struct {
	Injector *do.RootScope

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// New registers every provider. Nothing is constructed until invoked.
// otelMetrics may be nil when telemetry is disabled.
func New(cfg *config.Config, logger *slog.Logger, otelMetrics *telemetry.Metrics) *Container {
	c := &Container{Injector: do.New()}

	do.ProvideValue(c.Injector, cfg)
	do.ProvideValue(c.Injector, logger)
	do.ProvideValue(c.Injector, otelMetrics)

	c.registerPlatform(cfg)
	c.registerAdapters(cfg, logger, otelMetrics)
	c.registerServices(cfg, logger)

	return c
}

// Close releases every opened resource in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	closers := slices.Clone(c.closers)
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for _, nc := range slices.Backward(closers) {
		if err := nc.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", nc.name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) onClose(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

func (c *Container) registerPlatform(cfg *config.Config) {
	do.Provide(c.Injector, func(_ do.Injector) (*metrics.Metrics, error) {
		return metrics.New(cfg.Metrics.Namespace), nil
	})

	do.Provide(c.Injector, func(_ do.Injector) (ports.HealthRegistry, error) {
		return health.New(), nil
	})
}

func (c *Container) registerAdapters(cfg *config.Config, logger *slog.Logger, otelMetrics *telemetry.Metrics) {
	do.Provide(c.Injector, func(_ do.Injector) (ports.Store, error) {
		return c.openStore(cfg.Database, logger)
	})

	do.Provide(c.Injector, func(_ do.Injector) (*redis.Client, error) {
		if !cfg.Redis.Enabled {
			return nil, errors.New("redis is disabled")
		}
		client := redis.New(cfg.Redis, logger)
		c.onClose("redis", client.Close)
		return client, nil
	})

	do.Provide(c.Injector, func(i do.Injector) (ports.IdempotencyStore, error) {
		if cfg.Idempotency.Backend == backendRedis {
			client, err := do.Invoke[*redis.Client](i)
			if err != nil {
				return nil, fmt.Errorf("idempotency backend: %w", err)
			}
			return redis.NewIdempotencyStore(client), nil
		}
		store, err := do.Invoke[ports.Store](i)
		if err != nil {
			return nil, err
		}
		return store, nil
	})

	do.Provide(c.Injector, func(i do.Injector) (ports.Locker, error) {
		if !cfg.Redis.Enabled {
			return lock.NewLocal(), nil
		}
		client, err := do.Invoke[*redis.Client](i)
		if err != nil {
			return nil, err
		}
		return redis.NewLocker(client), nil
	})

	do.Provide(c.Injector, func(_ do.Injector) (ports.Outbox, error) {
		ob, err := bolt.Open(cfg.Events.OutboxPath)
		if err != nil {
			return nil, fmt.Errorf("opening outbox: %w", err)
		}
		c.onClose("outbox", ob.Close)
		return ob, nil
	})

	do.Provide(c.Injector, func(_ do.Injector) (ports.Providers, error) {
		name := cfg.Provider.Name
		client := httpclient.New(&cfg.Provider.Client, name, otelMetrics, logger,
			httpclient.WithHeader("X-API-Key", cfg.Provider.APIKey))
		return ports.Providers{name: acl.NewProviderClient(name, client, logger)}, nil
	})

	do.Provide(c.Injector, func(i do.Injector) ([]ports.Channel, error) {
		return c.channels(i, cfg, logger, otelMetrics)
	})
}

func (c *Container) registerServices(cfg *config.Config, logger *slog.Logger) {
	do.Provide(c.Injector, func(i do.Injector) (*breaker.Registry, error) {
		return breaker.NewRegistry(cfg.CircuitBreaker, do.MustInvoke[*metrics.Metrics](i), logger), nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*events.Dispatcher, error) {
		outbox, err := do.Invoke[ports.Outbox](i)
		if err != nil {
			return nil, err
		}
		channels, err := do.Invoke[[]ports.Channel](i)
		if err != nil {
			return nil, err
		}
		d := events.New(outbox, cfg.Events, do.MustInvoke[*metrics.Metrics](i), logger)
		for _, ch := range channels {
			if err := d.Register(ch); err != nil {
				return nil, fmt.Errorf("registering channel %s: %w", ch.Name(), err)
			}
		}
		return d, nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*ledger.Service, error) {
		store, err := do.Invoke[ports.Store](i)
		if err != nil {
			return nil, err
		}
		return ledger.New(store, cfg.Ledger, do.MustInvoke[*metrics.Metrics](i)), nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*idempotency.Guard, error) {
		store, err := do.Invoke[ports.IdempotencyStore](i)
		if err != nil {
			return nil, err
		}
		return idempotency.New(store, cfg.Idempotency, do.MustInvoke[*metrics.Metrics](i)), nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*compensation.Service, error) {
		return compensation.New(
			do.MustInvoke[ports.Store](i),
			do.MustInvoke[*ledger.Service](i),
			do.MustInvoke[*events.Dispatcher](i),
			do.MustInvoke[*metrics.Metrics](i),
		), nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*webhook.Service, error) {
		return webhook.New(
			do.MustInvoke[ports.Store](i),
			do.MustInvoke[*ledger.Service](i),
			do.MustInvoke[*events.Dispatcher](i),
			cfg.Webhook,
			do.MustInvoke[*metrics.Metrics](i),
		), nil
	})

	do.Provide(c.Injector, func(i do.Injector) (*poller.Poller, error) {
		return poller.New(
			do.MustInvoke[ports.Providers](i),
			do.MustInvoke[*breaker.Registry](i),
			do.MustInvoke[ports.Locker](i),
			cfg.Poller,
			do.MustInvoke[*metrics.Metrics](i),
			logger,
		), nil
	})

	do.Provide(c.Injector, func(_ do.Injector) (*purchase.PriceBook, error) {
		return purchase.NewPriceBook(cfg.Pricing)
	})

	do.Provide(c.Injector, func(i do.Injector) (*purchase.Service, error) {
		prices, err := do.Invoke[*purchase.PriceBook](i)
		if err != nil {
			return nil, err
		}
		return purchase.New(purchase.Deps{
			Store:        do.MustInvoke[ports.Store](i),
			Ledger:       do.MustInvoke[*ledger.Service](i),
			Guard:        do.MustInvoke[*idempotency.Guard](i),
			Providers:    do.MustInvoke[ports.Providers](i),
			Breakers:     do.MustInvoke[*breaker.Registry](i),
			Prices:       prices,
			Poller:       do.MustInvoke[*poller.Poller](i),
			Compensation: do.MustInvoke[*compensation.Service](i),
			Events:       do.MustInvoke[*events.Dispatcher](i),
			Locker:       do.MustInvoke[ports.Locker](i),
			Metrics:      do.MustInvoke[*metrics.Metrics](i),
		}, purchase.Config{
			DefaultProvider: cfg.Provider.Name,
			ProviderRetry:   cfg.Provider.Retry,
			ProviderTimeout: cfg.Provider.Client.Timeout,
			MaxWait:         cfg.Poller.MaxWait,
			Recovery:        cfg.Recovery,
		}), nil
	})
}

func (c *Container) openStore(cfg config.DatabaseConfig, logger *slog.Logger) (ports.Store, error) {
	ctx := context.Background()

	var (
		store ports.Store
		err   error
	)
	switch cfg.Driver {
	case driverSQLite:
		store, err = sqlite.Open(ctx, cfg.DSN, migrations.SQLite(), logger)
	case driverPostgres:
		store, err = postgres.Open(ctx, cfg.DSN, int32(cfg.MaxConns), migrations.Postgres(), logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Driver, err)
	}
	c.onClose("store", store.Close)
	return store, nil
}

func (c *Container) channels(i do.Injector, cfg *config.Config, logger *slog.Logger, otelMetrics *telemetry.Metrics) ([]ports.Channel, error) {
	var out []ports.Channel
	ch := cfg.Events.Channels

	if ch.Log.Enabled {
		out = append(out, notify.NewLogChannel(logger))
	}
	if ch.Webhook.Enabled {
		client := httpclient.New(&ch.Webhook.Client, "notify-webhook", otelMetrics, logger)
		out = append(out, notify.NewWebhookChannel(client, ch.Webhook.Secret))
	}
	if ch.Redis.Enabled {
		client, err := do.Invoke[*redis.Client](i)
		if err != nil {
			return nil, fmt.Errorf("redis channel: %w", err)
		}
		out = append(out, notify.NewRedisChannel(client.Raw(), ch.Redis.Topic))
	}
	return out, nil
}

// RegisterHealth adds every constructed dependency that can report health.
// Call it after the graph is resolved so only live components are checked.
func (c *Container) RegisterHealth() {
	registry := do.MustInvoke[ports.HealthRegistry](c.Injector)

	if store, err := do.Invoke[ports.Store](c.Injector); err == nil {
		registry.Register(store)
	}
	if client, err := do.Invoke[*redis.Client](c.Injector); err == nil {
		registry.Register(client)
	}
	if ob, err := do.Invoke[ports.Outbox](c.Injector); err == nil {
		if hc, ok := ob.(ports.HealthChecker); ok {
			registry.Register(hc)
		}
	}
	if channels, err := do.Invoke[[]ports.Channel](c.Injector); err == nil {
		for _, ch := range channels {
			if hc, ok := ch.(ports.HealthChecker); ok {
				registry.Register(hc)
			}
		}
	}

	providers := do.MustInvoke[ports.Providers](c.Injector)
	breakers := do.MustInvoke[*breaker.Registry](c.Injector)
	for name := range providers {
		registry.Register(breakers.For(name))
	}
}
