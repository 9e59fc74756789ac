// Package main is the entry point for the numbers service. It wires all
// dependencies using samber/do v2, runs crash recovery, starts the event
// dispatcher, the cron jobs and the HTTP server, and handles graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/do/v2"

	adapthttp "github.com/jsamuelsen11/numbers-core/internal/adapters/http"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/handlers"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/middleware"
	"github.com/jsamuelsen11/numbers-core/internal/app/breaker"
	"github.com/jsamuelsen11/numbers-core/internal/app/events"
	"github.com/jsamuelsen11/numbers-core/internal/app/idempotency"
	"github.com/jsamuelsen11/numbers-core/internal/app/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/app/poller"
	"github.com/jsamuelsen11/numbers-core/internal/app/purchase"
	"github.com/jsamuelsen11/numbers-core/internal/app/webhook"
	"github.com/jsamuelsen11/numbers-core/internal/bootstrap"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

const (
	serverShutdownTimeout = 15 * time.Second
	otelShutdownTimeout   = 5 * time.Second
	cronStopTimeout       = 5 * time.Second
	startupRecoveryTime   = 2 * time.Minute
	recoveryJobTimeout    = 5 * time.Minute
	purgeJobTimeout       = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	profile := os.Getenv("APP_PROFILE")
	if profile == "" {
		return errors.New("APP_PROFILE environment variable is required (e.g. local, dev, qa, prod)")
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel, err := telemetry.Setup(ctx, cfg.Telemetry, profile)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer flushTelemetry(otel, logger)

	container := bootstrap.New(cfg, logger, otel.Metrics)
	defer func() {
		if err := container.Close(); err != nil {
			logger.Error("closing resources", slog.Any("error", err))
		}
	}()
	registerHTTP(container.Injector, cfg, logger)

	server, err := do.Invoke[*adapthttp.Server](container.Injector)
	if err != nil {
		return fmt.Errorf("resolving server: %w", err)
	}
	purchases := do.MustInvoke[*purchase.Service](container.Injector)
	dispatcher := do.MustInvoke[*events.Dispatcher](container.Injector)
	pollers := do.MustInvoke[*poller.Poller](container.Injector)
	guard := do.MustInvoke[*idempotency.Guard](container.Injector)

	container.RegisterHealth()
	do.MustInvoke[ports.HealthRegistry](container.Injector).Register(server)

	// Bind before recovery so a port clash fails fast, without side effects.
	if err := server.Listen(); err != nil {
		return err
	}

	// Recovery publishes events, so the dispatcher must already run.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()
	defer pollers.Stop()

	if cfg.Recovery.OnStartup {
		runRecovery(ctx, purchases, logger, startupRecoveryTime)
	}

	scheduler, err := startScheduler(cfg.Recovery, purchases, guard, logger)
	if err != nil {
		return err
	}
	defer stopScheduler(scheduler, logger)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Stop the listener first; deferred calls then stop the scheduler,
	// pollers and dispatcher in that order.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}
	<-serverErr

	logger.Info("shutdown complete")
	return nil
}

func flushTelemetry(p *telemetry.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Error("telemetry shutdown error", slog.Any("error", err))
	}
}

// startScheduler registers the recovery sweep and the idempotency purge.
// Empty schedules disable the corresponding job.
func startScheduler(cfg config.RecoveryConfig, purchases *purchase.Service, guard *idempotency.Guard, logger *slog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if cfg.Schedule != "" {
		if _, err := c.AddFunc(cfg.Schedule, func() {
			runRecovery(context.Background(), purchases, logger, recoveryJobTimeout)
		}); err != nil {
			return nil, fmt.Errorf("adding recovery job %q: %w", cfg.Schedule, err)
		}
	}

	if cfg.PurgeSchedule != "" {
		if _, err := c.AddFunc(cfg.PurgeSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), purgeJobTimeout)
			defer cancel()

			n, err := guard.Purge(ctx)
			if err != nil {
				logger.Error("idempotency purge failed", slog.Any("error", err))
				return
			}
			logger.Info("idempotency purge completed", slog.Int64("purged", n))
		}); err != nil {
			return nil, fmt.Errorf("adding purge job %q: %w", cfg.PurgeSchedule, err)
		}
	}

	c.Start()
	logger.Info("scheduler started",
		slog.String("recovery_schedule", cfg.Schedule),
		slog.String("purge_schedule", cfg.PurgeSchedule),
	)
	return c, nil
}

func stopScheduler(c *cron.Cron, logger *slog.Logger) {
	select {
	case <-c.Stop().Done():
	case <-time.After(cronStopTimeout):
		logger.Warn("scheduled jobs still running at shutdown")
	}
}

func runRecovery(ctx context.Context, purchases *purchase.Service, logger *slog.Logger, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report, err := purchases.Recover(ctx)
	attrs := []any{
		slog.Int("scanned", report.Scanned),
		slog.Bool("locked", report.Locked),
	}
	for action, n := range report.Actions {
		attrs = append(attrs, slog.Int(string(action), n))
	}
	if err != nil {
		logger.Error("recovery sweep finished with errors", append(attrs, slog.Any("error", err))...)
		return
	}
	logger.Info("recovery sweep finished", attrs...)
}

func registerHTTP(injector *do.RootScope, cfg *config.Config, logger *slog.Logger) {
	do.Provide(injector, func(i do.Injector) (*handlers.VerificationHandler, error) {
		svc, err := do.Invoke[*purchase.Service](i)
		if err != nil {
			return nil, err
		}
		return handlers.NewVerificationHandler(svc), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.BalanceHandler, error) {
		svc, err := do.Invoke[*ledger.Service](i)
		if err != nil {
			return nil, err
		}
		return handlers.NewBalanceHandler(svc), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.WebhookHandler, error) {
		svc, err := do.Invoke[*webhook.Service](i)
		if err != nil {
			return nil, err
		}
		return handlers.NewWebhookHandler(svc, cfg.Webhook.SignatureHeader, cfg.Webhook.MaxBodyBytes), nil
	})

	do.Provide(injector, func(i do.Injector) (*handlers.HealthHandler, error) {
		registry := do.MustInvoke[ports.HealthRegistry](i)
		breakers := do.MustInvoke[*breaker.Registry](i)
		return handlers.NewHealthHandler(registry, breakers), nil
	})

	do.Provide(injector, func(i do.Injector) (nethttp.Handler, error) {
		routes := adapthttp.Handlers{
			Verifications: do.MustInvoke[*handlers.VerificationHandler](i),
			Balance:       do.MustInvoke[*handlers.BalanceHandler](i),
			Webhooks:      do.MustInvoke[*handlers.WebhookHandler](i),
			Health:        do.MustInvoke[*handlers.HealthHandler](i),
		}
		if cfg.Metrics.Enabled {
			routes.Metrics = do.MustInvoke[*metrics.Metrics](i).Handler()
			routes.MetricsPath = cfg.Metrics.Path
		}
		otelMetrics := do.MustInvoke[*telemetry.Metrics](i)

		return adapthttp.NewRouter(routes,
			middleware.Recovery(logger),
			middleware.RequestID(),
			middleware.CorrelationID(),
			middleware.OpenTelemetry(otelMetrics),
			middleware.Logging(logger, middleware.NewHeaderRedactor(cfg.Webhook.SignatureHeader)),
			middleware.Timeout(cfg.Server.WriteTimeout),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*adapthttp.Server, error) {
		handler := do.MustInvoke[nethttp.Handler](i)
		return adapthttp.NewServer(cfg.Server, handler, logger), nil
	})
}
