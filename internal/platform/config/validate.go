package config

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks all configuration values and returns aggregated errors.
func (c *Config) Validate() error {
	return errors.Join(
		c.Server.validate(),
		c.Log.validate(),
		c.Telemetry.validate(),
		c.Database.validate(),
		c.Redis.validate(),
		c.Idempotency.validate(c.Redis.Enabled),
		c.Ledger.Retry.validate("ledger.retry"),
		c.Provider.validate(),
		c.CircuitBreaker.validate("circuit_breaker"),
		c.Poller.validate(),
		c.Webhook.validate(),
		c.Events.validate(c.Redis.Enabled),
		c.Pricing.validate(),
		c.Recovery.validate(),
	)
}

func (s *ServerConfig) validate() error {
	var errs []error

	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port))
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	if s.DrainDelay < 0 {
		errs = append(errs, errors.New("server.drain_delay must not be negative"))
	}

	return errors.Join(errs...)
}

func (l *LogConfig) validate() error {
	var errs []error

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels.
	default:
		errs = append(errs, fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", l.Level))
	}

	switch l.Format {
	case "json", "text":
		// Valid formats.
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: json, text; got %q", l.Format))
	}

	return errors.Join(errs...)
}

func (t *TelemetryConfig) validate() error {
	if !t.Enabled {
		return nil
	}

	var errs []error

	switch t.Exporter {
	case "stdout", "otlp":
		// Valid exporters.
	default:
		errs = append(errs, fmt.Errorf("telemetry.exporter must be one of: stdout, otlp; got %q", t.Exporter))
	}

	if t.Exporter == "otlp" && t.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint must not be empty when exporter is otlp"))
	}
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio must be within [0, 1], got %v", t.SampleRatio))
	}

	return errors.Join(errs...)
}

func (d *DatabaseConfig) validate() error {
	var errs []error

	switch d.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be one of: sqlite, postgres; got %q", d.Driver))
	}
	if d.DSN == "" {
		errs = append(errs, errors.New("database.dsn must not be empty"))
	}

	return errors.Join(errs...)
}

func (r *RedisConfig) validate() error {
	if r.Enabled && r.Addr == "" {
		return errors.New("redis.addr must not be empty when redis is enabled")
	}
	return nil
}

func (i *IdempotencyConfig) validate(redisEnabled bool) error {
	var errs []error

	switch i.Backend {
	case "sql":
	case "redis":
		if !redisEnabled {
			errs = append(errs, errors.New("idempotency.backend redis requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("idempotency.backend must be one of: sql, redis; got %q", i.Backend))
	}
	if i.TTL <= 0 {
		errs = append(errs, errors.New("idempotency.ttl must be positive"))
	}
	if i.InProgressWait < 0 {
		errs = append(errs, errors.New("idempotency.in_progress_wait must not be negative"))
	}

	return errors.Join(errs...)
}

func (r *RetryConfig) validate(prefix string) error {
	var errs []error

	if r.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s.max_attempts must be >= 1, got %d", prefix, r.MaxAttempts))
	}
	if r.Multiplier <= 0 {
		errs = append(errs, fmt.Errorf("%s.multiplier must be positive, got %f", prefix, r.Multiplier))
	}

	return errors.Join(errs...)
}

func (cb *CircuitBreakerConfig) validate(prefix string) error {
	if !cb.Enabled {
		return nil
	}

	var errs []error

	if cb.MaxFailures < 1 {
		errs = append(errs, fmt.Errorf("%s.max_failures must be >= 1, got %d", prefix, cb.MaxFailures))
	}
	if cb.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("%s.cooldown must be positive", prefix))
	}
	if cb.MaxCooldown != 0 && cb.MaxCooldown < cb.Cooldown {
		errs = append(errs, fmt.Errorf("%s.max_cooldown must be >= cooldown", prefix))
	}

	return errors.Join(errs...)
}

func (cl *ClientConfig) validate(prefix string) error {
	var errs []error

	if cl.BaseURL == "" {
		errs = append(errs, fmt.Errorf("%s.base_url must not be empty", prefix))
	}
	if cl.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must be positive", prefix))
	}
	errs = append(errs,
		cl.Retry.validate(prefix+".retry"),
		cl.CircuitBreaker.validate(prefix+".circuit_breaker"),
	)

	return errors.Join(errs...)
}

func (p *ProviderConfig) validate() error {
	var errs []error

	if p.Name == "" {
		errs = append(errs, errors.New("provider.name must not be empty"))
	}
	errs = append(errs,
		p.Client.validate("provider.client"),
		p.Retry.validate("provider.retry"),
	)

	return errors.Join(errs...)
}

func (p *PollerConfig) validate() error {
	var errs []error

	if p.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}
	if p.MaxInterval < p.Interval {
		errs = append(errs, errors.New("poller.max_interval must be >= poller.interval"))
	}
	if p.MaxWait <= p.Interval {
		errs = append(errs, errors.New("poller.max_wait must be greater than poller.interval"))
	}
	if p.PollTimeout <= 0 {
		errs = append(errs, errors.New("poller.poll_timeout must be positive"))
	}
	if p.MaxConcurrentPolls < 1 {
		errs = append(errs, fmt.Errorf("poller.max_concurrent_polls must be >= 1, got %d", p.MaxConcurrentPolls))
	}

	return errors.Join(errs...)
}

func (w *WebhookConfig) validate() error {
	var errs []error

	if w.Secret == "" {
		errs = append(errs, errors.New("webhook.secret must not be empty"))
	}
	if w.SignatureHeader == "" {
		errs = append(errs, errors.New("webhook.signature_header must not be empty"))
	}
	if w.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("webhook.max_body_bytes must be positive"))
	}

	return errors.Join(errs...)
}

func (e *EventsConfig) validate(redisEnabled bool) error {
	var errs []error

	if e.OutboxPath == "" {
		errs = append(errs, errors.New("events.outbox_path must not be empty"))
	}
	if e.RedeliveryInterval <= 0 {
		errs = append(errs, errors.New("events.redelivery_interval must be positive"))
	}
	if e.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("events.batch_size must be >= 1, got %d", e.BatchSize))
	}
	if e.MaxDeliveryRounds < 0 {
		errs = append(errs, fmt.Errorf("events.max_delivery_rounds must not be negative, got %d", e.MaxDeliveryRounds))
	}
	errs = append(errs, e.Retry.validate("events.retry"))

	if e.Channels.Webhook.Enabled {
		errs = append(errs, e.Channels.Webhook.Client.validate("events.channels.webhook.client"))
	}
	if e.Channels.Redis.Enabled {
		if !redisEnabled {
			errs = append(errs, errors.New("events.channels.redis requires redis.enabled"))
		}
		if e.Channels.Redis.Topic == "" {
			errs = append(errs, errors.New("events.channels.redis.topic must not be empty"))
		}
	}

	return errors.Join(errs...)
}

func (p *PricingConfig) validate() error {
	var errs []error

	check := func(key, value string) {
		d, err := decimal.NewFromString(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a decimal amount, got %q", key, value))
			return
		}
		if !d.IsPositive() {
			errs = append(errs, fmt.Errorf("%s must be positive, got %q", key, value))
		}
	}

	if p.Default != "" {
		check("pricing.default", p.Default)
	}
	for service, price := range p.Services {
		check("pricing.services."+service, price)
	}
	if p.Default == "" && len(p.Services) == 0 {
		errs = append(errs, errors.New("pricing must define a default or at least one service"))
	}

	return errors.Join(errs...)
}

func (r *RecoveryConfig) validate() error {
	var errs []error

	if r.Workers < 1 {
		errs = append(errs, fmt.Errorf("recovery.workers must be >= 1, got %d", r.Workers))
	}
	if r.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("recovery.batch_size must be >= 1, got %d", r.BatchSize))
	}
	if r.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("recovery.stale_after must be >= 0, got %s", r.StaleAfter))
	}

	return errors.Join(errs...)
}
