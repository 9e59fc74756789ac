// Package config provides configuration loading and validation for the service.
// Configuration is loaded from YAML files with environment variable overrides
// using a layered system: defaults -> base.yaml -> {profile}.yaml -> env vars.
package config

import "time"

// Config holds all configuration for the service.
type Config struct {
	Server         ServerConfig         `koanf:"server"`
	Log            LogConfig            `koanf:"log"`
	Telemetry      TelemetryConfig      `koanf:"telemetry"`
	Metrics        MetricsConfig        `koanf:"metrics"`
	Database       DatabaseConfig       `koanf:"database"`
	Redis          RedisConfig          `koanf:"redis"`
	Idempotency    IdempotencyConfig    `koanf:"idempotency"`
	Ledger         LedgerConfig         `koanf:"ledger"`
	Provider       ProviderConfig       `koanf:"provider"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	Poller         PollerConfig         `koanf:"poller"`
	Webhook        WebhookConfig        `koanf:"webhook"`
	Events         EventsConfig         `koanf:"events"`
	Pricing        PricingConfig        `koanf:"pricing"`
	Recovery       RecoveryConfig       `koanf:"recovery"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
	// DrainDelay keeps the listener open after readiness turns 503 so load
	// balancers stop routing before connections are refused.
	DrainDelay   time.Duration `koanf:"drain_delay"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ClientConfig holds downstream HTTP client settings.
type ClientConfig struct {
	BaseURL        string               `koanf:"base_url"`
	Timeout        time.Duration        `koanf:"timeout"`
	Retry          RetryConfig          `koanf:"retry"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
	RateLimit      RateLimitConfig      `koanf:"rate_limit"`
}

// RetryConfig holds retry policy settings with exponential backoff.
type RetryConfig struct {
	MaxAttempts     int           `koanf:"max_attempts"`
	InitialInterval time.Duration `koanf:"initial_interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	Multiplier      float64       `koanf:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker settings. Cooldown is the first
// open period; each failed half-open trial doubles it up to MaxCooldown.
type CircuitBreakerConfig struct {
	Enabled       bool          `koanf:"enabled"`
	MaxFailures   int           `koanf:"max_failures"`
	Window        time.Duration `koanf:"window"`
	Cooldown      time.Duration `koanf:"cooldown"`
	MaxCooldown   time.Duration `koanf:"max_cooldown"`
	HalfOpenLimit int           `koanf:"half_open_limit"`
}

// RateLimitConfig holds client-side rate limiting. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	BurstSize         int     `koanf:"burst_size"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Exporter    string  `koanf:"exporter"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// DatabaseConfig selects and configures the persistent store.
type DatabaseConfig struct {
	Driver   string `koanf:"driver"`
	DSN      string `koanf:"dsn"`
	MaxConns int    `koanf:"max_conns"`
}

// RedisConfig holds Redis connection settings. Redis backs the optional
// idempotency store, the distributed locker and the push channel.
type RedisConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// IdempotencyConfig controls the idempotency guard.
type IdempotencyConfig struct {
	Backend        string        `koanf:"backend"`
	TTL            time.Duration `koanf:"ttl"`
	InProgressWait time.Duration `koanf:"in_progress_wait"`
	PollInterval   time.Duration `koanf:"poll_interval"`
}

// LedgerConfig controls compare-and-swap retries on balance rows.
type LedgerConfig struct {
	Retry RetryConfig `koanf:"retry"`
}

// ProviderConfig configures the number provisioning provider.
type ProviderConfig struct {
	Name   string       `koanf:"name"`
	APIKey string       `koanf:"api_key"`
	Client ClientConfig `koanf:"client"`
	Retry  RetryConfig  `koanf:"retry"`
}

// PollerConfig controls delivery polling.
type PollerConfig struct {
	Interval           time.Duration `koanf:"interval"`
	MaxInterval        time.Duration `koanf:"max_interval"`
	Multiplier         float64       `koanf:"multiplier"`
	MaxWait            time.Duration `koanf:"max_wait"`
	PollTimeout        time.Duration `koanf:"poll_timeout"`
	MaxConcurrentPolls int           `koanf:"max_concurrent_polls"`
}

// WebhookConfig holds inbound payment webhook settings.
type WebhookConfig struct {
	Secret          string `koanf:"secret"`
	SignatureHeader string `koanf:"signature_header"`
	MaxBodyBytes    int64  `koanf:"max_body_bytes"`
}

// EventsConfig controls the event dispatcher and its channels.
type EventsConfig struct {
	OutboxPath         string         `koanf:"outbox_path"`
	RedeliveryInterval time.Duration  `koanf:"redelivery_interval"`
	BatchSize          int            `koanf:"batch_size"`
	DeliveryTimeout    time.Duration  `koanf:"delivery_timeout"`
	// MaxDeliveryRounds is how many redelivery rounds an event may fail on
	// one channel before it is dead-lettered.
	MaxDeliveryRounds  int            `koanf:"max_delivery_rounds"`
	Retry              RetryConfig    `koanf:"retry"`
	Channels           ChannelsConfig `koanf:"channels"`
}

// ChannelsConfig enables individual notification channels.
type ChannelsConfig struct {
	Log     LogChannelConfig     `koanf:"log"`
	Webhook WebhookChannelConfig `koanf:"webhook"`
	Redis   RedisChannelConfig   `koanf:"redis"`
}

// LogChannelConfig enables the structured-log channel.
type LogChannelConfig struct {
	Enabled bool `koanf:"enabled"`
}

// WebhookChannelConfig posts signed events to Client.BaseURL.
type WebhookChannelConfig struct {
	Enabled bool         `koanf:"enabled"`
	Secret  string       `koanf:"secret"`
	Client  ClientConfig `koanf:"client"`
}

// RedisChannelConfig publishes events on a Redis pub/sub topic.
type RedisChannelConfig struct {
	Enabled bool   `koanf:"enabled"`
	Topic   string `koanf:"topic"`
}

// PricingConfig maps services to prices as decimal strings. Keys are
// "service" or "service:country"; Default applies to anything else.
type PricingConfig struct {
	Default  string            `koanf:"default"`
	Services map[string]string `koanf:"services"`
}

// RecoveryConfig controls crash recovery and housekeeping schedules.
type RecoveryConfig struct {
	OnStartup     bool          `koanf:"on_startup"`
	Schedule      string        `koanf:"schedule"`
	PurgeSchedule string        `koanf:"purge_schedule"`
	Workers       int           `koanf:"workers"`
	BatchSize     int           `koanf:"batch_size"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
	// StaleAfter is how long a purchase may sit in an early status before
	// recovery treats it as interrupted.
	StaleAfter time.Duration `koanf:"stale_after"`
}
