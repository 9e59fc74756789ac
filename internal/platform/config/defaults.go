package config

const (
	defaultServerPort = 8080

	defaultRetryMaxAttempts = 3
	defaultRetryMultiplier  = 2.0

	defaultCircuitBreakerMaxFailures = 5
	defaultCircuitBreakerHalfOpen    = 1

	defaultMaxBodyBytes = 1 << 16
)

// defaults returns the default configuration values.
// These are loaded first and can be overridden by base.yaml, profile YAML, and env vars.
func defaults() map[string]any {
	return map[string]any{
		"server.host":          "0.0.0.0",
		"server.port":          defaultServerPort,
		"server.read_timeout":  "5s",
		"server.write_timeout": "10s",
		"server.idle_timeout":  "120s",
		"server.drain_delay":   "0s",

		"log.level":  "info",
		"log.format": "json",

		"telemetry.enabled":      false,
		"telemetry.exporter":     "stdout",
		"telemetry.endpoint":     "",
		"telemetry.service_name": "numbers-core",
		"telemetry.sample_ratio": 1.0,

		"metrics.enabled":   true,
		"metrics.path":      "/metrics",
		"metrics.namespace": "numbers",

		"database.driver":    "sqlite",
		"database.dsn":       "file:numbers.db",
		"database.max_conns": 10,

		"redis.enabled":    false,
		"redis.addr":       "localhost:6379",
		"redis.db":         0,
		"redis.key_prefix": "numbers:",

		"idempotency.backend":          "sql",
		"idempotency.ttl":              "24h",
		"idempotency.in_progress_wait": "2s",
		"idempotency.poll_interval":    "50ms",

		"ledger.retry.max_attempts":     defaultRetryMaxAttempts,
		"ledger.retry.initial_interval": "10ms",
		"ledger.retry.max_interval":     "100ms",
		"ledger.retry.multiplier":       defaultRetryMultiplier,

		"provider.name":                          "primary",
		"provider.client.base_url":               "http://localhost:8081",
		"provider.client.timeout":                "10s",
		"provider.client.retry.max_attempts":     1,
		"provider.client.retry.initial_interval": "100ms",
		"provider.client.retry.max_interval":     "1s",
		"provider.client.retry.multiplier":       defaultRetryMultiplier,
		"provider.retry.max_attempts":            defaultRetryMaxAttempts,
		"provider.retry.initial_interval":        "200ms",
		"provider.retry.max_interval":            "2s",
		"provider.retry.multiplier":              defaultRetryMultiplier,

		"circuit_breaker.enabled":         true,
		"circuit_breaker.max_failures":    defaultCircuitBreakerMaxFailures,
		"circuit_breaker.window":          "60s",
		"circuit_breaker.cooldown":        "30s",
		"circuit_breaker.max_cooldown":    "10m",
		"circuit_breaker.half_open_limit": defaultCircuitBreakerHalfOpen,

		"poller.interval":             "5s",
		"poller.max_interval":         "30s",
		"poller.multiplier":           1.5,
		"poller.max_wait":             "180s",
		"poller.poll_timeout":         "10s",
		"poller.max_concurrent_polls": 32,

		"webhook.signature_header": "X-Signature",
		"webhook.max_body_bytes":   defaultMaxBodyBytes,

		"events.outbox_path":                                             "outbox.db",
		"events.redelivery_interval":                                     "15s",
		"events.batch_size":                                              100,
		"events.delivery_timeout":                                        "5s",
		"events.max_delivery_rounds":                                     20,
		"events.retry.max_attempts":                                      defaultRetryMaxAttempts,
		"events.retry.initial_interval":                                  "200ms",
		"events.retry.max_interval":                                      "5s",
		"events.retry.multiplier":                                        defaultRetryMultiplier,
		"events.channels.log.enabled":                                    true,
		"events.channels.webhook.enabled":                                false,
		"events.channels.webhook.client.timeout":                         "5s",
		"events.channels.webhook.client.retry.max_attempts":              1,
		"events.channels.webhook.client.retry.initial_interval":          "100ms",
		"events.channels.webhook.client.retry.max_interval":              "1s",
		"events.channels.webhook.client.retry.multiplier":                defaultRetryMultiplier,
		"events.channels.webhook.client.circuit_breaker.enabled":         true,
		"events.channels.webhook.client.circuit_breaker.max_failures":    defaultCircuitBreakerMaxFailures,
		"events.channels.webhook.client.circuit_breaker.cooldown":        "30s",
		"events.channels.webhook.client.circuit_breaker.half_open_limit": defaultCircuitBreakerHalfOpen,
		"events.channels.redis.enabled":                                  false,
		"events.channels.redis.topic":                                    "numbers.events",

		"pricing.default": "",

		"recovery.on_startup":     true,
		"recovery.schedule":       "@every 1m",
		"recovery.purge_schedule": "@hourly",
		"recovery.workers":        4,
		"recovery.batch_size":     500,
		"recovery.lock_ttl":       "2m",
		"recovery.stale_after":    "2m",
	}
}
