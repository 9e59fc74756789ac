package ports

import "context"

// HealthChecker is a dependency the readiness endpoint consults before the
// service takes purchases: the store, Redis, the event outbox, outbound
// notification channels and each provider's circuit breaker.
type HealthChecker interface {
	// Name keys the result in the readiness response ("sqlite",
	// "outbox", "breaker:<provider>").
	Name() string

	// HealthCheck returns nil while the dependency can serve. A provider
	// breaker fails the check unless closed. The registry bounds each call
	// with its own deadline.
	HealthCheck(ctx context.Context) error
}

// HealthRegistry collects the checkers wired at startup.
type HealthRegistry interface {
	Register(checker HealthChecker)

	// CheckAll runs every check and keys the errors by checker name.
	// A nil error is healthy; any non-nil error makes the service not ready.
	CheckAll(ctx context.Context) map[string]error
}
