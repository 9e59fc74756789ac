package domain

import "time"

// BreakerState is the position of a provider circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreakerState is a point-in-time snapshot of one provider's breaker.
type CircuitBreakerState struct {
	Provider      string
	State         BreakerState
	FailureCount  uint32
	LastFailureAt time.Time
	NextRetryAt   time.Time
}
