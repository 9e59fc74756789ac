// Package domain contains shared domain types used across entity sub-packages.
// Entity-specific types live in sub-packages (domain/verification, domain/ledger,
// domain/idempotency, domain/webhook, domain/event). This root package holds
// sentinel errors, typed errors, validation types, and the circuit breaker
// state snapshot shared across components.
package domain
