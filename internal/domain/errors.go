package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for errors.Is() checking.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrUnavailable = errors.New("unavailable")

	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrInProgress          = errors.New("request with this idempotency key is still in progress")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrCircuitOpen         = errors.New("circuit open")
	ErrTransientProvider   = errors.New("transient provider error")
	ErrPermanentProvider   = errors.New("permanent provider error")
)

// Store-level errors. These never reach HTTP callers directly; application
// services translate them.
var (
	// ErrVersionConflict is returned by compare-and-swap updates whose
	// expected version or status no longer matches the stored row.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when a uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate")
)

// Validation messages shared by entity validators.
const (
	MsgRequired = "is required"
	MsgPositive = "must be positive"
)

// ValidationError provides programmatic access to field-level validation failures.
// Use errors.Is(err, ErrValidation) for simple checks, or errors.As(err, &verr) to
// access verr.Fields for per-field error details.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, field+": "+msg)
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientBalanceError is returned when a reservation would drive a
// balance negative. No external call is made after it.
type InsufficientBalanceError struct {
	UserID    string
	Available int64
	Required  int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("%s: user %s has %d, needs %d", ErrInsufficientBalance, e.UserID, e.Available, e.Required)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// IdempotencyConflictError is returned when an idempotency key is reused with
// a request whose fingerprint differs from the original.
type IdempotencyConflictError struct {
	Key string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("%s: key %q", ErrIdempotencyConflict, e.Key)
}

func (e *IdempotencyConflictError) Unwrap() error {
	return ErrIdempotencyConflict
}

// InvalidSignatureError is returned when an inbound webhook fails HMAC
// verification.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSignature, e.Reason)
}

func (e *InvalidSignatureError) Unwrap() error {
	return ErrInvalidSignature
}

// CircuitOpenError is returned when a provider's circuit breaker rejects a
// call without contacting the provider.
type CircuitOpenError struct {
	Provider string
	RetryAt  time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("%s: provider %s", ErrCircuitOpen, e.Provider)
	}
	return fmt.Sprintf("%s: provider %s, retry after %s", ErrCircuitOpen, e.Provider, e.RetryAt.UTC().Format(time.RFC3339))
}

// Unwrap reports both ErrCircuitOpen and ErrUnavailable so callers that only
// care about availability can match on the broader sentinel.
func (e *CircuitOpenError) Unwrap() []error {
	return []error{ErrCircuitOpen, ErrUnavailable}
}

// TransientProviderError wraps a provider failure that may succeed on retry
// (timeouts, 5xx, throttling).
type TransientProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrTransientProvider, e.Provider, e.Op, e.Err)
}

func (e *TransientProviderError) Unwrap() []error {
	return []error{ErrTransientProvider, ErrUnavailable, e.Err}
}

// PermanentProviderError wraps a provider failure that will not succeed on
// retry (unsupported service, no numbers available, revoked reference).
type PermanentProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *PermanentProviderError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrPermanentProvider, e.Provider, e.Op, e.Err)
}

func (e *PermanentProviderError) Unwrap() []error {
	return []error{ErrPermanentProvider, ErrUnavailable, e.Err}
}

// IsTransient reports whether err is worth retrying against a provider.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientProvider)
}
