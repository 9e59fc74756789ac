// Package idempotency defines the record used to deduplicate logically
// identical operations across client retries.
package idempotency

import "time"

// Status is the lifecycle position of a Record.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Record is the stored state of one idempotency key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	Result      []byte
	ResourceID  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record is past its TTL at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
