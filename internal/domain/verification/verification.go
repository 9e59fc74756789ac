// Package verification defines the Verification entity: one purchased
// disposable number, its state machine, and the messages it received.
package verification

import (
	"fmt"
	"strings"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
)

// Verification is a single number purchase. It is mutated only through
// compare-and-swap transitions on Status and Version.
type Verification struct {
	ID                  string
	UserID              string
	Provider            string
	ProviderRef         string
	PhoneNumber         string
	Service             string
	Country             string
	Cost                ledger.Cents
	Status              Status
	IdempotencyKey      string
	ReservationID       string
	ChargeTransactionID string
	RefundTransactionID string
	MessageCode         string
	MessageText         string
	FailureReason       string
	PollDeadline        time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Version             int64
}

// Charged reports whether a charge transaction was committed.
func (v *Verification) Charged() bool {
	return v.ChargeTransactionID != ""
}

// IsFinal reports whether no further transition can happen. Failed and
// cancelled verifications are final only when nothing was charged.
func (v *Verification) IsFinal() bool {
	switch v.Status {
	case StatusCompleted, StatusRefunded:
		return true
	case StatusFailed, StatusCancelled, StatusTimedOut:
		return !v.Charged()
	default:
		return false
	}
}

// AwaitingRefund reports whether the verification ended unsuccessfully after
// its charge was committed and has not been refunded yet.
func (v *Verification) AwaitingRefund() bool {
	return v.Status.NeedsCompensation() && v.Charged() && v.RefundTransactionID == ""
}

// Validate checks the fields required before a purchase starts.
func (v *Verification) Validate() error {
	fields := make(map[string]string)

	if strings.TrimSpace(v.UserID) == "" {
		fields["user_id"] = domain.MsgRequired
	}
	if strings.TrimSpace(v.Provider) == "" {
		fields["provider"] = domain.MsgRequired
	}
	if strings.TrimSpace(v.Service) == "" {
		fields["service"] = domain.MsgRequired
	}
	if strings.TrimSpace(v.Country) == "" {
		fields["country"] = domain.MsgRequired
	}
	if v.Cost <= 0 {
		fields["cost"] = domain.MsgPositive
	}
	if !v.Status.IsValid() {
		fields["status"] = fmt.Sprintf("invalid: %q", v.Status)
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Transition describes a guarded status change. The store applies it only
// if the row still has From and ExpectedVersion.
type Transition struct {
	ID              string
	From            Status
	To              Status
	ExpectedVersion int64

	// Optional field updates applied with the status change. Empty values
	// leave the stored column unchanged.
	ProviderRef         string
	PhoneNumber         string
	ReservationID       string
	ChargeTransactionID string
	RefundTransactionID string
	MessageCode         string
	MessageText         string
	FailureReason       string
	PollDeadline        time.Time
}

// Next builds a Transition from v's current status and version.
func (v *Verification) Next(to Status) Transition {
	return Transition{
		ID:              v.ID,
		From:            v.Status,
		To:              to,
		ExpectedVersion: v.Version,
	}
}

// Validate rejects transitions the state machine does not allow.
func (t *Transition) Validate() error {
	if !t.From.CanTransition(t.To) {
		return fmt.Errorf("%w: verification %s cannot move from %s to %s", domain.ErrConflict, t.ID, t.From, t.To)
	}
	return nil
}

// Apply copies the transition onto v, bumping the version. Stores call it
// after a successful compare-and-swap so callers hold the new state.
func (t *Transition) Apply(v *Verification, now time.Time) {
	v.Status = t.To
	v.Version = t.ExpectedVersion + 1
	v.UpdatedAt = now
	setIfNotEmpty(&v.ProviderRef, t.ProviderRef)
	setIfNotEmpty(&v.PhoneNumber, t.PhoneNumber)
	setIfNotEmpty(&v.ReservationID, t.ReservationID)
	setIfNotEmpty(&v.ChargeTransactionID, t.ChargeTransactionID)
	setIfNotEmpty(&v.RefundTransactionID, t.RefundTransactionID)
	setIfNotEmpty(&v.MessageCode, t.MessageCode)
	setIfNotEmpty(&v.MessageText, t.MessageText)
	setIfNotEmpty(&v.FailureReason, t.FailureReason)
	if !t.PollDeadline.IsZero() {
		v.PollDeadline = t.PollDeadline
	}
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
