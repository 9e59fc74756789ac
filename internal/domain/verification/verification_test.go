package verification

import (
	"errors"
	"testing"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

func TestStatus_CanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "initiated to reserving", from: StatusInitiated, to: StatusReservingCredit, want: true},
		{name: "polling to completed", from: StatusPolling, to: StatusCompleted, want: true},
		{name: "polling to timed out", from: StatusPolling, to: StatusTimedOut, want: true},
		{name: "timed out to refunded", from: StatusTimedOut, to: StatusRefunded, want: true},
		{name: "number assigned to cancelled", from: StatusNumberAssigned, to: StatusCancelled, want: true},
		{name: "completed is terminal", from: StatusCompleted, to: StatusRefunded, want: false},
		{name: "refunded is terminal", from: StatusRefunded, to: StatusCompleted, want: false},
		{name: "timed out cannot complete", from: StatusTimedOut, to: StatusCompleted, want: false},
		{name: "no skipping reservation", from: StatusInitiated, to: StatusRequestingNumber, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("%s.CanTransition(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestVerification_IsFinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    Verification
		want bool
	}{
		{name: "completed", v: Verification{Status: StatusCompleted}, want: true},
		{name: "refunded", v: Verification{Status: StatusRefunded, ChargeTransactionID: "tx"}, want: true},
		{name: "failed uncharged", v: Verification{Status: StatusFailed}, want: true},
		{name: "failed charged", v: Verification{Status: StatusFailed, ChargeTransactionID: "tx"}, want: false},
		{name: "cancelled charged", v: Verification{Status: StatusCancelled, ChargeTransactionID: "tx"}, want: false},
		{name: "polling", v: Verification{Status: StatusPolling, ChargeTransactionID: "tx"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.v.IsFinal(); got != tt.want {
				t.Errorf("IsFinal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerification_AwaitingRefund(t *testing.T) {
	t.Parallel()

	v := Verification{Status: StatusTimedOut, ChargeTransactionID: "tx-1"}
	if !v.AwaitingRefund() {
		t.Error("AwaitingRefund() = false, want true for charged timed_out")
	}

	v.RefundTransactionID = "tx-2"
	if v.AwaitingRefund() {
		t.Error("AwaitingRefund() = true, want false once refunded")
	}
}

func TestVerification_Validate(t *testing.T) {
	t.Parallel()

	v := Verification{Status: StatusInitiated}
	err := v.Validate()
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Validate() error = %v, want ErrValidation", err)
	}

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("errors.As(err, *ValidationError) = false, got %T", err)
	}
	for _, field := range []string{"user_id", "provider", "service", "country", "cost"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Errorf("ValidationError.Fields missing key %q", field)
		}
	}
}

func TestTransition_ValidateAndApply(t *testing.T) {
	t.Parallel()

	v := Verification{ID: "v-1", Status: StatusPolling, Version: 4}

	bad := v.Next(StatusInitiated)
	if err := bad.Validate(); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Validate() error = %v, want ErrConflict", err)
	}

	tr := v.Next(StatusCompleted)
	tr.MessageCode = "123456"
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.Apply(&v, now)

	if v.Status != StatusCompleted || v.Version != 5 {
		t.Errorf("after Apply status=%s version=%d, want completed/5", v.Status, v.Version)
	}
	if v.MessageCode != "123456" {
		t.Errorf("MessageCode = %q, want %q", v.MessageCode, "123456")
	}
	if !v.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", v.UpdatedAt, now)
	}
}
