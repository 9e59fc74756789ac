package provider

import (
	"testing"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

func TestToAssignment(t *testing.T) {
	t.Parallel()

	got := ToAssignment(&NumberDTO{ID: "n-1", PhoneNumber: "+15550001111", Status: "active"})

	if got.Ref != "n-1" {
		t.Errorf("Ref = %q, want %q", got.Ref, "n-1")
	}
	if got.PhoneNumber != "+15550001111" {
		t.Errorf("PhoneNumber = %q, want %q", got.PhoneNumber, "+15550001111")
	}
}

func TestToMessages(t *testing.T) {
	t.Parallel()

	dto := MessagesResponseDTO{
		Status: StatusReceived,
		Messages: []MessageDTO{
			{ID: "m-1", Type: "sms", Code: "123456", Text: "Your code is 123456", ReceivedAt: "2025-01-01T10:00:00Z"},
			{ID: "m-2", Type: "voice", Code: "9911", ReceivedAt: "not-a-time"},
			{ID: "m-3", Type: "sms"},
			{ID: "m-4", Type: "fax", Text: "hello"},
		},
	}

	got := ToMessages(dto)

	if len(got) != 3 {
		t.Fatalf("len(ToMessages()) = %d, want 3 (empty message dropped)", len(got))
	}
	if want := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC); !got[0].ReceivedAt.Equal(want) {
		t.Errorf("ReceivedAt = %v, want %v", got[0].ReceivedAt, want)
	}
	if got[1].Kind != verification.KindVoice {
		t.Errorf("Kind = %q, want voice", got[1].Kind)
	}
	if !got[1].ReceivedAt.IsZero() {
		t.Errorf("ReceivedAt = %v, want zero for unparsable time", got[1].ReceivedAt)
	}
	if got[2].Kind != verification.KindSMS {
		t.Errorf("Kind = %q, want sms for unknown type", got[2].Kind)
	}
}

func TestIsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status string
		want   bool
	}{
		{StatusWaiting, false},
		{StatusReceived, false},
		{StatusCancelled, true},
		{StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()
			if got := IsClosed(tt.status); got != tt.want {
				t.Errorf("IsClosed(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}
