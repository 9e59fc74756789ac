package provider

import (
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

// ToAssignment converts a provisioned number to a domain Assignment.
func ToAssignment(dto *NumberDTO) verification.Assignment {
	return verification.Assignment{
		Ref:         dto.ID,
		PhoneNumber: dto.PhoneNumber,
	}
}

// ToMessages converts delivered messages, dropping entries without any
// content. Unknown types are treated as SMS.
func ToMessages(dto MessagesResponseDTO) []verification.Message {
	out := make([]verification.Message, 0, len(dto.Messages))
	for i := range dto.Messages {
		m := &dto.Messages[i]
		if m.Code == "" && m.Text == "" {
			continue
		}

		kind := verification.KindSMS
		if m.Type == string(verification.KindVoice) {
			kind = verification.KindVoice
		}

		receivedAt, _ := time.Parse(time.RFC3339, m.ReceivedAt)

		out = append(out, verification.Message{
			ID:         m.ID,
			Kind:       kind,
			Code:       m.Code,
			Text:       m.Text,
			ReceivedAt: receivedAt,
		})
	}
	return out
}

// IsClosed reports whether the provider will deliver nothing more to the
// number.
func IsClosed(status string) bool {
	return status == StatusCancelled || status == StatusExpired
}
