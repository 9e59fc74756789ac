// Package provider holds the wire representation of the number provider's
// REST API and the translators to and from domain types.
package provider

// NumberRequestDTO is the body of POST /api/v1/numbers.
type NumberRequestDTO struct {
	Service string `json:"service"`
	Country string `json:"country"`
}

// NumberDTO is the provider's representation of a provisioned number.
type NumberDTO struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// MessageDTO is one delivery to a provisioned number.
type MessageDTO struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Text       string `json:"text"`
	ReceivedAt string `json:"received_at"`
}

// MessagesResponseDTO is the body of GET /api/v1/numbers/{id}/messages.
type MessagesResponseDTO struct {
	Status   string       `json:"status"`
	Messages []MessageDTO `json:"messages"`
}

// Number statuses reported by the provider.
const (
	StatusWaiting   = "waiting"
	StatusReceived  = "received"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// ErrorDTO is the body the provider sends with non-2xx answers. Problem
// details replies fill Detail and Errors instead of Code and Message.
type ErrorDTO struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Detail  string           `json:"detail"`
	Errors  []FieldErrorDTO `json:"errors"`
}

// FieldErrorDTO is one rejected request field.
type FieldErrorDTO struct {
	Location string `json:"location"`
	Message  string `json:"message"`
}

// Error codes with a meaning beyond their HTTP status.
const (
	CodeNoNumbers         = "no_numbers"
	CodeInsufficientFunds = "insufficient_funds"
	CodeNumberReleased    = "number_released"
)
