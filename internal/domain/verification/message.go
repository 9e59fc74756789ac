package verification

import "time"

// MessageKind distinguishes SMS deliveries from voice calls.
type MessageKind string

const (
	KindSMS   MessageKind = "sms"
	KindVoice MessageKind = "voice"
)

// Message is content delivered to a provisioned number.
type Message struct {
	ID         string
	Kind       MessageKind
	Code       string
	Text       string
	ReceivedAt time.Time
}

// Assignment is the provider's answer to a number request.
type Assignment struct {
	Ref         string
	PhoneNumber string
}
