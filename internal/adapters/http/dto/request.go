package dto

import (
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

const (
	msgRequired = "is required"
	msgTooLong  = "must be at most 64 characters"

	maxFieldLen = 64
)

// PurchaseRequest represents the JSON body for buying a verification number.
// Provider is optional; the configured default is used when empty.
type PurchaseRequest struct {
	Provider string `json:"provider,omitempty"`
	Service  string `json:"service"`
	Country  string `json:"country"`
}

// Validate checks that required fields are present and bounded.
// Returns a *domain.ValidationError if any checks fail.
func (r *PurchaseRequest) Validate() error {
	fields := make(map[string]string)

	checkField(fields, "service", r.Service, true)
	checkField(fields, "country", r.Country, true)
	checkField(fields, "provider", r.Provider, false)

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Normalize trims whitespace and lowercases the lookup fields.
func (r *PurchaseRequest) Normalize() {
	r.Provider = strings.ToLower(strings.TrimSpace(r.Provider))
	r.Service = strings.ToLower(strings.TrimSpace(r.Service))
	r.Country = strings.ToLower(strings.TrimSpace(r.Country))
}

func checkField(fields map[string]string, name, v string, required bool) {
	v = strings.TrimSpace(v)
	switch {
	case v == "" && required:
		fields[name] = msgRequired
	case len(v) > maxFieldLen:
		fields[name] = msgTooLong
	}
}
