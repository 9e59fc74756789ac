package dto_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

func TestPurchaseRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        dto.PurchaseRequest
		wantFields []string
	}{
		{
			name: "valid without provider",
			req:  dto.PurchaseRequest{Service: "telegram", Country: "us"},
		},
		{
			name: "valid with provider",
			req:  dto.PurchaseRequest{Provider: "primary", Service: "telegram", Country: "us"},
		},
		{
			name:       "missing service and country",
			req:        dto.PurchaseRequest{},
			wantFields: []string{"service", "country"},
		},
		{
			name:       "whitespace service",
			req:        dto.PurchaseRequest{Service: "   ", Country: "us"},
			wantFields: []string{"service"},
		},
		{
			name:       "provider too long",
			req:        dto.PurchaseRequest{Provider: strings.Repeat("p", 65), Service: "telegram", Country: "us"},
			wantFields: []string{"provider"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate()
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}

			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *domain.ValidationError", err)
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Fatalf("len(Fields) = %d, want %d (%v)", len(verr.Fields), len(tt.wantFields), verr.Fields)
			}
			for _, f := range tt.wantFields {
				if _, ok := verr.Fields[f]; !ok {
					t.Errorf("Fields missing %q", f)
				}
			}
		})
	}
}

func TestPurchaseRequest_Normalize(t *testing.T) {
	t.Parallel()

	req := dto.PurchaseRequest{Provider: " Primary ", Service: "Telegram", Country: " US"}
	req.Normalize()

	if req.Provider != "primary" || req.Service != "telegram" || req.Country != "us" {
		t.Errorf("Normalize() = %+v, want lowercase trimmed fields", req)
	}
}
