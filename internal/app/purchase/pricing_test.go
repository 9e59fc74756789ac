package purchase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
)

func TestPriceBook_Price(t *testing.T) {
	t.Parallel()

	pb, err := NewPriceBook(config.PricingConfig{
		Default: "2.50",
		Services: map[string]string{
			"whatsapp":    "3.00",
			"WhatsApp:GB": "4.25",
		},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		service string
		country string
		want    ledger.Cents
	}{
		{name: "country override", service: "whatsapp", country: "gb", want: 425},
		{name: "service price", service: "whatsapp", country: "us", want: 300},
		{name: "case insensitive", service: "WHATSAPP", country: "GB", want: 425},
		{name: "default", service: "telegram", country: "us", want: 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := pb.Price("primary", tt.service, tt.country)
			if err != nil {
				t.Fatalf("Price() error = %v", err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceBook_NoDefault(t *testing.T) {
	t.Parallel()

	pb, err := NewPriceBook(config.PricingConfig{Services: map[string]string{"whatsapp": "3"}})
	require.NoError(t, err)

	_, err = pb.Price("primary", "telegram", "us")
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewPriceBook_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  config.PricingConfig
	}{
		{name: "not a number", cfg: config.PricingConfig{Default: "cheap"}},
		{name: "sub-cent", cfg: config.PricingConfig{Services: map[string]string{"whatsapp": "1.005"}}},
		{name: "zero", cfg: config.PricingConfig{Services: map[string]string{"whatsapp": "0"}}},
		{name: "negative default", cfg: config.PricingConfig{Default: "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPriceBook(tt.cfg)
			assert.Error(t, err)
		})
	}
}
