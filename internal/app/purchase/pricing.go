package purchase

import (
	"fmt"
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.PriceBook = (*PriceBook)(nil)

// PriceBook resolves prices from configuration. Lookup order is
// "service:country", then "service", then the default price.
type PriceBook struct {
	prices   map[string]ledger.Cents
	fallback ledger.Cents
}

// NewPriceBook parses the configured decimal prices. Keys are matched
// case-insensitively.
func NewPriceBook(cfg config.PricingConfig) (*PriceBook, error) {
	pb := &PriceBook{prices: make(map[string]ledger.Cents, len(cfg.Services))}

	if cfg.Default != "" {
		c, err := parsePrice("default", cfg.Default)
		if err != nil {
			return nil, err
		}
		pb.fallback = c
	}

	for key, raw := range cfg.Services {
		c, err := parsePrice(key, raw)
		if err != nil {
			return nil, err
		}
		pb.prices[strings.ToLower(key)] = c
	}
	return pb, nil
}

// Price implements [ports.PriceBook]. The provider does not affect the price.
func (pb *PriceBook) Price(_, service, country string) (ledger.Cents, error) {
	service = strings.ToLower(strings.TrimSpace(service))
	country = strings.ToLower(strings.TrimSpace(country))

	if c, ok := pb.prices[service+":"+country]; ok {
		return c, nil
	}
	if c, ok := pb.prices[service]; ok {
		return c, nil
	}
	if pb.fallback > 0 {
		return pb.fallback, nil
	}
	return 0, &domain.ValidationError{Fields: map[string]string{
		"service": fmt.Sprintf("no price for %q in %q", service, country),
	}}
}

func parsePrice(key, raw string) (ledger.Cents, error) {
	c, err := ledger.ParseAmount(raw)
	if err != nil {
		return 0, fmt.Errorf("pricing.%s: %w", key, err)
	}
	if c <= 0 {
		return 0, fmt.Errorf("pricing.%s: %w: price must be positive", key, domain.ErrValidation)
	}
	return c, nil
}
