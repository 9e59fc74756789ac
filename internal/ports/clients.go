package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/ledger"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
)

// ProviderGateway is the client port for an SMS/voice provisioning provider.
// Implemented by the provider ACL adapter. Errors are translated to
// *domain.TransientProviderError or *domain.PermanentProviderError.
type ProviderGateway interface {
	// Name identifies the provider in breakers, metrics and verifications.
	Name() string

	// RequestNumber provisions a number for the service and country.
	RequestNumber(ctx context.Context, service, country string) (verification.Assignment, error)

	// PollMessages returns messages delivered to the provisioned number so far.
	PollMessages(ctx context.Context, ref string) ([]verification.Message, error)

	// Cancel releases the provisioned number.
	Cancel(ctx context.Context, ref string) error
}

// PriceBook resolves the cost of a verification.
type PriceBook interface {
	// Price returns domain.ErrValidation for unknown services when no
	// default price is configured.
	Price(provider, service, country string) (ledger.Cents, error)
}

// Lock is a held distributed lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker grants named locks that exclude other service instances.
type Locker interface {
	// TryAcquire returns domain.ErrConflict when the lock is held elsewhere.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Lock, error)
}

// Providers maps provider names to gateways.
type Providers map[string]ProviderGateway

// Get returns the named gateway or a domain.ErrValidation error.
func (p Providers) Get(name string) (ProviderGateway, error) {
	gw, ok := p[name]
	if !ok {
		return nil, &domain.ValidationError{Fields: map[string]string{"provider": fmt.Sprintf("unknown provider %q", name)}}
	}
	return gw, nil
}
