package breaker

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/metrics"
)

// Registry holds one Breaker per provider, all built from the same config.
type Registry struct {
	mu       sync.Mutex
	cfg      config.CircuitBreakerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	breakers map[string]*Breaker
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg config.CircuitBreakerConfig, m *metrics.Metrics, logger *slog.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the provider's breaker, creating it on first use.
func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[provider]
	if !ok {
		b = New(provider, r.cfg, r.metrics, r.logger)
		r.breakers[provider] = b
	}
	return b
}

// All returns every breaker ordered by provider name.
func (r *Registry) All() []*Breaker {
	r.mu.Lock()
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].provider < out[j].provider })
	return out
}

// Snapshots returns the state of every breaker ordered by provider name.
func (r *Registry) Snapshots() []domain.CircuitBreakerState {
	all := r.All()
	out := make([]domain.CircuitBreakerState, 0, len(all))
	for _, b := range all {
		out = append(out, b.Snapshot())
	}
	return out
}
