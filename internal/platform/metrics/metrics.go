// Package metrics holds the Prometheus collectors for domain counters. The
// collectors live in a private registry so tests and multiple instances never
// collide on the default registerer.
//
// All recording methods are nil-safe: a nil *Metrics records nothing, which
// lets packages accept an optional metrics dependency without guards.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	registry *prometheus.Registry

	Purchases          *prometheus.CounterVec
	PurchaseDuration   *prometheus.HistogramVec
	Refunds            *prometheus.CounterVec
	Compensations      *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejections  *prometheus.CounterVec
	LedgerConflicts    *prometheus.CounterVec
	Polls              *prometheus.CounterVec
	ActivePolls        prometheus.Gauge
	EventDeliveries    *prometheus.CounterVec
	IdempotencyOutcome *prometheus.CounterVec
	LateDeliveries     prometheus.Counter
}

// New builds the collectors under namespace in a fresh registry. Go runtime
// and process collectors are registered alongside them.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Purchases by provider and outcome.",
		}, []string{"provider", "outcome"}),
		PurchaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "purchase_duration_seconds",
			Help:      "Latency of the purchase flow up to polling.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refunds issued by reason.",
		}, []string{"reason"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensation runs by reason and result.",
		}, []string{"reason", "result"}),
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound payment webhooks by result.",
		}, []string{"result"}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"provider", "from", "to"}),
		BreakerRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_rejections_total",
			Help:      "Calls rejected while a breaker was open.",
		}, []string{"provider"}),
		LedgerConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_cas_conflicts_total",
			Help:      "Balance compare-and-swap conflicts by operation.",
		}, []string{"operation"}),
		Polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Provider delivery polls by result.",
		}, []string{"provider", "result"}),
		ActivePolls: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poll_tasks_active",
			Help:      "Verifications currently being polled.",
		}),
		EventDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_deliveries_total",
			Help:      "Event deliveries by channel and result.",
		}, []string{"channel", "result"}),
		IdempotencyOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idempotency_begin_total",
			Help:      "Idempotency guard outcomes.",
		}, []string{"outcome"}),
		LateDeliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_deliveries_total",
			Help:      "Messages that arrived after the verification was final.",
		}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PurchaseRecorded(provider, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(provider, outcome).Inc()
	m.PurchaseDuration.WithLabelValues(provider).Observe(seconds)
}

func (m *Metrics) RefundIssued(reason string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(reason).Inc()
}

func (m *Metrics) CompensationRecorded(reason, result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(reason, result).Inc()
}

func (m *Metrics) WebhookRecorded(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) BreakerTransition(provider, from, to string) {
	if m == nil {
		return
	}
	m.BreakerTransitions.WithLabelValues(provider, from, to).Inc()
}

func (m *Metrics) BreakerRejected(provider string) {
	if m == nil {
		return
	}
	m.BreakerRejections.WithLabelValues(provider).Inc()
}

func (m *Metrics) LedgerConflict(operation string) {
	if m == nil {
		return
	}
	m.LedgerConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) PollRecorded(provider, result string) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(provider, result).Inc()
}

// PollTasks sets the active poll task gauge.
func (m *Metrics) PollTasks(n int) {
	if m == nil {
		return
	}
	m.ActivePolls.Set(float64(n))
}

func (m *Metrics) EventDelivered(channel, result string) {
	if m == nil {
		return
	}
	m.EventDeliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) IdempotencyRecorded(outcome string) {
	if m == nil {
		return
	}
	m.IdempotencyOutcome.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LateDelivery() {
	if m == nil {
		return
	}
	m.LateDeliveries.Inc()
}
