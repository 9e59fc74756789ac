package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Metrics are the OTel HTTP instruments recorded by the inbound middleware
// and the outbound client.
type Metrics struct {
	ServerRequestDuration metric.Float64Histogram
	ServerRequestTotal    metric.Int64Counter
	ClientRequestDuration metric.Float64Histogram
	ClientRequestTotal    metric.Int64Counter
}

// NewMetrics registers the instruments on mp.
func NewMetrics(mp metric.MeterProvider, serviceName string) (*Metrics, error) {
	meter := mp.Meter(instrumentationName,
		metric.WithInstrumentationAttributes(semconv.ServiceName(serviceName)),
	)

	var (
		m   Metrics
		err error
	)
	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		if err != nil {
			err = fmt.Errorf("creating %s: %w", name, err)
		}
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{request}"))
		if err != nil {
			err = fmt.Errorf("creating %s: %w", name, err)
		}
		return c
	}

	m.ServerRequestDuration = histogram("http.server.request.duration", "Duration of API and webhook requests")
	m.ServerRequestTotal = counter("http.server.request.total", "API and webhook requests served")
	m.ClientRequestDuration = histogram("http.client.request.duration", "Duration of provider and notification calls")
	m.ClientRequestTotal = counter("http.client.request.total", "Provider and notification calls made")
	if err != nil {
		return nil, err
	}
	return &m, nil
}
