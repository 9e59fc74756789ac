package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
)

// Setup replaces global providers, so these tests run serially.

func TestSetup_Disabled(t *testing.T) {
	p, err := telemetry.Setup(t.Context(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)

	assert.Nil(t, p.Tracer)
	assert.Nil(t, p.Meter)
	assert.Nil(t, p.Metrics)
	assert.NoError(t, p.Shutdown(t.Context()))
}

func TestSetup_Exporters(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TelemetryConfig
		wantErr  bool
		shutdown bool
	}{
		{
			name:     "stdout",
			cfg:      config.TelemetryConfig{Enabled: true, Exporter: telemetry.ExporterStdout, ServiceName: "numbers-core", SampleRatio: 1},
			shutdown: true,
		},
		{
			name: "otlp with collector url",
			cfg: config.TelemetryConfig{
				Enabled: true, Exporter: telemetry.ExporterOTLP, Endpoint: "http://localhost:4318",
				ServiceName: "numbers-core", SampleRatio: 0.5,
			},
		},
		{
			name:    "otlp without endpoint",
			cfg:     config.TelemetryConfig{Enabled: true, Exporter: telemetry.ExporterOTLP, ServiceName: "numbers-core"},
			wantErr: true,
		},
		{
			name:    "unknown exporter",
			cfg:     config.TelemetryConfig{Enabled: true, Exporter: "zipkin", ServiceName: "numbers-core"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := telemetry.Setup(t.Context(), tt.cfg, "test")
			if tt.wantErr {
				if err == nil {
					t.Fatal("Setup() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			assert.NotNil(t, p.Tracer)
			assert.NotNil(t, p.Meter)
			assert.NotNil(t, p.Metrics)
			assert.NotNil(t, otel.GetTextMapPropagator())

			// No collector runs in unit tests, so OTLP flushes may fail.
			err = p.Shutdown(context.Background())
			if tt.shutdown {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := telemetry.NewMetrics(mp, "numbers-core")
	require.NoError(t, err)

	assert.NotNil(t, m.ServerRequestDuration)
	assert.NotNil(t, m.ServerRequestTotal)
	assert.NotNil(t, m.ClientRequestDuration)
	assert.NotNil(t, m.ClientRequestTotal)
}

func TestEndSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, ok := telemetry.StartSpan(t.Context(), "ledger.Refund", telemetry.AttrVerificationID.String("v-1"))
	telemetry.EndSpan(ok, nil)

	_, failed := telemetry.StartSpan(t.Context(), "provider.RequestNumber", telemetry.AttrProvider.String("primary"))
	telemetry.EndSpan(failed, errors.New("provider down"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "ledger.Refund", spans[0].Name)
	assert.NotEqual(t, codes.Error, spans[0].Status.Code)

	assert.Equal(t, "provider.RequestNumber", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "provider down", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1, "error recorded as span event")
}
