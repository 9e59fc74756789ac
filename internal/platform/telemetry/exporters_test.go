package telemetry

import (
	"errors"
	"testing"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint     string
		wantHost     string
		wantInsecure bool
		wantErr      error
	}{
		{endpoint: "http://otel-collector:4318", wantHost: "otel-collector:4318", wantInsecure: true},
		{endpoint: "https://collector.example.com", wantHost: "collector.example.com"},
		{endpoint: "otel-collector:4318", wantHost: "otel-collector:4318", wantInsecure: true},
		{endpoint: "", wantErr: errMissingEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			t.Parallel()

			host, insecure, err := collector(tt.endpoint)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("collector() error = %v, want %v", err, tt.wantErr)
			}
			if host != tt.wantHost || insecure != tt.wantInsecure {
				t.Errorf("collector() = (%q, %v), want (%q, %v)", host, insecure, tt.wantHost, tt.wantInsecure)
			}
		})
	}
}
