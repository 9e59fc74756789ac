package httpclient_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/httpclient"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
)

func providerConfig(baseURL string) *config.ClientConfig {
	return &config.ClientConfig{
		BaseURL: baseURL,
		Timeout: 5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     100 * time.Millisecond,
			Multiplier:      2,
		},
	}
}

// countingServer answers every request with status and counts the hits.
func countingServer(t *testing.T, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newRequest(t *testing.T, ctx context.Context, method, url, body string) *http.Request {
	t.Helper()

	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	require.NoError(t, err)
	return req
}

func closeBody(resp *http.Response) {
	if resp != nil {
		_ = resp.Body.Close()
	}
}

func TestDo_InjectsHeaders(t *testing.T) {
	t.Parallel()

	got := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Clone()
		_, _ = io.WriteString(w, `{"id":"n-1"}`)
	}))
	t.Cleanup(srv.Close)

	client := httpclient.New(providerConfig(srv.URL), "primary", nil, nil,
		httpclient.WithHeader("X-API-Key", "provider-key"),
		httpclient.WithHeader("X-Empty", ""),
	)

	ctx := httpclient.WithRequestID(t.Context(), "req-1")
	ctx = httpclient.WithCorrelationID(ctx, "corr-1")
	resp, err := client.Do(ctx, newRequest(t, ctx, http.MethodGet, srv.URL+"/api/v1/numbers/n-1/messages", ""))
	require.NoError(t, err)
	defer closeBody(resp)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":"n-1"}`, string(body))

	h := <-got
	assert.Equal(t, "provider-key", h.Get("X-API-Key"))
	assert.Equal(t, "req-1", h.Get("X-Request-ID"))
	assert.Equal(t, "corr-1", h.Get("X-Correlation-ID"))
	assert.Empty(t, h.Values("X-Empty"))
}

func TestDo_ReplayRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		method   string
		replay   bool
		idemKey  string
		wantHits int32
	}{
		{name: "poll is retried", method: http.MethodGet, wantHits: 3},
		{name: "number purchase sent once", method: http.MethodPost, wantHits: 1},
		{name: "marked post retried", method: http.MethodPost, replay: true, wantHits: 3},
		{name: "keyed post retried", method: http.MethodPost, idemKey: "k-1", wantHits: 3},
		{name: "delete retried", method: http.MethodDelete, wantHits: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, hits := countingServer(t, http.StatusServiceUnavailable)
			client := httpclient.New(providerConfig(srv.URL), "primary", nil, nil)

			ctx := t.Context()
			if tt.replay {
				ctx = httpclient.AllowReplay(ctx)
			}
			req := newRequest(t, ctx, tt.method, srv.URL+"/api/v1/numbers", `{"service":"telegram"}`)
			if tt.idemKey != "" {
				req.Header.Set("Idempotency-Key", tt.idemKey)
			}

			resp, err := client.Do(ctx, req)
			defer closeBody(resp)

			require.Error(t, err)
			require.NotNil(t, resp, "exhausted retries return the last response")
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestDo_ReplaysBody(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	bodies := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client := httpclient.New(providerConfig(srv.URL), "notify-webhook", nil, nil)
	ctx := httpclient.AllowReplay(t.Context())

	resp, err := client.Do(ctx, newRequest(t, ctx, http.MethodPost, srv.URL, `{"type":"verification.completed"}`))
	require.NoError(t, err)
	defer closeBody(resp)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, `{"type":"verification.completed"}`, <-bodies)
	assert.Equal(t, `{"type":"verification.completed"}`, <-bodies)
}

func TestDo_ClientErrorsNotRetried(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, http.StatusNotFound)
	client := httpclient.New(providerConfig(srv.URL), "primary", nil, nil)

	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, srv.URL, ""))
	require.NoError(t, err)
	defer closeBody(resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_RetryAfter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		retryAfter string
		wantHits   int32
	}{
		{name: "short wait honoured", retryAfter: "0", wantHits: 3},
		{name: "wait beyond policy gives up", retryAfter: "120", wantHits: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Retry-After", tt.retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			t.Cleanup(srv.Close)

			client := httpclient.New(providerConfig(srv.URL), "primary", nil, nil)
			resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, srv.URL, ""))
			defer closeBody(resp)

			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestDo_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := httpclient.New(providerConfig(url), "primary", nil, nil)
	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, url, ""))

	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, http.StatusServiceUnavailable)
	cfg := providerConfig(srv.URL)
	cfg.Retry.InitialInterval = time.Second
	cfg.Retry.MaxInterval = time.Second
	client := httpclient.New(cfg, "primary", nil, nil)

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	resp, err := client.Do(ctx, newRequest(t, ctx, http.MethodGet, srv.URL, ""))
	closeBody(resp)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_RateLimitRespectsDeadline(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, http.StatusOK)
	cfg := providerConfig(srv.URL)
	cfg.RateLimit = config.RateLimitConfig{RequestsPerSecond: 0.01, BurstSize: 1}
	client := httpclient.New(cfg, "primary", nil, nil)

	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, srv.URL, ""))
	require.NoError(t, err)
	closeBody(resp)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	resp, err = client.Do(ctx, newRequest(t, ctx, http.MethodGet, srv.URL, ""))
	closeBody(resp)

	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_BreakerOpensAndReportsHealth(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, http.StatusInternalServerError)
	cfg := providerConfig(srv.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:       true,
		MaxFailures:   2,
		Cooldown:      time.Minute,
		HalfOpenLimit: 1,
	}
	client := httpclient.New(cfg, "notify-webhook", nil, nil)
	require.NoError(t, client.HealthCheck(t.Context()))

	for range 2 {
		resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodPost, srv.URL, "{}"))
		closeBody(resp)
		require.Error(t, err)
	}

	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodPost, srv.URL, "{}"))
	closeBody(resp)

	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "err = %v", err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(2), hits.Load())
	assert.ErrorContains(t, client.HealthCheck(t.Context()), "breaker open")
}

func TestClient_WithoutBreakerAlwaysHealthy(t *testing.T) {
	t.Parallel()

	srv, _ := countingServer(t, http.StatusInternalServerError)
	client := httpclient.New(providerConfig(srv.URL), "primary", nil, nil)

	for range 5 {
		resp, _ := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodPost, srv.URL, "{}"))
		closeBody(resp)
	}

	assert.NoError(t, client.HealthCheck(t.Context()))
	assert.Equal(t, "primary", client.Name())
	assert.Equal(t, srv.URL, client.BaseURL())
}

func TestDo_WithHTTPClient(t *testing.T) {
	t.Parallel()

	srv, hits := countingServer(t, http.StatusOK)
	client := httpclient.New(providerConfig("http://unused"), "primary", nil, nil,
		httpclient.WithHTTPClient(srv.Client()))

	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, srv.URL, ""))
	require.NoError(t, err)
	closeBody(resp)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDo_RecordsClientMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), "numbers-test")
	require.NoError(t, err)

	srv, _ := countingServer(t, http.StatusOK)
	client := httpclient.New(providerConfig(srv.URL), "primary", metrics, nil)

	resp, err := client.Do(t.Context(), newRequest(t, t.Context(), http.MethodGet, srv.URL, ""))
	require.NoError(t, err)
	closeBody(resp)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != "http.client.request.total" || !ok {
				continue
			}
			require.Len(t, sum.DataPoints, 1)
			peer, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrPeerService)
			result, _ := sum.DataPoints[0].Attributes.Value(telemetry.AttrResult)
			assert.Equal(t, "primary", peer.AsString())
			assert.Equal(t, "success", result.AsString())
			found = true
		}
	}
	assert.True(t, found, "http.client.request.total not recorded")
}
