// Package httpclient is the outbound HTTP stack shared by provider clients
// and the notification webhook. One call to Do goes through
//
//	breaker → rate limiter → headers → client span → attempts → net/http
//
// Only replay-safe requests are retried: idempotent methods, requests that
// carry an Idempotency-Key header, or requests whose context was marked
// with AllowReplay. Buying a number is a POST without either, so a lost
// response never turns into a second purchase at this layer.
//
//	client := httpclient.New(&cfg.Provider.Client, "primary", metrics, logger,
//	    httpclient.WithHeader("X-API-Key", cfg.Provider.APIKey))
//	resp, err := client.Do(ctx, req)
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/jsamuelsen11/numbers-core/internal/platform/config"
	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
)

type (
	requestIDKey     struct{}
	correlationIDKey struct{}
	replayKey        struct{}
)

// WithRequestID makes outbound requests on ctx carry X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// WithCorrelationID makes outbound requests on ctx carry X-Correlation-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// AllowReplay marks requests on ctx as safe to send more than once, e.g. a
// provider cancel or an event the receiver deduplicates.
func AllowReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, replayKey{}, true)
}

// Client sends requests to one downstream service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	serviceName string
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	limiter     *rate.Limiter
	retry       retry.Policy
	headers     http.Header
	metrics     *telemetry.Metrics
	logger      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHeader sets a static header on every request. Empty values are
// ignored so an unset API key does not send an empty header.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if value != "" {
			c.headers.Set(key, value)
		}
	}
}

// WithHTTPClient swaps the transport client. cfg.Timeout is not applied
// to it.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New builds a client for serviceName. A nil metrics skips recording. The
// breaker exists only when cfg.CircuitBreaker.Enabled; provider clients
// leave it off because the purchase flow has its own per-provider breaker.
func New(cfg *config.ClientConfig, serviceName string, metrics *telemetry.Metrics, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     cfg.BaseURL,
		serviceName: serviceName,
		retry:       retry.FromConfig(cfg.Retry),
		headers:     make(http.Header),
		metrics:     metrics,
		logger:      logger.With(slog.String("peer_service", serviceName)),
	}
	if cfg.CircuitBreaker.Enabled {
		c.breaker = newBreaker(serviceName, cfg.CircuitBreaker, c.logger)
	}
	if rl := cfg.RateLimit; rl.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), max(rl.BurstSize, 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: clampUint32(cfg.HalfOpenLimit),
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= cfg.MaxFailures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logger.Warn("client breaker changed state",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
}

// Do sends req and returns the response with its body open.
//
// A response whose status is still retryable after the last attempt comes
// back together with a non-nil error; the caller closes its body either
// way. Breaker rejections and transport errors return a nil response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()

	send := func() (*http.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		c.setHeaders(ctx, req)

		spanCtx, span := c.startSpan(ctx, req)
		resp, err := c.attempts(spanCtx, req.WithContext(spanCtx))
		endSpan(span, resp, err)
		return resp, err
	}

	var (
		resp *http.Response
		err  error
	)
	if c.breaker == nil {
		resp, err = send()
	} else {
		resp, err = c.breaker.Execute(send)
	}

	c.record(ctx, req.Method, start, resp, err)
	return resp, err
}

// BaseURL is the configured root URL of the downstream service.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Name is the downstream service name used in spans and metrics.
func (c *Client) Name() string {
	return c.serviceName
}

// HealthCheck reports the client breaker without touching the network. A
// client without a breaker is always healthy.
func (c *Client) HealthCheck(context.Context) error {
	if c.breaker == nil {
		return nil
	}
	switch state := c.breaker.State(); state {
	case gobreaker.StateClosed:
		return nil
	case gobreaker.StateHalfOpen:
		return fmt.Errorf("%s: breaker half-open, probing", c.serviceName)
	case gobreaker.StateOpen:
		return fmt.Errorf("%s: breaker open", c.serviceName)
	default:
		return fmt.Errorf("%s: breaker in unknown state %v", c.serviceName, state)
	}
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request) {
	for key, values := range c.headers {
		req.Header[key] = append([]string(nil), values...)
	}
	if id, _ := ctx.Value(requestIDKey{}).(string); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if id, _ := ctx.Value(correlationIDKey{}).(string); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
}

// replayable reports whether req may be sent again after an ambiguous
// failure.
func replayable(ctx context.Context, req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	if req.Header.Get("Idempotency-Key") != "" {
		return true
	}
	ok, _ := ctx.Value(replayKey{}).(bool)
	return ok
}

func (c *Client) record(ctx context.Context, method string, start time.Time, resp *http.Response, err error) {
	if c.metrics == nil {
		return
	}

	status, result := 0, "error"
	if resp != nil {
		status = resp.StatusCode
		if status < http.StatusBadRequest {
			result = "success"
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		result = "circuit_open"
	}

	attrs := clientAttrs(method, status, c.serviceName, result)
	c.metrics.ClientRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	c.metrics.ClientRequestTotal.Add(ctx, 1, attrs)
}

func clampUint32(v int) uint32 {
	switch {
	case v <= 0:
		return 0
	case v > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}
