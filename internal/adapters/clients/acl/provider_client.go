package acl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/clients/acl/provider"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/platform/httpclient"
	"github.com/jsamuelsen11/numbers-core/internal/platform/telemetry"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Compile-time interface check.
var _ ports.ProviderGateway = (*ProviderClient)(nil)

// ProviderClient is the outbound adapter for a number provider. It
// implements [ports.ProviderGateway].
//
// Responses are translated by [provider] and every error is classified as
// *domain.TransientProviderError or *domain.PermanentProviderError by
// [Classify]. The underlying [httpclient.Client] retries 5xx/429 for polls
// and cancels only; a number request is sent once. It also supplies rate
// limiting, tracing and metrics. Breaking is left to the caller's
// per-provider breaker.
type ProviderClient struct {
	name   string
	req    *Requester
	logger *slog.Logger
}

// NewProviderClient creates a client named name that sends requests through
// client. The client's BaseURL should point at the provider API root.
func NewProviderClient(name string, client *httpclient.Client, logger *slog.Logger) *ProviderClient {
	return &ProviderClient{
		name:   name,
		req:    NewRequester(client, logger),
		logger: logger,
	}
}

// Name returns the provider name used for breakers, metrics and stored
// verifications.
func (c *ProviderClient) Name() string {
	return c.name
}

// RequestNumber provisions a number via POST /api/v1/numbers.
func (c *ProviderClient) RequestNumber(ctx context.Context, service, country string) (verification.Assignment, error) {
	ctx, span := telemetry.StartSpan(ctx, "provider.RequestNumber",
		telemetry.AttrProvider.String(c.name))

	var dto provider.NumberDTO
	err := c.req.Do(ctx, http.MethodPost, "/api/v1/numbers",
		provider.NumberRequestDTO{Service: service, Country: country}, &dto)
	if err == nil && dto.ID == "" {
		err = fmt.Errorf("%w: number without id", errDecode)
	}
	err = Classify(c.name, "request_number", err)
	telemetry.EndSpan(span, err)
	if err != nil {
		return verification.Assignment{}, err
	}

	return provider.ToAssignment(&dto), nil
}

// PollMessages fetches deliveries via GET /api/v1/numbers/{ref}/messages.
// A number the provider has closed without any delivery is a permanent
// failure.
func (c *ProviderClient) PollMessages(ctx context.Context, ref string) ([]verification.Message, error) {
	path := "/api/v1/numbers/" + url.PathEscape(ref) + "/messages"

	var dto provider.MessagesResponseDTO
	if err := c.req.Do(ctx, http.MethodGet, path, nil, &dto); err != nil {
		return nil, Classify(c.name, "poll_messages", err)
	}

	msgs := provider.ToMessages(dto)
	if len(msgs) == 0 && provider.IsClosed(dto.Status) {
		return nil, &domain.PermanentProviderError{
			Provider: c.name,
			Op:       "poll_messages",
			Err:      fmt.Errorf("number %s is %s: %w", ref, dto.Status, domain.ErrConflict),
		}
	}
	return msgs, nil
}

// Cancel releases a number via POST /api/v1/numbers/{ref}/cancel. A number
// the provider no longer knows is treated as already released, which also
// makes the call safe to resend.
func (c *ProviderClient) Cancel(ctx context.Context, ref string) error {
	path := "/api/v1/numbers/" + url.PathEscape(ref) + "/cancel"

	err := c.req.Do(httpclient.AllowReplay(ctx), http.MethodPost, path, nil, nil)
	if err != nil && isReleased(err) {
		c.logger.DebugContext(ctx, "provider number already released",
			slog.String("provider", c.name),
			slog.String("provider_ref", ref),
		)
		return nil
	}
	return Classify(c.name, "cancel", err)
}

func isReleased(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
