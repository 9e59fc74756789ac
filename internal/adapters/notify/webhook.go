package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jsamuelsen11/numbers-core/internal/domain/event"
	"github.com/jsamuelsen11/numbers-core/internal/platform/httpclient"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
)

// Outbound webhook headers.
const (
	HeaderSignature = "X-Signature"
	HeaderEventID   = "X-Event-ID"
	HeaderEventType = "X-Event-Type"
)

// Compile-time interface check.
var _ ports.Channel = (*WebhookChannel)(nil)

// WebhookChannel POSTs events as JSON to the client's base URL. The body is
// signed with HMAC-SHA256 as "sha256=<hex>" so receivers can use the same
// verification as inbound payment webhooks. Receivers deduplicate on
// X-Event-ID.
type WebhookChannel struct {
	client *httpclient.Client
	secret []byte
}

// NewWebhookChannel returns a channel posting through client.
func NewWebhookChannel(client *httpclient.Client, secret string) *WebhookChannel {
	return &WebhookChannel{client: client, secret: []byte(secret)}
}

// Name implements [ports.Channel].
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Deliver implements [ports.Channel]. Any non-2xx answer is a delivery
// failure. A 4xx other than 408 or 429 will not succeed on retry and wraps
// [event.ErrUndeliverable].
func (c *WebhookChannel) Deliver(ctx context.Context, ev event.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling event %s: %w", ev.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.client.BaseURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, ev.ID)
	req.Header.Set(HeaderEventType, string(ev.Type))
	req.Header.Set(HeaderSignature, "sha256="+Sign(c.secret, body))

	resp, err := c.client.Do(httpclient.AllowReplay(ctx), req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("posting event %s: %w", ev.ID, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if permanentStatus(resp.StatusCode) {
		return fmt.Errorf("posting event %s: status %d: %w", ev.ID, resp.StatusCode, event.ErrUndeliverable)
	}
	return fmt.Errorf("posting event %s: unexpected status %d", ev.ID, resp.StatusCode)
}

func permanentStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// HealthCheck reports the state of the client's breaker.
func (c *WebhookChannel) HealthCheck(ctx context.Context) error {
	return c.client.HealthCheck(ctx)
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
