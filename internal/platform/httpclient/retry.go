package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/platform/retry"
)

// attempts sends req up to the policy's attempt count. Requests that are
// not replayable get exactly one attempt.
//
// Retry-After on a 429 or 503 stretches the wait. If the server asks for
// longer than the policy's MaxInterval the response is returned as is and
// the caller's breaker decides what happens next.
func (c *Client) attempts(ctx context.Context, req *http.Request) (*http.Response, error) {
	limit := max(c.retry.MaxAttempts, 1)
	if !replayable(ctx, req) {
		limit = 1
	}

	body, err := snapshotBody(req)
	if err != nil {
		return nil, err
	}

	for n := 1; ; n++ {
		rewind(req, body)

		resp, err := c.httpClient.Do(req)
		last := n >= limit

		switch {
		case err != nil:
			if last || retry.IsContextError(err) {
				return nil, err
			}
			if err := c.pause(ctx, req, n, c.retry.Backoff(n), err); err != nil {
				return nil, err
			}

		case !retryableStatus(resp.StatusCode):
			return resp, nil

		default:
			statusErr := fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.serviceName)
			wait, ok := c.waitFor(resp, n)
			if last || !ok {
				return resp, statusErr
			}
			discard(resp)
			if err := c.pause(ctx, req, n, wait, statusErr); err != nil {
				return nil, err
			}
		}
	}
}

// waitFor picks the delay before the next attempt. It reports false when
// the server's Retry-After exceeds what the policy is willing to wait.
func (c *Client) waitFor(resp *http.Response, attempt int) (time.Duration, bool) {
	wait := c.retry.Backoff(attempt)
	after, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now())
	if !ok {
		return wait, true
	}
	if c.retry.MaxInterval > 0 && after > c.retry.MaxInterval {
		return 0, false
	}
	return max(wait, after), true
}

func (c *Client) pause(ctx context.Context, req *http.Request, attempt int, wait time.Duration, cause error) error {
	c.logger.WarnContext(ctx, "retrying outbound request",
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.Int("attempt", attempt+1),
		slog.Int("max_attempts", c.retry.MaxAttempts),
		slog.Duration("backoff", wait),
		slog.Any("error", cause),
	)
	return retry.Sleep(ctx, wait)
}

// retryAfter parses a Retry-After header given either in seconds or as an
// HTTP date.
func retryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// snapshotBody reads the body once so every attempt can resend it.
func snapshotBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return b, nil
}

func rewind(req *http.Request, body []byte) {
	if body == nil {
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
}

// discard drains resp so the connection can be reused.
func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
