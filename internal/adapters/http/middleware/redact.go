package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/platform/logging"
)

const redacted = "[REDACTED]"

// HeaderRedactor turns request headers into log attributes with credentials
// masked. It starts from logging.SensitiveHeaders so the masq handler and
// the middleware agree on what is secret.
type HeaderRedactor struct {
	sensitive map[string]bool
}

// NewHeaderRedactor masks the shared sensitive set plus extra, which is
// where a deployment's custom webhook signature header goes.
func NewHeaderRedactor(extra ...string) *HeaderRedactor {
	sensitive := make(map[string]bool, len(logging.SensitiveHeaders)+len(extra))
	for name := range logging.SensitiveHeaders {
		sensitive[name] = true
	}
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" {
			sensitive[strings.ToLower(name)] = true
		}
	}
	return &HeaderRedactor{sensitive: sensitive}
}

// Attrs returns one attribute per header, sorted by name. Multi-value
// headers are joined with a comma.
func (h *HeaderRedactor) Attrs(headers http.Header) []slog.Attr {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	slices.Sort(names)

	attrs := make([]slog.Attr, 0, len(names))
	for _, name := range names {
		value := redacted
		if !h.Sensitive(name) {
			value = strings.Join(headers[name], ",")
		}
		attrs = append(attrs, slog.String(name, value))
	}
	return attrs
}

// Sensitive reports whether the named header is masked.
func (h *HeaderRedactor) Sensitive(name string) bool {
	return h.sensitive[strings.ToLower(name)]
}
