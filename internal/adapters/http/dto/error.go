package dto

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

// ProblemContentType is the media type of every error body (RFC 9457).
const ProblemContentType = "application/problem+json"

// internalDetail replaces the message of unclassified errors so storage
// and driver text never reaches clients.
const internalDetail = "internal error"

// ErrorResponse is an RFC 9457 problem details body.
type ErrorResponse struct {
	Type     string        `json:"type"`
	Title    string        `json:"title"`
	Status   int           `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Instance string        `json:"instance,omitempty"`
	Errors   []ErrorDetail `json:"errors,omitempty"`
}

// ErrorDetail is one field-level validation failure.
type ErrorDetail struct {
	Location string `json:"location"`
	Message  string `json:"message"`
	Value    any    `json:"value,omitempty"`
}

// statusFor lists domain errors in match order. ErrCircuitOpen precedes the
// ErrUnavailable it wraps; idempotency conflicts precede ErrConflict.
var statusFor = []struct {
	target error
	status int
}{
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrInvalidSignature, http.StatusUnauthorized},
	{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrIdempotencyConflict, http.StatusUnprocessableEntity},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrInProgress, http.StatusConflict},
	{domain.ErrCircuitOpen, http.StatusServiceUnavailable},
	{domain.ErrUnavailable, http.StatusBadGateway},
}

// StatusFor returns the HTTP status for err, 500 when no domain error
// matches.
func StatusFor(err error) int {
	for _, m := range statusFor {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// NewErrorResponse builds the problem body for err. Instance is the request
// URI; validation errors also list their fields.
func NewErrorResponse(r *http.Request, err error) ErrorResponse {
	status := StatusFor(err)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = internalDetail
	}

	resp := ErrorResponse{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.RequestURI,
	}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = fieldDetails(verr.Fields)
	}
	return resp
}

// WriteErrorResponse writes err as a problem response. An open circuit adds
// Retry-After in whole seconds.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	resp := NewErrorResponse(r, err)

	var coe *domain.CircuitOpenError
	if errors.As(err, &coe) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(coe.RetryAt, time.Now())))
	}
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(resp.Status)

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		slog.ErrorContext(r.Context(), "failed to encode error response", slog.Any("error", encErr))
	}
}

// WriteProblem writes a problem response for failures that have no domain
// error behind them: routing misses, timeouts, missing caller headers.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	w.Header().Set("Content-Type", ProblemContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: r.RequestURI,
	})
}

// retryAfterSeconds rounds the wait until at up to whole seconds, never
// below 1.
func retryAfterSeconds(at, now time.Time) int {
	if at.IsZero() {
		return 1
	}
	secs := int((at.Sub(now) + time.Second - 1) / time.Second)
	return max(secs, 1)
}

func fieldDetails(fields map[string]string) []ErrorDetail {
	details := make([]ErrorDetail, 0, len(fields))
	for field, msg := range fields {
		details = append(details, ErrorDetail{Location: "body." + field, Message: msg})
	}
	slices.SortFunc(details, func(a, b ErrorDetail) int {
		return strings.Compare(a.Location, b.Location)
	})
	return details
}
