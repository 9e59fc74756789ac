// Package acl is the anti-corruption layer between the number provider's
// REST API and the domain. Wire DTOs and translators live in acl/provider;
// error mapping and classification live here.
package acl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/clients/acl/provider"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

var (
	errUnexpectedStatus = errors.New("unexpected status")
	errDecode           = errors.New("decoding provider response")
)

const maxErrorBody = 64 << 10

// statusErrors maps provider statuses to the domain sentinel they imply.
var statusErrors = map[int]error{
	http.StatusBadRequest:          domain.ErrValidation,
	http.StatusUnprocessableEntity: domain.ErrValidation,
	http.StatusUnauthorized:        domain.ErrForbidden,
	http.StatusForbidden:           domain.ErrForbidden,
	http.StatusNotFound:            domain.ErrNotFound,
	http.StatusGone:                domain.ErrNotFound,
	http.StatusConflict:            domain.ErrConflict,
	http.StatusPaymentRequired:     domain.ErrUnavailable,
	http.StatusRequestTimeout:      domain.ErrUnavailable,
	http.StatusTooManyRequests:     domain.ErrUnavailable,
}

// codeErrors overrides the status mapping for provider error codes.
// Running out of stock is final for this request; our provider account
// running dry is an outage every purchase will hit, so it must count
// against the breaker.
var codeErrors = map[string]error{
	provider.CodeNoNumbers:         domain.ErrConflict,
	provider.CodeInsufficientFunds: domain.ErrUnavailable,
	provider.CodeNumberReleased:    domain.ErrNotFound,
}

// TranslateHTTPError turns a non-2xx provider response into a domain
// error. Field errors on 400/422 become a *domain.ValidationError.
func TranslateHTTPError(resp *http.Response) error {
	body := readErrorBody(resp)

	detail := firstNonEmpty(body.Message, body.Detail, http.StatusText(resp.StatusCode))
	if body.Code != "" {
		detail = body.Code + ": " + detail
	}

	if sentinel, ok := codeErrors[body.Code]; ok {
		return fmt.Errorf("%s: %w", detail, sentinel)
	}

	sentinel, ok := statusErrors[resp.StatusCode]
	switch {
	case ok && errors.Is(sentinel, domain.ErrValidation) && len(body.Errors) > 0:
		return toValidationError(body.Errors)
	case ok:
		return fmt.Errorf("%s: %w", detail, sentinel)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w", detail, domain.ErrUnavailable)
	default:
		return fmt.Errorf("%w %d: %s", errUnexpectedStatus, resp.StatusCode, detail)
	}
}

// readErrorBody decodes a JSON or problem+json error body. Anything else
// yields an empty DTO.
func readErrorBody(resp *http.Response) provider.ErrorDTO {
	var dto provider.ErrorDTO
	if resp.Body == nil || !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return dto
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return dto
	}
	if err := json.Unmarshal(raw, &dto); err != nil {
		return provider.ErrorDTO{}
	}
	return dto
}

func toValidationError(details []provider.FieldErrorDTO) *domain.ValidationError {
	fields := make(map[string]string, len(details))
	for _, d := range details {
		fields[strings.TrimPrefix(d.Location, "body.")] = d.Message
	}
	return &domain.ValidationError{Fields: fields}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Classify wraps err as a provider error. Unavailability (5xx, 429, 402,
// network failures, per-call timeouts) is transient; anything else the
// provider answered with is permanent. Caller cancellation is returned
// unchanged so breakers and retries can ignore it.
func Classify(providerName, op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		transient *domain.TransientProviderError
		permanent *domain.PermanentProviderError
	)
	if errors.As(err, &transient) || errors.As(err, &permanent) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, domain.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) || !answered(err) {
		return &domain.TransientProviderError{Provider: providerName, Op: op, Err: err}
	}
	return &domain.PermanentProviderError{Provider: providerName, Op: op, Err: err}
}

// answered reports whether err came from a provider response rather than
// from the transport.
func answered(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrConflict) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, errUnexpectedStatus) ||
		errors.Is(err, errDecode)
}
