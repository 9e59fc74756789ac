package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/middleware"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
)

// maxJSONBodyBytes caps API request bodies. Webhooks have their own limit.
const maxJSONBodyBytes = 1 << 20

// validatable is implemented by request DTOs.
type validatable interface {
	Validate() error
}

// pathParam returns the trimmed chi URL parameter, or a validation error
// naming it when it is blank.
func pathParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(chi.URLParam(r, name))
	if v == "" {
		return "", invalidField(name, "is required")
	}
	return v, nil
}

// requireUserID returns the caller set by the UserID middleware. An empty
// caller means the route was mounted without it; the request gets a 403.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return id, true
	}
	dto.WriteErrorResponse(w, r, domain.ErrForbidden)
	return "", false
}

// decodeAndValidate reads exactly one JSON object into dst and validates
// it. Unknown fields and trailing data are rejected. On failure the error
// response is already written.
func decodeAndValidate[T validatable](w http.ResponseWriter, r *http.Request, dst T) bool {
	err := decodeJSON(w, r, dst)
	if err == nil {
		err = dst.Validate()
	}
	if err != nil {
		dto.WriteErrorResponse(w, r, err)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return invalidField("body", fmt.Sprintf("must be at most %d bytes", tooLarge.Limit))
		}
		return invalidField("body", "invalid JSON")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return invalidField("body", "must contain a single JSON object")
	}
	return nil
}

func invalidField(name, msg string) error {
	return &domain.ValidationError{Fields: map[string]string{name: msg}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}
