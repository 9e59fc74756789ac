package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/middleware"
)

func TestTimeout_HandlerFinishesInTime(t *testing.T) {
	t.Parallel()

	h := middleware.Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Deadline(); !ok {
			t.Error("handler context has no deadline")
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"v-1"}`))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/verifications", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, `{"id":"v-1"}`, rec.Body.String())
}

func TestTimeout_ImplicitOK(t *testing.T) {
	t.Parallel()

	h := middleware.Timeout(time.Second)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeout_SlowHandlerGets504(t *testing.T) {
	t.Parallel()

	writeErr := make(chan error, 1)
	h := middleware.Timeout(20*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		// Give the middleware time to abandon the buffer.
		time.Sleep(20 * time.Millisecond)
		_, err := w.Write([]byte(`{"id":"late"}`))
		writeErr <- err
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/verifications", http.NoBody))

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body["detail"], "Idempotency-Key")
	assert.NotContains(t, rec.Body.String(), "late")

	select {
	case err := <-writeErr:
		assert.ErrorIs(t, err, http.ErrHandlerTimeout)
	case <-time.After(time.Second):
		t.Fatal("handler never returned")
	}
}

func TestTimeout_DeadlineReachesHandler(t *testing.T) {
	t.Parallel()

	got := make(chan error, 1)
	h := middleware.Timeout(10*time.Millisecond)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		got <- r.Context().Err()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/balance", http.NoBody))

	select {
	case err := <-got:
		assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
	case <-time.After(time.Second):
		t.Fatal("handler context never cancelled")
	}
}
