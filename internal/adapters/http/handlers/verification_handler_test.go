package handlers_test

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/dto"
	"github.com/jsamuelsen11/numbers-core/internal/adapters/http/handlers"
	"github.com/jsamuelsen11/numbers-core/internal/domain"
	"github.com/jsamuelsen11/numbers-core/internal/domain/verification"
	"github.com/jsamuelsen11/numbers-core/internal/ports"
	"github.com/jsamuelsen11/numbers-core/mocks"
)

func newVerificationHandler(t *testing.T) (*handlers.VerificationHandler, *mocks.MockPurchaseService) {
	t.Helper()
	svc := mocks.NewMockPurchaseService(t)
	return handlers.NewVerificationHandler(svc), svc
}

func purchaseRequest(t *testing.T, key string, body any) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications", jsonBody(t, body))
	if key != "" {
		req.Header.Set(handlers.HeaderIdempotencyKey, key)
	}
	return withUser(req, testUserID)
}

// --- Purchase ---

func TestPurchase_Created(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	svc.EXPECT().Purchase(mock.Anything, ports.PurchaseRequest{
		UserID:         testUserID,
		IdempotencyKey: "key-1",
		Service:        "telegram",
		Country:        "us",
	}).Return(&ports.PurchaseResult{Verification: validVerification()}, nil)

	rec := httptest.NewRecorder()
	h.Purchase(rec, purchaseRequest(t, "key-1", dto.PurchaseRequest{Service: "Telegram", Country: "US"}))

	requireStatus(t, rec, http.StatusCreated)
	if got := rec.Header().Get(handlers.HeaderReplayed); got != "" {
		t.Errorf("%s = %q, want empty", handlers.HeaderReplayed, got)
	}
	resp := decodeJSON[dto.VerificationResponse](t, rec)
	if resp.ID != "v-1" || resp.Status != "polling" || resp.Cost != "2.50" {
		t.Errorf("response = %+v, want id v-1 polling 2.50", resp)
	}
}

func TestPurchase_Replayed(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	svc.EXPECT().Purchase(mock.Anything, mock.AnythingOfType("ports.PurchaseRequest")).
		Return(&ports.PurchaseResult{Verification: validVerification(), Replayed: true}, nil)

	rec := httptest.NewRecorder()
	h.Purchase(rec, purchaseRequest(t, "key-1", dto.PurchaseRequest{Service: "telegram", Country: "us"}))

	requireStatus(t, rec, http.StatusOK)
	if got := rec.Header().Get(handlers.HeaderReplayed); got != "true" {
		t.Errorf("%s = %q, want %q", handlers.HeaderReplayed, got, "true")
	}
}

func TestPurchase_RequestErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		body any
	}{
		{name: "missing idempotency key", key: "", body: dto.PurchaseRequest{Service: "telegram", Country: "us"}},
		{name: "idempotency key too long", key: strings.Repeat("k", 256), body: dto.PurchaseRequest{Service: "telegram", Country: "us"}},
		{name: "missing service", key: "key-1", body: dto.PurchaseRequest{Country: "us"}},
		{name: "invalid JSON", key: "key-1", body: "not an object"},
		{name: "unknown field", key: "key-1", body: map[string]string{"service": "telegram", "country": "us", "operator": "any"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, _ := newVerificationHandler(t)

			rec := httptest.NewRecorder()
			h.Purchase(rec, purchaseRequest(t, tt.key, tt.body))

			requireStatus(t, rec, http.StatusBadRequest)
		})
	}
}

func TestPurchase_ServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"insufficient balance", &domain.InsufficientBalanceError{UserID: testUserID, Available: 100, Required: 250}, http.StatusPaymentRequired},
		{"idempotency conflict", &domain.IdempotencyConflictError{Key: "key-1"}, http.StatusUnprocessableEntity},
		{"in progress", domain.ErrInProgress, http.StatusConflict},
		{"circuit open", &domain.CircuitOpenError{Provider: "primary", RetryAt: time.Now().Add(10 * time.Second)}, http.StatusServiceUnavailable},
		{"provider failure", &domain.PermanentProviderError{Provider: "primary", Op: "request", Err: errors.New("no numbers")}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h, svc := newVerificationHandler(t)
			svc.EXPECT().Purchase(mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := httptest.NewRecorder()
			h.Purchase(rec, purchaseRequest(t, "key-1", dto.PurchaseRequest{Service: "telegram", Country: "us"}))

			requireStatus(t, rec, tt.wantStatus)
		})
	}
}

func TestPurchase_NoUser(t *testing.T) {
	t.Parallel()
	h, _ := newVerificationHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications",
		bytes.NewBufferString(`{"service":"telegram","country":"us"}`))
	req.Header.Set(handlers.HeaderIdempotencyKey, "key-1")

	rec := httptest.NewRecorder()
	h.Purchase(rec, req)

	requireStatus(t, rec, http.StatusForbidden)
}

// --- Get ---

func TestGetVerification_Success(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	v := validVerification()
	svc.EXPECT().Get(mock.Anything, testUserID, "v-1").Return(&v, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/v-1", nil)
	req = withChiParams(withUser(req, testUserID), map[string]string{"id": "v-1"})

	rec := httptest.NewRecorder()
	h.Get(rec, req)

	requireStatus(t, rec, http.StatusOK)
	resp := decodeJSON[dto.VerificationResponse](t, rec)
	if resp.PhoneNumber != "+15550001" {
		t.Errorf("PhoneNumber = %q, want %q", resp.PhoneNumber, "+15550001")
	}
}

func TestGetVerification_NotFound(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	svc.EXPECT().Get(mock.Anything, testUserID, "v-9").Return(nil, domain.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/v-9", nil)
	req = withChiParams(withUser(req, testUserID), map[string]string{"id": "v-9"})

	rec := httptest.NewRecorder()
	h.Get(rec, req)

	requireStatus(t, rec, http.StatusNotFound)
}

func TestGetVerification_MissingID(t *testing.T) {
	t.Parallel()
	h, _ := newVerificationHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/", nil)
	req = withChiParams(withUser(req, testUserID), map[string]string{"id": " "})

	rec := httptest.NewRecorder()
	h.Get(rec, req)

	requireStatus(t, rec, http.StatusBadRequest)
}

// --- Cancel ---

func TestCancelVerification_Success(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	v := validVerification()
	v.Status = verification.StatusRefunded
	v.ChargeTransactionID = "tx-1"
	v.RefundTransactionID = "tx-2"
	svc.EXPECT().Cancel(mock.Anything, testUserID, "v-1").Return(&v, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications/v-1/cancel", nil)
	req = withChiParams(withUser(req, testUserID), map[string]string{"id": "v-1"})

	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	requireStatus(t, rec, http.StatusOK)
	resp := decodeJSON[dto.VerificationResponse](t, rec)
	if resp.Status != "refunded" || !resp.Refunded {
		t.Errorf("response = %+v, want refunded", resp)
	}
}

func TestCancelVerification_Completed(t *testing.T) {
	t.Parallel()
	h, svc := newVerificationHandler(t)

	svc.EXPECT().Cancel(mock.Anything, testUserID, "v-1").Return(nil, domain.ErrConflict)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verifications/v-1/cancel", nil)
	req = withChiParams(withUser(req, testUserID), map[string]string{"id": "v-1"})

	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	requireStatus(t, rec, http.StatusConflict)
}
