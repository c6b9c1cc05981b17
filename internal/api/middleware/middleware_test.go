package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mstetsenko/pouch/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth("sekret")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	h := Auth("")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSAnswersPreflight(t *testing.T) {
	h := CORS("https://app.local")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/accounts", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	h.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", seen)
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	h := Recovery(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteDomainErrorStatusMapping(t *testing.T) {
	cases := []struct {
		code domain.ErrorCode
		want int
	}{
		{domain.CodeInvalidAmount, http.StatusBadRequest},
		{domain.CodeUnknownGoal, http.StatusNotFound},
		{domain.CodeInsufficientBucketFunds, http.StatusUnprocessableEntity},
		{domain.CodeAccountFrozen, http.StatusUnprocessableEntity},
		{domain.CodeBillAlreadySettled, http.StatusConflict},
		{domain.CodeTransferFailed, http.StatusBadGateway},
		{domain.CodeLedgerCorruption, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, fmt.Errorf("op: %w", domain.E(tc.code, "nope")))
			assert.Equal(t, tc.want, rec.Code)
			assert.Contains(t, rec.Body.String(), string(tc.code))
			assert.Contains(t, rec.Body.String(), "nope")
		})
	}
}

func TestWriteDomainErrorOpaqueFallback(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, fmt.Errorf("database exploded at 10.0.0.7"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}
