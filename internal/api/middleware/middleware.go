// Package middleware carries the HTTP middleware chain and the JSON
// response helpers shared by every handler.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mstetsenko/pouch/internal/domain"
)

// Logger logs one line per request with timing and status.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap the response writer to capture the status code.
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("request_id", RequestIDFrom(r.Context())).
				Msg("http request")
		})
	}
}

// CORS answers preflight requests and stamps the allow headers.
// allowOrigins is the literal Access-Control-Allow-Origin value.
func CORS(allowOrigins string) func(http.Handler) http.Handler {
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Recovery turns a handler panic into a 500 instead of tearing the
// connection down.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID propagates the caller's X-Request-ID or mints one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom returns the request id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Auth enforces a static bearer token. An empty token disables the
// check, which is the single-user local mode.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || got != token {
				WriteError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

type contextKey string

const requestIDKey contextKey = "requestID"

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteDomainError maps a typed domain failure onto an HTTP status and
// writes its caller-safe message plus the machine-readable code.
// Non-domain errors become an opaque 500.
func WriteDomainError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	WriteJSON(w, statusForCode(de.Code), map[string]string{
		"error": de.Message,
		"code":  string(de.Code),
	})
}

func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidInput, domain.CodeInvalidAmount, domain.CodeCurrencyMismatch:
		return http.StatusBadRequest
	case domain.CodeUnknownAccount, domain.CodeUnknownBucket, domain.CodeUnknownGoal,
		domain.CodeUnknownLiability, domain.CodeUnknownBill:
		return http.StatusNotFound
	case domain.CodeInsufficientBucketFunds, domain.CodeInsufficientGoalFunds,
		domain.CodeAmbiguousSourceAccount, domain.CodeGoalNotLinked, domain.CodeGoalClosed,
		domain.CodeGoalNotEligible, domain.CodeGoalHasFunds, domain.CodeAccountInactive,
		domain.CodeAccountFrozen:
		return http.StatusUnprocessableEntity
	case domain.CodeBillAlreadySettled, domain.CodeBillImmutable:
		return http.StatusConflict
	case domain.CodeTransferFailed:
		return http.StatusBadGateway
	case domain.CodeLedgerCorruption:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
