package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/triplog-app/triplog/internal/metrics"
	"github.com/triplog-app/triplog/pkg/token"
)

// Wire error codes. The client coordinator keys its retry policy off these,
// so the 401-expired / 403-invalid split must not be conflated: expired is
// the only failure the client may silently recover from by refreshing.
const (
	CodeMissingCredential = "missing_credential"
	CodeExpiredCredential = "expired_credential"
	CodeInvalidCredential = "invalid_credential"
)

// contextKey is a type-safe key for request context values.
type contextKey string

var userIDContextKey = contextKey("user_id")

// TokenVerifier is the subset of pkg/token.Signer the gate needs.
type TokenVerifier interface {
	Verify(tokenString string) (int64, error)
}

// Auth returns the bearer-token verification gate. On success the resolved
// userID is attached to the request context; otherwise the request is
// rejected with a classified error and the handler never runs.
func Auth(verifier TokenVerifier, collector *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := bearerToken(r)
			if !ok {
				collector.RecordVerify(metrics.VerifyMissing)
				writeAuthError(w, http.StatusUnauthorized, CodeMissingCredential)
				return
			}

			userID, err := verifier.Verify(bearer)
			if err != nil {
				if errors.Is(err, token.ErrExpired) {
					collector.RecordVerify(metrics.VerifyExpired)
					writeAuthError(w, http.StatusUnauthorized, CodeExpiredCredential)
					return
				}
				// Everything else, including unexpected verification
				// failures, is treated as an untrustworthy credential.
				collector.RecordVerify(metrics.VerifyInvalid)
				writeAuthError(w, http.StatusForbidden, CodeInvalidCredential)
				return
			}

			collector.RecordVerify(metrics.VerifyOK)
			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeAuthError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// UserIDFromContext returns the authenticated userID set by Auth.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

// ContextWithUserID injects a userID, for handler tests.
func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
