package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/triplog-app/triplog/internal/domain"
	"github.com/triplog-app/triplog/internal/metrics"
	"github.com/triplog-app/triplog/internal/service/auth"
	"github.com/triplog-app/triplog/internal/transport/http/middleware"
)

// AuthService is the surface the handlers need from the auth service.
type AuthService interface {
	Exchange(ctx context.Context, a domain.IdentityAssertion) (string, *domain.User, error)
	Profile(ctx context.Context, userID int64) (*domain.User, error)
	Invalidate(ctx context.Context, userID int64) error
}

type AuthHandler struct {
	Service  AuthService
	Verifier auth.AssertionVerifier // optional; nil trusts the assertion as pre-verified
	Metrics  *metrics.Collector
}

func NewAuthHandler(service AuthService, verifier auth.AssertionVerifier, collector *metrics.Collector) *AuthHandler {
	return &AuthHandler{
		Service:  service,
		Verifier: verifier,
		Metrics:  collector,
	}
}

// SocialLogin handles POST /api/auth/social-login. It accepts a provider
// identity assertion, establishes (or resumes) the account behind it, and
// returns a fresh session token.
func (h *AuthHandler) SocialLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Provider string `json:"provider"`
		Token    string `json:"token"`
		Email    string `json:"email"`
		SocialID string `json:"socialId"`
		Name     string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Metrics.RecordExchange("bad_assertion")
		writeError(w, http.StatusBadRequest, "bad_assertion")
		return
	}

	assertion := domain.IdentityAssertion{
		Provider: domain.Provider(strings.ToUpper(strings.TrimSpace(req.Provider))),
		SocialID: strings.TrimSpace(req.SocialID),
		Email:    strings.TrimSpace(req.Email),
		Name:     strings.TrimSpace(req.Name),
	}

	if h.Verifier != nil {
		verified, err := h.Verifier.Verify(r.Context(), assertion, req.Token)
		if err != nil {
			log.Printf("[AUTH] Assertion verification failed for provider %s: %v", assertion.Provider, err)
			h.Metrics.RecordExchange("bad_assertion")
			writeError(w, http.StatusBadRequest, "bad_assertion")
			return
		}
		assertion = verified
	}

	tok, user, err := h.Service.Exchange(r.Context(), assertion)
	if err != nil {
		if errors.Is(err, auth.ErrBadAssertion) {
			h.Metrics.RecordExchange("bad_assertion")
			writeError(w, http.StatusBadRequest, "bad_assertion")
			return
		}
		log.Printf("[AUTH] Exchange failed: %v", err)
		h.Metrics.RecordExchange("error")
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.Metrics.RecordExchange("ok")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "login successful",
		"token":   tok,
		"user":    user.Response(),
	})
}

// Me handles GET /api/auth/me for bearer-authenticated callers.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeMissingCredential)
		return
	}

	user, err := h.Service.Profile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		log.Printf("[AUTH] /me failed for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": user.Response(),
	})
}

// Logout handles POST /api/auth/logout. Best-effort: stateless tokens cannot
// be revoked server-side, so this clears server caches and always succeeds
// for an authenticated caller.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, middleware.CodeMissingCredential)
		return
	}

	if err := h.Service.Invalidate(r.Context(), userID); err != nil {
		log.Printf("[AUTH] Logout cleanup failed for user %d: %v", userID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "logged out",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
