package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/triplog-app/triplog/client/session"
	"github.com/triplog-app/triplog/client/tokenstore"
)

// fakeAPI is an in-memory stand-in for the auth service: it mints opaque
// tokens on login, honors exactly one current token per session, and reports
// older issues as expired so the client's silent-refresh path can be driven
// from the outside.
type fakeAPI struct {
	mu      sync.Mutex
	logins  int
	logouts int
	current string
	expired map[string]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{expired: make(map[string]bool)}
}

// expireCurrent retires the active token, as the server would after its TTL.
func (a *fakeAPI) expireCurrent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != "" {
		a.expired[a.current] = true
		a.current = ""
	}
}

func (a *fakeAPI) loginCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}

func (a *fakeAPI) logoutCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logouts
}

func (a *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/social-login", func(w http.ResponseWriter, r *http.Request) {
		var req SocialLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Provider == "" || req.SocialID == "" {
			writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "bad_assertion"})
			return
		}

		a.mu.Lock()
		a.logins++
		a.current = fmt.Sprintf("tok-%d", a.logins)
		tok := a.current
		a.mu.Unlock()

		writeJSONStatus(w, http.StatusOK, map[string]interface{}{
			"message": "login successful",
			"token":   tok,
			"user":    User{ID: 7, Provider: "GOOGLE", Email: req.Email, Name: req.Name},
		})
	})

	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		a.mu.Lock()
		current, wasIssued := a.current, a.expired[tok]
		a.mu.Unlock()

		switch {
		case tok == current && tok != "":
			writeJSONStatus(w, http.StatusOK, map[string]interface{}{
				"user": User{ID: 7, Provider: "GOOGLE", Email: "a@example.com", Name: "Traveler"},
			})
		case wasIssued:
			writeJSONStatus(w, http.StatusUnauthorized, map[string]string{"error": "expired_credential"})
		default:
			writeJSONStatus(w, http.StatusForbidden, map[string]string{"error": "invalid_credential"})
		}
	})

	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.logouts++
		a.mu.Unlock()
		writeJSONStatus(w, http.StatusOK, map[string]string{"message": "logged out"})
	})

	return mux
}

func writeJSONStatus(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	store, err := tokenstore.Open(filepath.Join(t.TempDir(), "tokens.json"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return New(srv.URL, store, srv.Client()), api
}

func loginReq() SocialLoginRequest {
	return SocialLoginRequest{
		Provider: "GOOGLE",
		Token:    "provider-access-token",
		Email:    "a@example.com",
		SocialID: "12345",
		Name:     "Traveler",
	}
}

func TestSocialLoginAndMe(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	user, err := c.SocialLogin(ctx, loginReq())
	if err != nil {
		t.Fatalf("SocialLogin() error = %v", err)
	}
	if user.ID != 7 {
		t.Errorf("user ID = %d, want 7", user.ID)
	}
	if c.Sessions().State() != session.StateAuthenticated {
		t.Errorf("state = %v, want authenticated", c.Sessions().State())
	}

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if me.Email != "a@example.com" {
		t.Errorf("email = %q, want a@example.com", me.Email)
	}
	if api.loginCount() != 1 {
		t.Errorf("logins = %d, want 1", api.loginCount())
	}
}

// Expiring the server-side token mid-session must be invisible to the
// caller: Me re-authenticates by replaying the login and succeeds.
func TestMe_SilentRefresh(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	if _, err := c.SocialLogin(ctx, loginReq()); err != nil {
		t.Fatalf("SocialLogin() error = %v", err)
	}

	api.expireCurrent()

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() after expiry error = %v", err)
	}
	if me.ID != 7 {
		t.Errorf("user ID = %d, want 7", me.ID)
	}
	if api.loginCount() != 2 {
		t.Errorf("logins = %d, want 2 (original + replay)", api.loginCount())
	}
}

func TestMe_WithoutLogin(t *testing.T) {
	c, _ := newTestClient(t)

	if _, err := c.Me(context.Background()); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("Me() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestLogout(t *testing.T) {
	c, api := newTestClient(t)
	ctx := context.Background()

	if _, err := c.SocialLogin(ctx, loginReq()); err != nil {
		t.Fatalf("SocialLogin() error = %v", err)
	}

	c.Logout(ctx)

	if c.Sessions().State() != session.StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.Sessions().State())
	}
	if _, err := c.Me(ctx); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("Me() after logout error = %v, want ErrNotAuthenticated", err)
	}
	if api.logoutCount() != 1 {
		t.Errorf("server logouts = %d, want 1", api.logoutCount())
	}
}

func TestSocialLogin_Rejected(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.SocialLogin(context.Background(), SocialLoginRequest{Provider: "GOOGLE"})
	if !errors.Is(err, session.ErrSessionInvalid) {
		t.Errorf("SocialLogin() error = %v, want ErrSessionInvalid", err)
	}
	if c.Sessions().State() != session.StateUnauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.Sessions().State())
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, exp)))
	tok := "eyJhbGciOiJIUzI1NiJ9." + payload + ".sig"

	got := tokenExpiry(tok)
	if got.Unix() != exp {
		t.Errorf("tokenExpiry() = %v, want unix %d", got, exp)
	}

	if !tokenExpiry("tok-1").IsZero() {
		t.Error("opaque token produced a non-zero expiry")
	}
}
