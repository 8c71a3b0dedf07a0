// Package client is the mobile client's API surface: a typed client over the
// REST service whose authenticated calls run through the session
// coordinator.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/triplog-app/triplog/client/session"
	"github.com/triplog-app/triplog/client/tokenstore"
)

// SocialLoginRequest mirrors the POST /api/auth/social-login body.
type SocialLoginRequest struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
	Email    string `json:"email"`
	SocialID string `json:"socialId"`
	Name     string `json:"name"`
}

// User is the client-side view of an account.
type User struct {
	ID       int64  `json:"id"`
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Client talks to the triplog API. Authenticated calls go through the
// session coordinator, which handles token attachment, silent refresh and
// forced logout.
type Client struct {
	baseURL  string
	http     *http.Client
	store    *tokenstore.Store
	sessions *session.Coordinator

	mu        sync.Mutex
	lastLogin *SocialLoginRequest
}

// New builds a Client. Re-authentication replays the most recent social
// login, so a session can only be silently refreshed while the provider
// credentials from that login still stand.
func New(baseURL string, store *tokenstore.Store, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		store:   store,
	}
	c.sessions = session.New(session.Config{
		Store:          store,
		HTTPClient:     httpClient,
		Reauthenticate: c.reauthenticate,
	})
	return c
}

// Sessions exposes the coordinator, e.g. for the deep-link router.
func (c *Client) Sessions() *session.Coordinator {
	return c.sessions
}

// SocialLogin exchanges a provider identity for a session.
func (c *Client) SocialLogin(ctx context.Context, req SocialLoginRequest) (*User, error) {
	tok, user, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastLogin = &req
	c.mu.Unlock()

	c.sessions.Install(tok)
	return user, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.sessions.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.baseURL+"/api/auth/me", nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("me failed with status %d", resp.StatusCode)
	}

	var body struct {
		User User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse me response: %v", err)
	}
	return &body.User, nil
}

// Logout drops the local session immediately, then tells the server
// best-effort. A network failure cannot resurrect the session.
func (c *Client) Logout(ctx context.Context) {
	tok, _ := c.store.Read()

	c.mu.Lock()
	c.lastLogin = nil
	c.mu.Unlock()

	c.sessions.Logout()

	if tok.IsZero() {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/logout", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}
}

// reauthenticate is the coordinator's refresh operation: it replays the last
// social-login exchange.
func (c *Client) reauthenticate(ctx context.Context) (tokenstore.Token, error) {
	c.mu.Lock()
	req := c.lastLogin
	c.mu.Unlock()

	if req == nil {
		return tokenstore.Token{}, session.ErrSessionInvalid
	}

	tok, _, err := c.exchange(ctx, *req)
	if err != nil {
		return tokenstore.Token{}, err
	}
	return tok, nil
}

func (c *Client) exchange(ctx context.Context, req SocialLoginRequest) (tokenstore.Token, *User, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return tokenstore.Token{}, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/social-login", bytes.NewReader(payload))
	if err != nil {
		return tokenstore.Token{}, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return tokenstore.Token{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		// The server refused the identity itself; this is not retryable.
		return tokenstore.Token{}, nil, fmt.Errorf("%w: login rejected with status %d", session.ErrSessionInvalid, resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
		User  User   `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return tokenstore.Token{}, nil, fmt.Errorf("failed to parse login response: %v", err)
	}
	if body.Token == "" {
		return tokenstore.Token{}, nil, fmt.Errorf("empty token in login response")
	}

	return tokenstore.Token{
		Value:     body.Token,
		ExpiresAt: tokenExpiry(body.Token),
	}, &body.User, nil
}

// tokenExpiry extracts the exp claim from a JWT without verifying it. The
// value is advisory metadata only; the server remains the authority on
// expiry.
func tokenExpiry(tok string) time.Time {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return time.Time{}
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return time.Time{}
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(claims.Exp, 0)
}
