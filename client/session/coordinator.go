// Package session coordinates the client's session-token lifecycle around
// outbound API calls.
//
// The coordinator absorbs expired-credential failures: callers that hit one
// suspend on a single shared re-authentication (never more than one in
// flight per token generation) and are replayed once with the new token.
// Invalid credentials are terminal and force a logout. All coordination
// reduces to the token store's generation CAS plus a single-flight guard on
// the refresh itself; token reads for attaching to outbound calls are
// wait-free.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/triplog-app/triplog/client/tokenstore"
)

// State is the coordinator's session state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	}
	return "unauthenticated"
}

var (
	// ErrNotAuthenticated means no session exists to attach to the call.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionInvalid means the server rejected the credential as
	// untrustworthy; the session was torn down and must not be retried.
	ErrSessionInvalid = errors.New("session invalid, sign in again")
	// ErrRefreshFailed means re-authentication could not complete (network
	// error or timeout); the session was torn down.
	ErrRefreshFailed = errors.New("session refresh failed")
)

const defaultRefreshTimeout = 10 * time.Second

// Doer is the transport the coordinator sends requests through.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Config wires a Coordinator. Store and Reauthenticate are required.
type Config struct {
	Store *tokenstore.Store

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient Doer

	// Reauthenticate establishes a fresh session token, typically by
	// replaying the social-login exchange. It must return ErrSessionInvalid
	// (wrapped or bare) when the server refuses the identity outright.
	Reauthenticate func(ctx context.Context) (tokenstore.Token, error)

	// RefreshTimeout bounds a single refresh attempt.
	RefreshTimeout time.Duration
}

// Coordinator wraps outbound calls with token attachment and the
// single-flight refresh policy.
type Coordinator struct {
	store          *tokenstore.Store
	http           Doer
	reauth         func(ctx context.Context) (tokenstore.Token, error)
	refreshTimeout time.Duration

	group singleflight.Group

	mu          sync.Mutex
	state       State
	refreshDone chan struct{} // non-nil while a refresh is in flight
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:          cfg.Store,
		http:           cfg.HTTPClient,
		reauth:         cfg.Reauthenticate,
		refreshTimeout: cfg.RefreshTimeout,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.refreshTimeout <= 0 {
		c.refreshTimeout = defaultRefreshTimeout
	}

	if tok, _ := c.store.Read(); !tok.IsZero() {
		c.state = StateAuthenticated
	}
	return c
}

// State returns the current session state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitAuthenticated returns nil once a valid session is available. If a
// refresh is in flight it waits once for that single outcome; it never
// starts one. Without a session it fails immediately with
// ErrNotAuthenticated.
func (c *Coordinator) WaitAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	st, done := c.state, c.refreshDone
	c.mu.Unlock()

	switch st {
	case StateAuthenticated:
		return nil
	case StateUnauthenticated:
		return ErrNotAuthenticated
	}

	if done == nil {
		return ErrNotAuthenticated
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	if c.State() == StateAuthenticated {
		return nil
	}
	return ErrNotAuthenticated
}

// Do sends an authenticated request. newReq must build a fresh request each
// time it is called; the coordinator attaches the bearer token and, after a
// successful refresh, calls it again for the single replay.
func (c *Coordinator) Do(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	tok, gen := c.store.Read()
	if tok.IsZero() {
		return nil, ErrNotAuthenticated
	}

	resp, err := c.send(ctx, newReq, tok.Value)
	if err != nil {
		return nil, err
	}

	switch classify(resp) {
	case outcomeInvalid:
		resp.Body.Close()
		c.invalidate()
		return nil, ErrSessionInvalid

	case outcomeExpired:
		resp.Body.Close()
		newTok, err := c.refresh(ctx, gen)
		if err != nil {
			return nil, err
		}

		// Replay exactly once with the refreshed token. A second expiry is
		// surfaced to the caller as-is.
		resp, err = c.send(ctx, newReq, newTok.Value)
		if err != nil {
			return nil, err
		}
		if classify(resp) == outcomeInvalid {
			resp.Body.Close()
			c.invalidate()
			return nil, ErrSessionInvalid
		}
		return resp, nil
	}

	return resp, nil
}

// Install makes tok the current session after a successful login.
func (c *Coordinator) Install(tok tokenstore.Token) {
	for {
		if _, gen := c.store.Read(); c.store.Write(tok, gen) {
			break
		}
	}
	c.mu.Lock()
	c.state = StateAuthenticated
	c.mu.Unlock()
}

// Logout tears down the logical session immediately. It does not cancel an
// in-flight refresh; clearing the store advances the generation, so such a
// refresh is guaranteed to lose its CAS and be discarded.
func (c *Coordinator) Logout() {
	c.store.Clear()
	c.mu.Lock()
	c.state = StateUnauthenticated
	c.mu.Unlock()
}

func (c *Coordinator) send(ctx context.Context, newReq func() (*http.Request, error), tok string) (*http.Response, error) {
	req, err := newReq()
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tok)
	return c.http.Do(req)
}

// refresh joins the single in-flight refresh for gen, starting it if absent.
// DoChan lets a caller abandon the wait on ctx without cancelling the shared
// refresh other callers are suspended on.
func (c *Coordinator) refresh(ctx context.Context, gen uint64) (tokenstore.Token, error) {
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.doRefresh(gen)
	})

	select {
	case <-ctx.Done():
		return tokenstore.Token{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return tokenstore.Token{}, res.Err
		}
		return res.Val.(tokenstore.Token), nil
	}
}

// doRefresh is the body of the single flight. Exactly one runs per observed
// generation; every suspended caller sees its one outcome.
func (c *Coordinator) doRefresh(gen uint64) (interface{}, error) {
	// The store may have advanced between the caller observing the expiry
	// and this flight starting: a faster refresh or a login already
	// installed a newer token, or a logout emptied the store.
	cur, curGen := c.store.Read()
	if curGen != gen {
		if cur.IsZero() {
			return nil, ErrSessionInvalid
		}
		return cur, nil
	}

	c.enterRefreshing()

	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()

	newTok, err := c.reauth(ctx)
	if err != nil {
		c.store.Clear()
		c.leaveRefreshing(StateUnauthenticated)
		if errors.Is(err, ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	if !c.store.Write(newTok, gen) {
		// Lost the CAS: a logout or a newer write intervened while we were
		// on the network. Discard our token rather than reinstate it.
		cur, _ := c.store.Read()
		if cur.IsZero() {
			c.leaveRefreshing(StateUnauthenticated)
			return nil, ErrSessionInvalid
		}
		c.leaveRefreshing(StateAuthenticated)
		return cur, nil
	}

	c.leaveRefreshing(StateAuthenticated)
	return newTok, nil
}

func (c *Coordinator) enterRefreshing() {
	c.mu.Lock()
	c.state = StateRefreshing
	c.refreshDone = make(chan struct{})
	c.mu.Unlock()
}

func (c *Coordinator) leaveRefreshing(st State) {
	// Never report Authenticated against an empty store; a logout may have
	// raced the tail of the refresh.
	if st == StateAuthenticated {
		if tok, _ := c.store.Read(); tok.IsZero() {
			st = StateUnauthenticated
		}
	}

	c.mu.Lock()
	c.state = st
	if c.refreshDone != nil {
		close(c.refreshDone)
		c.refreshDone = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) invalidate() {
	c.store.Clear()
	c.mu.Lock()
	c.state = StateUnauthenticated
	c.mu.Unlock()
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeExpired
	outcomeInvalid
)

// classify maps a response onto the credential-failure taxonomy. For 401s it
// peeks at the JSON error code and restores the body, so responses that are
// not the coordinator's business pass through intact.
func classify(resp *http.Response) outcome {
	if resp.StatusCode == http.StatusForbidden {
		return outcomeInvalid
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return outcomeOK
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error == "expired_credential" {
		return outcomeExpired
	}
	// 401 without the expired marker (e.g. missing credential) is not
	// silently recoverable; hand it to the caller.
	return outcomeOK
}
