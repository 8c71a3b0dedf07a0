// Package deeplink routes externally delivered URIs into the app, gated on
// session establishment.
package deeplink

import (
	"context"
	"net/url"
)

const (
	defaultScheme = "triplog"
	kakaoLinkHost = "kakaolink"
	postIDParam   = "postId"
)

// Action is the routing outcome for a URI.
type Action int

const (
	// ActionIgnored means the URI is not ours; a no-op, not an error.
	ActionIgnored Action = iota
	// ActionOpen means the target post should be opened.
	ActionOpen
	// ActionDropped means the intent was recognized but abandoned because no
	// session is available.
	ActionDropped
)

// Decision is the result of handling a deep link.
type Decision struct {
	Action Action
	PostID string
}

// SessionGate is the coordinator surface the router depends on.
type SessionGate interface {
	// WaitAuthenticated returns nil once a session is available, waiting at
	// most for one in-flight refresh; it never triggers authentication.
	WaitAuthenticated(ctx context.Context) error
}

// Router resolves deep-link URIs against the session state. A recognized
// link never acts before the session is confirmed: if a refresh is in
// flight the router waits once for its outcome, otherwise an unauthenticated
// intent is dropped. No background auth happens just to satisfy a link.
type Router struct {
	sessions SessionGate
	scheme   string
}

func NewRouter(sessions SessionGate) *Router {
	return &Router{sessions: sessions, scheme: defaultScheme}
}

// Handle parses rawURI and decides what to do with it.
func (r *Router) Handle(ctx context.Context, rawURI string) Decision {
	u, err := url.Parse(rawURI)
	if err != nil {
		return Decision{Action: ActionIgnored}
	}
	if u.Scheme != r.scheme || u.Host != kakaoLinkHost {
		return Decision{Action: ActionIgnored}
	}

	postID := u.Query().Get(postIDParam)
	if postID == "" {
		return Decision{Action: ActionIgnored}
	}

	if err := r.sessions.WaitAuthenticated(ctx); err != nil {
		return Decision{Action: ActionDropped, PostID: postID}
	}

	return Decision{Action: ActionOpen, PostID: postID}
}
