package rpc

import (
	"net/http"

	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/logger"
)

// TokenSource yields the current bearer token from the provider's local
// session cache. The store never holds the raw token, so every call
// re-fetches it here at send time.
type TokenSource interface {
	AccessToken() string
}

// authDecision is the per-call outcome of reading the store snapshot.
// The order matters: the definitive logged-out branch wins the moment
// Loading is false, so a lingering provider session can never leak a
// credential after an explicit sign-out.
type authDecision int

const (
	decisionLoggedOut authDecision = iota
	decisionAuthenticated
	decisionInitializing
)

func decideAuth(snap authstate.AuthState) authDecision {
	switch {
	case snap.IsAuthenticated:
		return decisionAuthenticated
	case snap.Loading:
		return decisionInitializing
	default:
		return decisionLoggedOut
	}
}

// AuthInterceptor decides, per outgoing call, what authorization header
// to attach.
type AuthInterceptor struct {
	store  *authstate.Store
	tokens TokenSource
}

// NewAuthInterceptor creates an AuthInterceptor over the store and the
// provider's token cache.
func NewAuthInterceptor(store *authstate.Store, tokens TokenSource) *AuthInterceptor {
	return &AuthInterceptor{store: store, tokens: tokens}
}

// ApplyAuth attaches the Authorization header the current state calls
// for, or nothing at all.
func (a *AuthInterceptor) ApplyAuth(req *http.Request) {
	switch decideAuth(a.store.Snapshot()) {
	case decisionAuthenticated:
		token := a.tokens.AccessToken()
		if token == "" {
			// Store says authenticated but the provider has no token.
			// Non-fatal: the request goes out unauthenticated and the
			// server-side guard has the final word.
			logger.Warn("auth state mismatch: store authenticated but provider has no token")
			return
		}
		req.Header.Set("Authorization", "Bearer "+token)

	case decisionInitializing:
		// The store has not resolved yet (e.g. right after an OAuth
		// redirect callback); ask the provider directly.
		if token := a.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

	case decisionLoggedOut:
		// Definitively logged out: attach nothing, even if the provider
		// still has a lingering session.
	}
}
