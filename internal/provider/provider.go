// Package provider implements the remote auth provider client: session
// issuance, verification, and the typed session event stream consumed by
// the session synchronizer.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskforge/authsync/internal/authstate"
	"golang.org/x/oauth2"
)

// SignOutScope selects how broadly a sign-out applies.
type SignOutScope string

const (
	// ScopeGlobal revokes every session on every device.
	ScopeGlobal SignOutScope = "global"
	// ScopeLocal revokes only the current session.
	ScopeLocal SignOutScope = "local"
)

// ErrInvalidToken indicates a token the provider rejected (expired,
// revoked, or malformed).
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrNoSession indicates an operation that needs an established session
// was called without one.
var ErrNoSession = errors.New("no active session")

// AuthError carries the provider's own failure message for credential
// operations; it propagates to the calling UI for inline display.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth error (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("auth error: %s", e.Message)
}

// Credentials are what sign-in and sign-up present to the provider.
type Credentials struct {
	Email    string
	Password string
	Name     string
}

// Session is the provider-issued bearer credential plus the identity it
// proves. The AuthState store never holds this; callers re-fetch it from
// the provider at send time.
type Session struct {
	oauth2.Token
	User *authstate.User
}

// SignUpResult reports a sign-up outcome. Session is nil when the
// provider requires email confirmation before issuing one.
type SignUpResult struct {
	User    *authstate.User
	Session *Session
}

// ConfirmationPending reports whether the account exists but no session
// was established yet.
func (r *SignUpResult) ConfirmationPending() bool {
	return r.Session == nil
}

// Provider is the remote auth provider contract. All network methods are
// opaque calls with provider-defined error shapes; Session and
// AccessToken are local cache reads only.
type Provider interface {
	// Initialize performs the start-up session lookup, validating any
	// previously established session. A nil session with a nil error
	// means cleanly logged out.
	Initialize(ctx context.Context) (*Session, error)

	// Session returns the locally cached session without a network call.
	Session() *Session

	// AccessToken returns the current bearer token, or "" when there is
	// no session.
	AccessToken() string

	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, creds Credentials) (*SignUpResult, error)
	SignOut(ctx context.Context, scope SignOutScope) error

	// VerifyToken validates a raw bearer token with the provider and
	// returns the identity it belongs to. This is a network round trip:
	// a revoked session must fail here even if the token's signature is
	// still valid.
	VerifyToken(ctx context.Context, token string) (*authstate.User, error)

	// Events returns the provider's session event stream. The channel is
	// closed by Close.
	Events() <-chan Event

	Close() error
}
