package session

import (
	"context"
	"errors"

	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"go.uber.org/zap"
)

// ErrOperationInFlight reports an overlapping sign-in, sign-up, or
// sign-out trigger. Overlaps are suppressed, never merged.
var ErrOperationInFlight = errors.New("authentication operation already in flight")

// ErrConfirmationPending reports a successful sign-up that established
// no session because the provider wants the email confirmed first.
var ErrConfirmationPending = errors.New("confirmation pending, check your email")

// Manager runs the user-triggered authentication transitions against the
// provider and commits their outcome to the store.
type Manager struct {
	store    *authstate.Store
	provider provider.Provider
	guard    *Guard
}

// NewManager creates a Manager over the given store and provider. The
// Guard must be the same one the Synchronizer holds, so a sign-in and
// the start-up initialization can never run concurrently.
func NewManager(store *authstate.Store, p provider.Provider, guard *Guard) *Manager {
	return &Manager{store: store, provider: p, guard: guard}
}

// SignIn exchanges credentials for a session. Provider errors propagate
// to the caller for inline display; the store is left not loading.
func (m *Manager) SignIn(ctx context.Context, creds provider.Credentials) error {
	if !m.guard.tryAcquire() {
		return ErrOperationInFlight
	}
	defer m.guard.release()

	m.store.SetLoading(true)

	sess, err := m.provider.SignIn(ctx, creds)
	if err != nil {
		m.store.SetLoading(false)
		return err
	}

	m.store.ReplaceState(authstate.Authenticated(sess.User))
	return nil
}

// SignUp registers a new account. When the provider withholds the
// session pending email confirmation, the store stays logged out and
// ErrConfirmationPending tells the caller.
func (m *Manager) SignUp(ctx context.Context, creds provider.Credentials) error {
	if !m.guard.tryAcquire() {
		return ErrOperationInFlight
	}
	defer m.guard.release()

	m.store.SetLoading(true)

	result, err := m.provider.SignUp(ctx, creds)
	if err != nil {
		m.store.SetLoading(false)
		return err
	}

	if result.ConfirmationPending() {
		m.store.SetLoading(false)
		return ErrConfirmationPending
	}

	m.store.ReplaceState(authstate.Authenticated(result.Session.User))
	return nil
}

// SignOut revokes every session for the user and transitions the store
// to logged out no matter what the provider says: a user-visible
// "sign out failed" is worse than a store that disagrees with an
// already-best-effort-cleared remote session. Provider errors are logged
// and absorbed.
func (m *Manager) SignOut(ctx context.Context) {
	if !m.guard.tryAcquire() {
		return
	}
	defer m.guard.release()

	// LoggingOut first, so the UI suppresses the "please log in" flash
	// while the transition runs.
	snap := m.store.Snapshot()
	snap.LoggingOut = true
	m.store.ReplaceState(snap)

	if err := m.provider.SignOut(ctx, provider.ScopeGlobal); err != nil {
		logger.Warn("provider sign-out failed", zap.Error(err))
	}

	// Verification pass: the provider session should be gone. If it is
	// not, retry the revocation once. Session clearance stays
	// best-effort; one retry does not beat provider-side eventual
	// consistency.
	if m.provider.Session() != nil {
		logger.Warn("session still present after sign-out, retrying once")
		if err := m.provider.SignOut(ctx, provider.ScopeGlobal); err != nil {
			logger.Warn("sign-out retry failed", zap.Error(err))
		}
	}

	m.store.ReplaceState(authstate.LoggedOut())
}
