package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/provider"
)

func TestManager_SignInSuccess(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "Ada")

	m := NewManager(store, fake, NewGuard())
	err := m.SignIn(context.Background(), provider.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	snap := store.Snapshot()
	assert.True(t, snap.IsAuthenticated)
	require.NotNil(t, snap.User)
	assert.Equal(t, "Ada", snap.User.Name)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Err)
}

func TestManager_SignInErrorPropagates(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInErr = &provider.AuthError{Code: "invalid_credentials", Message: "invalid email or password"}

	m := NewManager(store, fake, NewGuard())
	err := m.SignIn(context.Background(), provider.Credentials{Email: "ada@example.com", Password: "nope"})

	var authErr *provider.AuthError
	require.ErrorAs(t, err, &authErr, "provider message propagates for inline display")
	assert.Equal(t, "invalid_credentials", authErr.Code)

	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated)
	assert.False(t, snap.Loading, "a failed sign-in leaves the store not loading")
}

func TestManager_SignUpConfirmationPending(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signUpResult = &provider.SignUpResult{
		User: authstate.NewUser("user-2", "grace@example.com", ""),
	}

	m := NewManager(store, fake, NewGuard())
	err := m.SignUp(context.Background(), provider.Credentials{Email: "grace@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrConfirmationPending)

	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated, "no session means not authenticated yet")
	assert.False(t, snap.Loading)
}

func TestManager_SignUpWithSession(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	sess := fakeSession("user-2", "grace@example.com", "Grace")
	fake.signUpResult = &provider.SignUpResult{User: sess.User, Session: sess}

	m := NewManager(store, fake, NewGuard())
	require.NoError(t, m.SignUp(context.Background(), provider.Credentials{Email: "grace@example.com", Password: "pw"}))
	assert.True(t, store.Snapshot().IsAuthenticated)
}

// Scenario: the provider sign-out call errors, the store must still end
// fully logged out.
func TestManager_SignOutAbsorbsProviderError(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "")
	m := NewManager(store, fake, NewGuard())
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{}))

	fake.signOutErr = errors.New("network down")
	m.SignOut(context.Background())

	want := authstate.AuthState{}
	if diff := cmp.Diff(want, store.Snapshot()); diff != "" {
		t.Errorf("final state after failed sign-out (-want +got):\n%s", diff)
	}
}

func TestManager_SignOutSetsLoggingOutDuringTransition(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "")
	m := NewManager(store, fake, NewGuard())
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{}))

	var sawLoggingOut bool
	unsub := store.Subscribe(func(s authstate.AuthState) {
		if s.LoggingOut {
			sawLoggingOut = true
		}
	})
	defer unsub()

	m.SignOut(context.Background())

	assert.True(t, sawLoggingOut, "loggingOut is raised before the provider call")
	assert.False(t, store.Snapshot().LoggingOut, "loggingOut is transient on every exit path")
}

func TestManager_SignOutRetriesOnceWhenSessionPersists(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "")
	m := NewManager(store, fake, NewGuard())
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{}))

	// First revocation leaves the session behind; the verification pass
	// catches it and retries exactly once.
	fake.stickySignOuts = 1
	m.SignOut(context.Background())

	assert.Equal(t, 2, fake.signOutCalls)
	assert.False(t, store.Snapshot().IsAuthenticated)
}

func TestManager_SignOutDoesNotRetryForever(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "")
	m := NewManager(store, fake, NewGuard())
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{}))

	// Session never clears; clearance is best-effort, the store still
	// transitions to logged out after one retry.
	fake.stickySignOuts = 10
	m.SignOut(context.Background())

	assert.Equal(t, 2, fake.signOutCalls, "at most one retry")
	assert.False(t, store.Snapshot().IsAuthenticated)
}

func TestManager_OverlappingOperationsSuppressed(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.signInSession = fakeSession("user-1", "ada@example.com", "")
	guard := NewGuard()
	m := NewManager(store, fake, guard)

	guard.busy.Store(true)
	err := m.SignIn(context.Background(), provider.Credentials{})
	assert.ErrorIs(t, err, ErrOperationInFlight)

	err = m.SignUp(context.Background(), provider.Credentials{})
	assert.ErrorIs(t, err, ErrOperationInFlight)

	guard.busy.Store(false)
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{}))
}

// The initialization vs. sign-in race: the start-up lookup and the
// user-triggered operations share one guard, so a sign-in landing while
// the lookup is in flight is suppressed instead of being clobbered by
// the lookup's stale result.
func TestManager_SignInDuringInitializationSuppressed(t *testing.T) {
	store := authstate.NewStore()
	fake := newFakeProvider()
	fake.initStarted = make(chan struct{})
	fake.initRelease = make(chan struct{})
	fake.signInSession = fakeSession("user-1", "ada@example.com", "Ada")

	guard := NewGuard()
	sync := NewSynchronizer(store, fake, guard)
	m := NewManager(store, fake, guard)

	done := make(chan struct{})
	go func() {
		sync.Initialize(context.Background())
		close(done)
	}()
	<-fake.initStarted

	err := m.SignIn(context.Background(), provider.Credentials{Email: "ada@example.com", Password: "pw"})
	assert.ErrorIs(t, err, ErrOperationInFlight)

	close(fake.initRelease)
	<-done

	snap := store.Snapshot()
	assert.False(t, snap.IsAuthenticated, "the suppressed sign-in committed nothing")
	assert.False(t, snap.Loading)

	// With the lookup resolved the guard is free again.
	require.NoError(t, m.SignIn(context.Background(), provider.Credentials{Email: "ada@example.com", Password: "pw"}))
	assert.True(t, store.Snapshot().IsAuthenticated)
}
