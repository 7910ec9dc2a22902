package authstate

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser_NameDefaults(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		display  string
		wantName string
	}{
		{name: "explicit name wins", email: "ada@example.com", display: "Ada Lovelace", wantName: "Ada Lovelace"},
		{name: "local part of email", email: "ada@example.com", display: "", wantName: "ada"},
		{name: "email without at sign", email: "ada", display: "", wantName: "ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUser("user-1", tt.email, tt.display)
			assert.Equal(t, tt.wantName, u.Name)
			assert.Equal(t, tt.email, u.Email)
		})
	}
}

func TestStore_InitialState(t *testing.T) {
	store := NewStore()
	snap := store.Snapshot()

	assert.True(t, snap.Loading, "a fresh store is initializing")
	assert.False(t, snap.IsAuthenticated)
	assert.Nil(t, snap.User)
}

func TestStore_SetLoadingClearsError(t *testing.T) {
	store := NewStore()
	store.ReplaceState(Failed("boom"))
	require.Equal(t, "boom", store.Snapshot().Err)

	store.SetLoading(true)

	snap := store.Snapshot()
	assert.True(t, snap.Loading)
	assert.Empty(t, snap.Err, "entering loading clears the error in the same mutation")

	// Leaving loading does not clear a later error.
	store.ReplaceState(Failed("later"))
	store.SetLoading(false)
	assert.Equal(t, "later", store.Snapshot().Err)
}

func TestStore_ReplaceStateIsFullReplace(t *testing.T) {
	store := NewStore()
	user := NewUser("user-1", "ada@example.com", "")
	store.ReplaceState(Authenticated(user))

	want := AuthState{IsAuthenticated: true, User: user}
	if diff := cmp.Diff(want, store.Snapshot()); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	store.ReplaceState(LoggedOut())
	if diff := cmp.Diff(AuthState{}, store.Snapshot()); diff != "" {
		t.Errorf("logged-out snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_AuthenticatedImpliesUser(t *testing.T) {
	store := NewStore()
	user := NewUser("user-1", "ada@example.com", "")

	// Walk the reachable transitions and check the invariant after each.
	transitions := []func(){
		func() { store.SetLoading(true) },
		func() { store.ReplaceState(Authenticated(user)) },
		func() { store.ClearError() },
		func() { store.SetLoading(false) },
		func() { store.ReplaceState(LoggedOut()) },
		func() { store.ReplaceState(Failed("network down")) },
	}
	for _, transition := range transitions {
		transition()
		snap := store.Snapshot()
		if snap.IsAuthenticated {
			require.NotNil(t, snap.User, "isAuthenticated implies a non-nil user")
		}
	}
}

func TestStore_SubscribersObserveEverySnapshot(t *testing.T) {
	store := NewStore()

	var first, second []AuthState
	store.Subscribe(func(s AuthState) { first = append(first, s) })
	unsub := store.Subscribe(func(s AuthState) { second = append(second, s) })

	store.SetLoading(true)
	store.ReplaceState(Authenticated(NewUser("user-1", "ada@example.com", "")))

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.True(t, first[0].Loading)
	assert.True(t, first[1].IsAuthenticated)

	unsub()
	store.ReplaceState(LoggedOut())

	assert.Len(t, first, 3, "remaining subscriber still notified")
	assert.Len(t, second, 2, "unsubscribed callback no longer notified")
}
