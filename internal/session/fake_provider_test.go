package session

import (
	"context"
	"sync"

	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/provider"
)

// fakeProvider scripts provider behavior for synchronizer and
// orchestrator tests.
type fakeProvider struct {
	mu sync.Mutex

	session *provider.Session

	initSession *provider.Session
	initErr     error
	// initStarted/initRelease, when set, make Initialize signal entry
	// and block until released, for overlap tests.
	initStarted chan struct{}
	initRelease chan struct{}

	signInSession *provider.Session
	signInErr     error

	signUpResult *provider.SignUpResult
	signUpErr    error

	signOutErr error
	// stickySignOuts is how many SignOut calls leave the session in
	// place before it actually clears.
	stickySignOuts int
	signOutCalls   int

	events chan provider.Event
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{events: make(chan provider.Event, 8)}
}

func fakeSession(id, email, name string) *provider.Session {
	sess := &provider.Session{User: authstate.NewUser(id, email, name)}
	sess.AccessToken = "token-" + id
	return sess
}

func (f *fakeProvider) Initialize(ctx context.Context) (*provider.Session, error) {
	if f.initStarted != nil {
		close(f.initStarted)
	}
	if f.initRelease != nil {
		<-f.initRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.session = f.initSession
	return f.initSession, nil
}

func (f *fakeProvider) Session() *provider.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeProvider) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return ""
	}
	return f.session.AccessToken
}

func (f *fakeProvider) SignIn(ctx context.Context, creds provider.Credentials) (*provider.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.session = f.signInSession
	return f.signInSession, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, creds provider.Credentials) (*provider.SignUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if f.signUpResult != nil && f.signUpResult.Session != nil {
		f.session = f.signUpResult.Session
	}
	return f.signUpResult, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, scope provider.SignOutScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	if f.stickySignOuts > 0 {
		f.stickySignOuts--
	} else {
		f.session = nil
	}
	return f.signOutErr
}

func (f *fakeProvider) VerifyToken(ctx context.Context, token string) (*authstate.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session != nil && f.session.AccessToken == token {
		return f.session.User, nil
	}
	return nil, provider.ErrInvalidToken
}

func (f *fakeProvider) Events() <-chan provider.Event {
	return f.events
}

func (f *fakeProvider) Close() error {
	close(f.events)
	return nil
}
