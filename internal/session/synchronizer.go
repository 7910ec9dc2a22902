// Package session keeps the AuthState store consistent with the remote
// auth provider: the Synchronizer handles start-up and provider events,
// the Manager handles user-triggered sign-in, sign-up, and sign-out.
package session

import (
	"context"
	"sync/atomic"

	"github.com/taskforge/authsync/internal/authstate"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"go.uber.org/zap"
)

// Phase tells the event path whether the initial lookup is in flight.
// An event that arrives while it is gets dropped: the lookup performs an
// equivalent fresh read and its result supersedes the event.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseInitializing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitializing:
		return "initializing"
	}
	return "unknown"
}

// Synchronizer reconciles the Store with the provider's session on
// start-up and on every provider-emitted session event.
type Synchronizer struct {
	store    *authstate.Store
	provider provider.Provider
	guard    *Guard
	phase    atomic.Int32
}

// NewSynchronizer creates a Synchronizer over the given store and
// provider. The Guard must be the same one the Manager holds.
func NewSynchronizer(store *authstate.Store, p provider.Provider, guard *Guard) *Synchronizer {
	return &Synchronizer{store: store, provider: p, guard: guard}
}

// Phase returns the current phase.
func (s *Synchronizer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Initialize performs the one start-up session lookup. Whatever happens,
// the store is left with Loading false: a network failure resolves to
// logged out with the error recorded, never to an indefinite spinner.
// The shared guard is held for the whole lookup, so a sign-in triggered
// mid-initialization is suppressed instead of racing the lookup result.
func (s *Synchronizer) Initialize(ctx context.Context) {
	if !s.guard.tryAcquire() {
		logger.Debug("another authentication operation is in flight, skipping initialization")
		return
	}
	defer s.guard.release()

	s.phase.Store(int32(PhaseInitializing))
	defer s.phase.Store(int32(PhaseIdle))

	s.store.SetLoading(true)

	sess, err := s.provider.Initialize(ctx)
	switch {
	case err != nil:
		logger.Warn("initial session lookup failed", zap.Error(err))
		s.store.ReplaceState(authstate.Failed(err.Error()))
	case sess == nil || sess.User == nil:
		s.store.ReplaceState(authstate.LoggedOut())
	default:
		s.store.ReplaceState(authstate.Authenticated(sess.User))
	}
}

// Run consumes provider session events until the context is canceled or
// the event stream closes. It is meant to run for the lifetime of the
// application.
func (s *Synchronizer) Run(ctx context.Context) {
	events := s.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ev)
		}
	}
}

func (s *Synchronizer) apply(ev provider.Event) {
	if s.Phase() == PhaseInitializing {
		logger.Debug("dropping session event during initialization",
			zap.String("event", string(ev.Type)),
		)
		return
	}

	switch ev.Type {
	case provider.EventSignedOut:
		s.store.ReplaceState(authstate.LoggedOut())
	case provider.EventSignedIn, provider.EventTokenRefreshed, provider.EventUserUpdated:
		if ev.Session == nil || ev.Session.User == nil {
			logger.Warn("session event carried no user, ignoring",
				zap.String("event", string(ev.Type)),
			)
			return
		}
		s.store.ReplaceState(authstate.Authenticated(ev.Session.User))
	default:
		logger.Debug("unhandled session event", zap.String("event", string(ev.Type)))
	}
}
