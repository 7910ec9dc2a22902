package authstate

import "sync"

// Subscriber receives every state snapshot after it is committed.
type Subscriber func(AuthState)

// Store is the single in-process holder of AuthState. Each operation is
// one synchronous write under the lock; callers doing async work must
// finish the network step before calling a mutation, never hold one open
// across an await. Subscribers observe complete snapshots only.
type Store struct {
	mu    sync.Mutex
	state AuthState

	subMu  sync.Mutex
	subs   map[int]Subscriber
	nextID int
}

// NewStore creates a Store in the initializing state: not authenticated,
// loading until the session synchronizer resolves the first lookup.
func NewStore() *Store {
	return &Store{
		state: AuthState{Loading: true},
		subs:  make(map[int]Subscriber),
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLoading toggles the loading flag. Entering loading clears any stale
// error in the same mutation so a fresh attempt never shows an old one.
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	s.state.Loading = loading
	if loading {
		s.state.Err = ""
	}
	next := s.state
	s.mu.Unlock()
	s.notify(next)
}

// ReplaceState swaps in a complete new snapshot.
func (s *Store) ReplaceState(next AuthState) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	s.notify(next)
}

// ClearError clears the error field.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.state.Err = ""
	next := s.state
	s.mu.Unlock()
	s.notify(next)
}

// Subscribe registers a subscriber and returns an unsubscribe function.
// The subscriber is called with every snapshot committed after
// registration, in registration order, outside the state lock.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state AuthState) {
	s.subMu.Lock()
	fns := make([]Subscriber, 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
