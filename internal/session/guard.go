package session

import "sync/atomic"

// Guard is the mutual-exclusion token shared by the Synchronizer and the
// Manager: at most one of sign-in, sign-up, sign-out, or the start-up
// initialization is in flight per store. Overlapping triggers are
// suppressed, never queued or merged, so a late-resolving operation can
// never commit over a newer one's result.
type Guard struct {
	busy atomic.Bool
}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

func (g *Guard) tryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) release() {
	g.busy.Store(false)
}
