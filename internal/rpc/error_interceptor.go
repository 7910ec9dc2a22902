package rpc

import (
	"sync/atomic"

	"github.com/taskforge/authsync/internal/logger"
)

// ResetFunc is the one-shot client reset performed when the server
// rejects a call as unauthorized: clear state, send the user back to the
// sign-in surface.
type ResetFunc func()

// ErrorInterceptor observes every RPC response. N concurrent calls that
// all fail with UNAUTHORIZED trigger the reset exactly once; other
// errors pass through untouched for local handling. Authorization
// failures are never retried, since replaying the same token cannot
// succeed.
type ErrorInterceptor struct {
	reset ResetFunc
	fired atomic.Bool
}

// NewErrorInterceptor creates an ErrorInterceptor with the given reset
// action.
func NewErrorInterceptor(reset ResetFunc) *ErrorInterceptor {
	return &ErrorInterceptor{reset: reset}
}

// Observe inspects a call outcome, firing the reset on the first
// authorization failure. It returns err unchanged.
func (e *ErrorInterceptor) Observe(err error) error {
	if err == nil || !IsUnauthorized(err) {
		return err
	}
	if e.fired.CompareAndSwap(false, true) {
		logger.Info("unauthorized response, resetting client auth state")
		if e.reset != nil {
			e.reset()
		}
	}
	return err
}

// Rearm re-enables the reset after the client has re-authenticated.
func (e *ErrorInterceptor) Rearm() {
	e.fired.Store(false)
}
