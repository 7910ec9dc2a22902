package provider

import (
	"sync"

	"github.com/taskforge/authsync/internal/logger"
	"go.uber.org/zap"
)

// EventType identifies a provider-emitted session event.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is a session change reported by the provider. Session is nil for
// SIGNED_OUT and non-nil otherwise.
type Event struct {
	Type    EventType
	Session *Session
}

// eventBuffer is how many undelivered events the emitter holds before it
// starts dropping; the synchronizer re-derives full state from each
// event, so a dropped event is superseded by the next one.
const eventBuffer = 16

type emitter struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newEmitter() *emitter {
	return &emitter{ch: make(chan Event, eventBuffer)}
}

func (e *emitter) events() <-chan Event {
	return e.ch
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
		logger.Warn("session event dropped, consumer too slow",
			zap.String("event", string(ev.Type)),
		)
	}
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
