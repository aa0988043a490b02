// ABOUTME: Lifecycle event emitter for channel connections with a
// ABOUTME: subscribe/emit/unsubscribe pattern and non-blocking delivery.
package conn

import (
	"sync"

	"github.com/2389-research/pulse/wire"
)

// LifecycleEvent notifies dependents of a connection state change. These are
// advisory only, e.g. for UI connection indicators; they never gate
// correctness.
type LifecycleEvent struct {
	Channel wire.Channel
	Status  Status
	Attempt int
	Err     error
}

// Emitter delivers lifecycle events to subscribed channels.
type Emitter struct {
	mu          sync.RWMutex
	subscribers []chan LifecycleEvent
	closed      bool
}

// NewEmitter creates a new Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a new subscriber channel and returns it.
// The channel has a buffer of 16 to reduce the likelihood of blocking.
func (e *Emitter) Subscribe() <-chan LifecycleEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan LifecycleEvent, 16)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (e *Emitter) Unsubscribe(ch <-chan LifecycleEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subscribers {
		if (<-chan LifecycleEvent)(sub) == ch {
			close(sub)
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// Emit sends an event to all subscribers. Non-blocking: if a subscriber's
// buffer is full, the event is dropped for that subscriber.
func (e *Emitter) Emit(event LifecycleEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return
	}
	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
			// Drop for slow subscribers rather than blocking.
		}
	}
}

// Close closes the emitter and all subscriber channels.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
}
