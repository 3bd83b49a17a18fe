// Package diag provides an injectable sink for diagnostic events emitted
// during session resolution. Callers that do not care pass Discard; tests
// pass a Ring and assert on captured events.
package diag

import (
	"sync"
	"time"
)

// Event is a single diagnostic record.
type Event struct {
	At      time.Time
	Source  string
	Message string
}

// Sink receives diagnostic events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Emit(source, message string)
}

type discard struct{}

func (discard) Emit(string, string) {}

// Discard drops every event.
var Discard Sink = discard{}

// Ring is a bounded in-memory sink. Once full, the oldest event is
// overwritten.
type Ring struct {
	mu     sync.Mutex
	events []Event
	next   int
	filled bool
}

// NewRing returns a ring buffer holding at most capacity events.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring{events: make([]Event, capacity)}
}

func (r *Ring) Emit(source, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = Event{At: time.Now().UTC(), Source: source, Message: message}
	r.next++
	if r.next == len(r.events) {
		r.next = 0
		r.filled = true
	}
}

// Events returns captured events, oldest first.
func (r *Ring) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]Event, r.next)
		copy(out, r.events[:r.next])
		return out
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	out = append(out, r.events[:r.next]...)
	return out
}

// Len reports how many events are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled {
		return len(r.events)
	}
	return r.next
}
