// ABOUTME: Ordered, bounded progress log for one pipeline kind with the
// ABOUTME: coalescing/dedup/termination merge rules the dashboard timeline depends on.
package progress

import (
	"sync"
	"time"
)

// Status is the lifecycle state carried by a progress entry.
type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Synthetic phases the router produces when normalizing terminal meta-events.
const (
	PhaseComplete  = "complete"
	PhaseError     = "error"
	PhaseCancelled = "cancelled"
)

// Entry is one record in a pipeline's progress timeline.
type Entry struct {
	Phase   string    `json:"phase"`
	Status  Status    `json:"status"`
	Detail  string    `json:"detail,omitempty"`
	Error   string    `json:"error,omitempty"`
	Current int       `json:"current,omitempty"`
	Total   int       `json:"total,omitempty"`
	At      time.Time `json:"at"`
}

// Terminal reports whether the entry carries a terminal status.
func (e Entry) Terminal() bool {
	return e.Status == StatusDone || e.Status == StatusFailed || e.Status == StatusCancelled
}

// Log is the append-ordered progress timeline for one pipeline kind. Events
// are trusted in arrival order; only one run per kind is ever active
// client-side, so the merge rules never need to reorder.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	version uint64
}

// NewLog creates an empty progress log.
func NewLog() *Log {
	return &Log{}
}

// Append merges a new entry into the log:
//
//  1. A "complete" phase entry is idempotent: if the log already holds one,
//     the new entry is discarded. Duplicate completions are possible under
//     reconnect-triggered replays and must not double-count.
//  2. A done/failed entry retires every running entry for the same phase
//     before being appended, so no stale in-flight row survives a terminal.
//  3. A running entry coalesces into the last running entry for the same
//     phase, replacing it in place. Chatty phases emit many intermediate
//     updates; without coalescing the log grows without bound.
//  4. Anything else is appended unconditionally.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = merge(l.entries, e)
	l.version++
}

// Clear discards all entries, e.g. when a new run starts.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.version++
}

// Entries returns a copy of the current timeline.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the current entry count.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Version increments on every mutation; observers use it to cheaply detect
// change without diffing entries.
func (l *Log) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// merge implements the timeline merge rules as a pure function over the
// entry slice so it can be tested independently of the Log container.
func merge(entries []Entry, e Entry) []Entry {
	if e.Phase == PhaseComplete {
		for _, existing := range entries {
			if existing.Phase == PhaseComplete {
				return entries
			}
		}
		return append(entries, e)
	}

	if e.Status == StatusDone || e.Status == StatusFailed {
		kept := entries[:0]
		for _, existing := range entries {
			if existing.Phase == e.Phase && existing.Status == StatusRunning {
				continue
			}
			kept = append(kept, existing)
		}
		return append(kept, e)
	}

	if e.Status == StatusRunning {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Phase == e.Phase && entries[i].Status == StatusRunning {
				entries[i] = e
				return entries
			}
		}
		return append(entries, e)
	}

	return append(entries, e)
}
