// Package history implements the Snapshot History ring buffer: a
// fixed-capacity, timestamp-ordered window over recent Snapshots.
package history

import (
	"sync"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

// Ring is a mutex-guarded, fixed-capacity ring buffer of Snapshots,
// grounded in struct shape on melisai's observer.PIDTracker
// (sync.RWMutex + plain fields, no external locking primitives beyond
// stdlib).
type Ring struct {
	mu       sync.RWMutex
	capacity int
	buf      []model.Snapshot
}

// NewRing constructs an empty Ring with the given capacity. A capacity
// below 1 falls back to model.WatcherHistoryCapacity (100).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = model.WatcherHistoryCapacity
	}
	return &Ring{
		capacity: capacity,
		buf:      make([]model.Snapshot, 0, capacity),
	}
}

// Push appends snap, discarding the oldest entry once capacity is reached.
func (r *Ring) Push(snap model.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) >= r.capacity {
		r.buf = append(r.buf[1:], snap)
		return
	}
	r.buf = append(r.buf, snap)
}

// All returns a copy of every Snapshot currently held, ordered oldest
// first.
func (r *Ring) All() []model.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Snapshot, len(r.buf))
	copy(out, r.buf)
	return out
}

// Len reports how many Snapshots are currently held.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buf)
}

// Last returns the most recently pushed Snapshot, or the zero value and
// false if the ring is empty.
func (r *Ring) Last() (model.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.buf) == 0 {
		return model.Snapshot{}, false
	}
	return r.buf[len(r.buf)-1], true
}

// Recent returns every Snapshot whose Timestamp is >= now - minutes.
// The cutoff is computed as now.Add(-minutes*time.Minute) — spec.md §9's
// explicit correction of the Python original's buggy
// datetime.now().minute-based subtraction, which would wrap incorrectly
// across hour boundaries instead of shifting by a true duration.
func (r *Ring) Recent(now time.Time, minutes int) []model.Snapshot {
	cutoff := now.Add(-time.Duration(minutes) * time.Minute)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Snapshot
	for _, s := range r.buf {
		if !s.Timestamp.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}
