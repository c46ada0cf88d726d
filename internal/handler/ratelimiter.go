package handler

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

// defaultDampeningWriter is where the rate limiter's notice is printed
// when the caller supplies no Notify callback.
var defaultDampeningWriter = os.Stderr

// rateLimitWindow is the rolling window over which events are counted,
// per spec.md §4.7.
const rateLimitWindow = 60 * time.Second

// RateLimiter tracks event timestamps in a rolling 60s window and, once
// the count exceeds MaxEventsPerMinute, emits a single dampening notice
// via Notify — it never drops events for downstream handlers (this is
// an alarm, not a filter). Grounded in struct shape on octoreflex's
// internal/budget.Bucket (mutex-guarded counters), but implemented as a
// rolling timestamp window rather than a refilling token bucket, since
// the spec calls for a dampening alarm, not a drop-filter.
type RateLimiter struct {
	mu     sync.Mutex
	max    int
	times  []time.Time
	armed  bool
	Notify func(count int, window time.Duration)
}

// NewRateLimiter constructs a RateLimiter with the given
// max-events-per-minute threshold. notify, if non-nil, is called at
// most once per window-exceeded episode.
func NewRateLimiter(maxEventsPerMinute int, notify func(count int, window time.Duration)) *RateLimiter {
	return &RateLimiter{max: maxEventsPerMinute, Notify: notify}
}

// OnEvent records event's arrival and fires Notify once per episode
// when the rolling count exceeds the configured maximum. It never
// returns an error and never drops the event for other handlers.
func (r *RateLimiter) OnEvent(event model.AnomalyEvent) error {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-rateLimitWindow)
	kept := r.times[:0]
	for _, t := range r.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.times = append(kept, now)

	if len(r.times) > r.max {
		if !r.armed {
			r.armed = true
			r.notify(len(r.times), rateLimitWindow)
		}
	} else {
		r.armed = false
	}
	return nil
}

// notify calls the configured Notify callback, falling back to
// printing the default dampening message to stderr when none is set.
func (r *RateLimiter) notify(count int, window time.Duration) {
	if r.Notify != nil {
		r.Notify(count, window)
		return
	}
	fmt.Fprintf(defaultDampeningWriter, "event rate exceeded: %d events in the last %s\n", count, window)
}
