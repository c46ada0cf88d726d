// Package watcher implements the per-signal Watcher producers: long-
// lived loops that sample one signal at its own cadence and publish
// AnomalyEvents to the Event Bus.
package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/eventbus"
	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

// backoff is the sleep duration on a transient sampling error before
// retrying, per spec.md §4.6.
const backoff = 5 * time.Second

// Watcher is the common interface implemented by every concrete
// per-signal producer, grounded on melisai's orchestrator.Run signal-
// driven-cancellation goroutine generalized into a standing interface
// (melisai itself has no long-lived component, since it's a one-shot
// CLI — the Start/Stop shape comes from spec.md §4.6 directly: "each
// concrete Watcher owns one signal and exposes start()... and stop()").
type Watcher interface {
	// Start runs the watcher's sampling loop until ctx is cancelled or
	// Stop is called. Start blocks; callers typically run it in its own
	// goroutine.
	Start(ctx context.Context)
	// Stop is idempotent and cooperative: the next loop iteration
	// observes the stop signal and exits cleanly.
	Stop()
}

// SetBaseline is satisfied by every concrete watcher below: baselines
// are set after construction by the orchestrator, once the Baseline
// Learner completes (spec.md §4.6).
type SetBaseline interface {
	SetBaseline(model.Snapshot)
}

// base holds the fields and lifecycle plumbing common to every
// concrete watcher: its own ticker cadence, an atomically-swappable
// baseline, and cooperative stop signaling.
type base struct {
	log      *zap.SugaredLogger
	probe    probe.Probe
	bus      *eventbus.Bus
	cadence  time.Duration
	stopOnce sync.Once
	stopCh   chan struct{}

	baseline atomic.Value // model.Snapshot
}

func newBase(log *zap.SugaredLogger, p probe.Probe, bus *eventbus.Bus, cadence time.Duration) base {
	return base{
		log:     log,
		probe:   p,
		bus:     bus,
		cadence: cadence,
		stopCh:  make(chan struct{}),
	}
}

// SetBaseline atomically installs the reference Snapshot a watcher
// compares samples against. Until called, currentBaseline reports false
// and the watcher must produce no events (spec.md §4.6).
func (b *base) SetBaseline(snap model.Snapshot) {
	b.baseline.Store(snap)
}

func (b *base) currentBaseline() (model.Snapshot, bool) {
	v := b.baseline.Load()
	if v == nil {
		return model.Snapshot{}, false
	}
	return v.(model.Snapshot), true
}

// Stop is idempotent.
func (b *base) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// run drives the generic ticker loop: on each tick, call sample; on a
// transient sample error, back off 5s and continue, per spec.md §4.6.
func (b *base) run(ctx context.Context, sample func(ctx context.Context) error) {
	ticker := time.NewTicker(b.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case <-ticker.C:
			if err := sample(ctx); err != nil {
				if b.log != nil {
					b.log.Warnw("watcher sample failed, backing off", "error", err, "backoff", backoff)
				}
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				case <-b.stopCh:
					return
				}
			}
		}
	}
}
