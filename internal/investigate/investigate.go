// Package investigate implements the Investigation Orchestrator: a
// severity-filtered queue that hands anomaly events off to an LLM
// provider for root-cause analysis, bounded to a small number of
// concurrent investigations, with every result cached and audited.
package investigate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/cache"
	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
	"github.com/fractalops/uatu/internal/telemetry"
)

// defaultConcurrency bounds outstanding provider calls, per spec.md §4.9.
const defaultConcurrency = 3

// defaultProviderTimeout is the per-investigation ceiling; on expiry the
// event is treated as failed (logged, discarded, no retry).
const defaultProviderTimeout = 120 * time.Second

// Provider is the seam over the external LLM investigation call. The
// implementation in internal/provider makes a single Messages API call
// with no tool use; tests substitute a fake.
type Provider interface {
	Investigate(ctx context.Context, event model.AnomalyEvent, snap model.Snapshot) (string, error)
}

// Reporter renders a human-readable investigation summary, e.g. to a
// terminal. Orchestrator calls it best-effort; a Reporter never blocks
// the pipeline on slow output.
type Reporter interface {
	Report(event model.AnomalyEvent, analysis string, cached bool, cacheCount int)
}

// Options configures an Orchestrator. Concurrency and ProviderTimeout
// default to the spec's values (3, 120s) when left zero. MinSeverity
// has no non-zero sentinel to default from — its Go zero value is
// SeverityInfo, so callers wanting spec.md §4.9's WARNING floor must
// set MinSeverity: model.SeverityWarning explicitly (cmd/uatu's
// `watch` wiring does this).
type Options struct {
	MinSeverity     model.Severity
	Concurrency     int
	ProviderTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	if o.ProviderTimeout <= 0 {
		o.ProviderTimeout = defaultProviderTimeout
	}
	return o
}

// Orchestrator is the C9 Investigation Orchestrator: subscribes to
// anomaly events (via handler.InvestigationDispatcher.Submit), filters
// by severity, and drives provider calls under a bounded concurrency
// semaphore, consulting the Investigation Cache on every call and
// appending an audit record per investigation.
type Orchestrator struct {
	log      *zap.SugaredLogger
	probe    probe.Probe
	cache    *cache.Cache
	provider Provider
	reporter Reporter
	audit    *AuditLog
	opts     Options
	metrics  *telemetry.Metrics

	queue chan model.AnomalyEvent
	sem   chan struct{}

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs an Orchestrator. audit may be nil to skip audit logging
// (e.g. in tests); reporter may be nil to skip console rendering; metrics
// may be nil to skip instrumentation.
func New(log *zap.SugaredLogger, p probe.Probe, c *cache.Cache, provider Provider, reporter Reporter, audit *AuditLog, metrics *telemetry.Metrics, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		log:      log,
		probe:    p,
		cache:    c,
		provider: provider,
		reporter: reporter,
		audit:    audit,
		opts:     opts,
		metrics:  metrics,
		queue:    make(chan model.AnomalyEvent, 4096),
		sem:      make(chan struct{}, opts.Concurrency),
		stopCh:   make(chan struct{}),
	}
}

// Submit enqueues event for investigation if its severity meets the
// configured floor. Non-blocking: the queue is large enough in practice
// to behave as the unbounded FIFO spec.md §4.9 calls for; a full queue
// drops the event rather than stalling the publisher.
func (o *Orchestrator) Submit(event model.AnomalyEvent) {
	if event.Severity.Less(o.opts.MinSeverity) {
		return
	}
	select {
	case o.queue <- event:
		if o.metrics != nil {
			o.metrics.InvestigationQueueDepth.Set(float64(len(o.queue)))
		}
	default:
		if o.log != nil {
			o.log.Warnw("investigation queue full, dropping event", "type", event.Type.String())
		}
	}
}

// Run drives the single dequeue worker until ctx is cancelled or Stop is
// called. Each dequeued event spawns a concurrent investigation
// goroutine bounded by the configured semaphore.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			return
		case <-o.stopCh:
			o.wg.Wait()
			return
		case event := <-o.queue:
			select {
			case o.sem <- struct{}{}:
			case <-ctx.Done():
				o.wg.Wait()
				return
			case <-o.stopCh:
				o.wg.Wait()
				return
			}
			o.wg.Add(1)
			go func(event model.AnomalyEvent) {
				defer o.wg.Done()
				defer func() { <-o.sem }()
				o.investigate(ctx, event)
			}(event)
		}
	}
}

// Stop requests Run to drain in-flight investigations (up to the
// caller's own grace period, enforced via ctx in Run) and return.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
}

func (o *Orchestrator) investigate(ctx context.Context, event model.AnomalyEvent) {
	snap, err := o.probe.Sample(ctx)
	if err != nil {
		if o.log != nil {
			o.log.Warnw("investigation: sample failed", "error", err)
		}
		return
	}

	var (
		analysis   string
		cached     bool
		cacheCount int
	)

	if entry, ok := o.cache.Touch(event.Type.String(), event.Message); ok {
		analysis, cached, cacheCount = entry.Analysis, true, entry.Count
		if o.metrics != nil {
			o.metrics.InvestigationsTotal.WithLabelValues("cache_hit").Inc()
		}
	} else {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
		result, err := o.provider.Investigate(callCtx, event, snap)
		cancel()
		if err != nil {
			if o.metrics != nil {
				outcome := "provider_error"
				if callCtx.Err() == context.DeadlineExceeded {
					outcome = "timeout"
				}
				o.metrics.InvestigationsTotal.WithLabelValues(outcome).Inc()
			}
			if o.log != nil {
				o.log.Warnw("investigation: provider call failed", "error", err, "type", event.Type.String())
			}
			return
		}
		if o.metrics != nil {
			o.metrics.InvestigationLatency.Observe(time.Since(start).Seconds())
			o.metrics.InvestigationsTotal.WithLabelValues("provider_success").Inc()
		}
		entry := o.cache.Set(event.Type.String(), event.Message, result)
		analysis, cached, cacheCount = entry.Analysis, false, entry.Count
	}

	if o.audit != nil {
		if err := o.audit.Append(AuditRecord{
			Timestamp: time.Now(),
			Event:     event,
			System:    snap,
			Investigation: InvestigationResult{
				ID:         uuid.NewString(),
				Analysis:   analysis,
				Cached:     cached,
				CacheCount: cacheCount,
			},
		}); err != nil && o.log != nil {
			o.log.Warnw("investigation: audit append failed", "error", err)
		}
	}

	if o.reporter != nil {
		o.reporter.Report(event, analysis, cached, cacheCount)
	}
}
