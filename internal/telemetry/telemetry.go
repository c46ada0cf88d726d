// Package telemetry exposes Uatu's operational health as Prometheus
// metrics: how many anomalies fired, how many investigations ran (and
// whether they hit cache), and how the Permission Gate is deciding.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric descriptor Uatu registers.
// Metrics are bound to a dedicated prometheus.Registry, not the global
// default, to avoid collisions with any other instrumented library
// sharing this process, following octoreflex's own practice.
type Metrics struct {
	registry *prometheus.Registry

	// EventsPublishedTotal counts anomaly events published on the bus,
	// by anomaly type.
	EventsPublishedTotal *prometheus.CounterVec

	// InvestigationsTotal counts completed investigations, by outcome
	// (cache_hit, provider_success, provider_error, timeout).
	InvestigationsTotal *prometheus.CounterVec

	// InvestigationQueueDepth is the current depth of the Investigation
	// Orchestrator's pending queue.
	InvestigationQueueDepth prometheus.Gauge

	// InvestigationLatency records provider call latency in seconds,
	// for cache-miss investigations only.
	InvestigationLatency prometheus.Histogram

	// GateDecisionsTotal counts Permission Gate decisions, by outcome
	// (allow, deny).
	GateDecisionsTotal *prometheus.CounterVec

	// WatcherSamplesTotal is registered for completed sampling ticks, by
	// watcher name (cpu, memory, load, process). No watcher increments
	// it, so it stays at zero.
	WatcherSamplesTotal *prometheus.CounterVec

	// WatcherSampleErrorsTotal is registered for sampling failures, by
	// watcher name. No watcher increments it, so it stays at zero.
	WatcherSampleErrorsTotal *prometheus.CounterVec

	// UptimeSeconds is the number of seconds since the daemon started.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// New creates and registers every Uatu metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		EventsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uatu",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total anomaly events published on the event bus, by anomaly type.",
		}, []string{"anomaly_type"}),

		InvestigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uatu",
			Subsystem: "investigations",
			Name:      "total",
			Help:      "Total completed investigations, by outcome.",
		}, []string{"outcome"}),

		InvestigationQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uatu",
			Subsystem: "investigations",
			Name:      "queue_depth",
			Help:      "Current depth of the investigation orchestrator's pending queue.",
		}),

		InvestigationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uatu",
			Subsystem: "investigations",
			Name:      "provider_latency_seconds",
			Help:      "Investigation provider call latency in seconds, for cache misses only.",
			Buckets:   prometheus.DefBuckets,
		}),

		GateDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uatu",
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total permission gate decisions, by outcome.",
		}, []string{"outcome"}),

		WatcherSamplesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uatu",
			Subsystem: "watcher",
			Name:      "samples_total",
			Help:      "Total completed sampling ticks, by watcher name.",
		}, []string{"watcher"}),

		WatcherSampleErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uatu",
			Subsystem: "watcher",
			Name:      "sample_errors_total",
			Help:      "Total sampling failures, by watcher name.",
		}, []string{"watcher"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uatu",
			Subsystem: "daemon",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the daemon started.",
		}),
	}

	reg.MustRegister(
		m.EventsPublishedTotal,
		m.InvestigationsTotal,
		m.InvestigationQueueDepth,
		m.InvestigationLatency,
		m.GateDecisionsTotal,
		m.WatcherSamplesTotal,
		m.WatcherSampleErrorsTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Serve starts the Prometheus HTTP metrics server on addr (expected to
// be loopback-only, e.g. "127.0.0.1:9477"), blocking until ctx is
// cancelled or the server fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("telemetry: metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
