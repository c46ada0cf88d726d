package watcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fractalops/uatu/internal/eventbus"
	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

// defaultMultiplier is shared by the CPU/Memory/Load watchers' simple
// ratio rule (spec.md §4.6's table: "current > baseline × multiplier").
// It intentionally matches the Anomaly Detector's cpu_spike_ratio so a
// Watcher-level event and a Detector-level event agree on what counts
// as a spike.
const defaultMultiplier = 1.5

// CPUWatcher samples CPU percent on a 1s cadence.
type CPUWatcher struct {
	base
	multiplier float64
}

// NewCPUWatcher constructs a CPUWatcher with spec.md §4.6's 1s cadence.
func NewCPUWatcher(log *zap.SugaredLogger, p probe.Probe, bus *eventbus.Bus) *CPUWatcher {
	return &CPUWatcher{base: newBase(log, p, bus, time.Second), multiplier: defaultMultiplier}
}

func (w *CPUWatcher) Start(ctx context.Context) {
	w.run(ctx, func(ctx context.Context) error {
		baseline, ok := w.currentBaseline()
		if !ok || baseline.CPUPercent <= 0 {
			_, err := w.probe.Sample(ctx)
			return err
		}
		snap, err := w.probe.Sample(ctx)
		if err != nil {
			return err
		}
		if snap.CPUPercent > baseline.CPUPercent*w.multiplier {
			w.bus.Publish("anomaly.cpu", model.AnomalyEvent{
				Timestamp: snap.Timestamp,
				Type:      model.CPUSpike,
				Severity:  model.SeverityWarning,
				Message:   fmt.Sprintf("CPU watcher: %.1f%% (baseline: %.1f%%)", snap.CPUPercent, baseline.CPUPercent),
				Details:   map[string]interface{}{"current": snap.CPUPercent, "baseline": baseline.CPUPercent},
			})
		}
		return nil
	})
}

// MemoryWatcher samples memory percent on a 2s cadence.
type MemoryWatcher struct {
	base
	multiplier float64
}

// NewMemoryWatcher constructs a MemoryWatcher with spec.md §4.6's 2s cadence.
func NewMemoryWatcher(log *zap.SugaredLogger, p probe.Probe, bus *eventbus.Bus) *MemoryWatcher {
	return &MemoryWatcher{base: newBase(log, p, bus, 2 * time.Second), multiplier: defaultMultiplier}
}

func (w *MemoryWatcher) Start(ctx context.Context) {
	w.run(ctx, func(ctx context.Context) error {
		baseline, ok := w.currentBaseline()
		if !ok || baseline.MemoryPercent <= 0 {
			_, err := w.probe.Sample(ctx)
			return err
		}
		snap, err := w.probe.Sample(ctx)
		if err != nil {
			return err
		}
		if snap.MemoryPercent > baseline.MemoryPercent*w.multiplier {
			w.bus.Publish("anomaly.memory", model.AnomalyEvent{
				Timestamp: snap.Timestamp,
				Type:      model.MemorySpike,
				Severity:  model.SeverityWarning,
				Message:   fmt.Sprintf("Memory watcher: %.1f%% (baseline: %.1f%%)", snap.MemoryPercent, baseline.MemoryPercent),
				Details:   map[string]interface{}{"current": snap.MemoryPercent, "baseline": baseline.MemoryPercent},
			})
		}
		return nil
	})
}

// LoadWatcher samples the 1-minute load average on a 5s cadence.
type LoadWatcher struct {
	base
	multiplier float64
}

// NewLoadWatcher constructs a LoadWatcher with spec.md §4.6's 5s cadence.
func NewLoadWatcher(log *zap.SugaredLogger, p probe.Probe, bus *eventbus.Bus) *LoadWatcher {
	return &LoadWatcher{base: newBase(log, p, bus, 5 * time.Second), multiplier: defaultMultiplier}
}

func (w *LoadWatcher) Start(ctx context.Context) {
	w.run(ctx, func(ctx context.Context) error {
		baseline, ok := w.currentBaseline()
		if !ok || baseline.Load1Min <= 0 {
			_, err := w.probe.Sample(ctx)
			return err
		}
		snap, err := w.probe.Sample(ctx)
		if err != nil {
			return err
		}
		if snap.Load1Min > baseline.Load1Min*w.multiplier {
			w.bus.Publish("anomaly.load", model.AnomalyEvent{
				Timestamp: snap.Timestamp,
				Type:      model.HighLoad,
				Severity:  model.SeverityWarning,
				Message:   fmt.Sprintf("Load watcher: %.2f (baseline: %.2f)", snap.Load1Min, baseline.Load1Min),
				Details:   map[string]interface{}{"current": snap.Load1Min, "baseline": baseline.Load1Min},
			})
		}
		return nil
	})
}
