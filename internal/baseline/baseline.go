// Package baseline implements the Baseline Learner: it samples the
// SystemProbe repeatedly and produces a synthetic Snapshot whose numeric
// fields are the arithmetic mean of the observed samples.
package baseline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

// Learner samples a Probe on a fixed cadence to establish a reference
// Snapshot, grounded in shape on melisai's two-phase
// sample-then-wait loop (`ProcessCollector.Collect`) and on
// original_source's `AsyncWatcher.establish_baseline`.
type Learner struct {
	probe probe.Probe

	collected atomic.Int64
	target    atomic.Int64
}

// NewLearner constructs a Learner over the given Probe.
func NewLearner(p probe.Probe) *Learner {
	return &Learner{probe: p}
}

// Progress reports how many samples have been collected so far against
// the target sample count for the in-flight (or most recent) Learn call.
func (l *Learner) Progress() (collected, target int) {
	return int(l.collected.Load()), int(l.target.Load())
}

// Learn collects floor(duration/interval) samples and returns their
// element-wise mean as a synthetic Snapshot: Timestamp is the last
// sample's, top-process lists are left empty (a baseline is for
// aggregate reference, not process identity), per spec.md §4.2.
//
// Learn is cancellable: cancelling ctx stops sampling and returns the
// best baseline computable from whatever was collected, failing only
// if zero samples were collected before cancellation.
func (l *Learner) Learn(ctx context.Context, duration, interval time.Duration) (model.Snapshot, error) {
	if interval <= 0 {
		return model.Snapshot{}, fmt.Errorf("baseline: sample interval must be positive")
	}

	target := int(duration / interval)
	if target < 1 {
		target = 1
	}
	l.target.Store(int64(target))
	l.collected.Store(0)

	var samples []model.Snapshot
	for i := 0; i < target; i++ {
		snap, err := l.probe.Sample(ctx)
		if err != nil {
			if len(samples) == 0 {
				return model.Snapshot{}, fmt.Errorf("baseline: learn: %w", err)
			}
			break
		}
		samples = append(samples, snap)
		l.collected.Store(int64(len(samples)))

		if i == target-1 {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return average(samples)
		}
	}

	return average(samples)
}

func average(samples []model.Snapshot) (model.Snapshot, error) {
	if len(samples) == 0 {
		return model.Snapshot{}, fmt.Errorf("baseline: learn: zero samples collected")
	}

	var cpuSum, memPctSum, memUsedSum, memTotalSum float64
	var load1Sum, load5Sum, load15Sum float64
	var procCountSum int

	for _, s := range samples {
		cpuSum += s.CPUPercent
		memPctSum += s.MemoryPercent
		memUsedSum += s.MemoryUsedMB
		memTotalSum += s.MemoryTotalMB
		load1Sum += s.Load1Min
		load5Sum += s.Load5Min
		load15Sum += s.Load15Min
		procCountSum += s.ProcessCount
	}

	n := float64(len(samples))
	last := samples[len(samples)-1]

	return model.NewSnapshot(
		last.Timestamp,
		cpuSum/n,
		memPctSum/n,
		memUsedSum/n,
		memTotalSum/n,
		load1Sum/n, load5Sum/n, load15Sum/n,
		procCountSum/len(samples),
		nil, nil, nil,
	), nil
}
