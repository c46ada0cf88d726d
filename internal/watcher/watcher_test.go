package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fractalops/uatu/internal/eventbus"
	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

type sequenceProbe struct {
	mu      sync.Mutex
	samples []model.Snapshot
	i       int

	procSequence [][]model.ProcessInfo
	procI        int
}

func (s *sequenceProbe) Sample(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return model.Snapshot{Timestamp: time.Now()}, nil
	}
	snap := s.samples[s.i]
	if s.i < len(s.samples)-1 {
		s.i++
	}
	return snap, nil
}

func (s *sequenceProbe) ListProcesses(ctx context.Context, filter probe.ProcessFilter) ([]model.ProcessInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procSequence) == 0 {
		return nil, nil
	}
	procs := s.procSequence[s.procI]
	if s.procI < len(s.procSequence)-1 {
		s.procI++
	}
	return procs, nil
}

func (s *sequenceProbe) ReadKernelPath(path string) ([]byte, error) { return nil, nil }

func TestCPUWatcherPublishesOnSpike(t *testing.T) {
	p := &sequenceProbe{samples: []model.Snapshot{{Timestamp: time.Now(), CPUPercent: 80}}}
	bus := eventbus.New(nil, nil)

	var got int32
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("anomaly.cpu", func(e model.AnomalyEvent) error {
		defer wg.Done()
		atomic.AddInt32(&got, 1)
		return nil
	})

	w := NewCPUWatcher(nil, p, bus)
	w.SetBaseline(model.Snapshot{CPUPercent: 10})

	ctx, cancel := context.WithCancel(context.Background())
	w.cadence = 2 * time.Millisecond
	go w.Start(ctx)

	waitOrTimeout(t, &wg)
	cancel()
	w.Stop()

	if atomic.LoadInt32(&got) == 0 {
		t.Error("expected at least one published CPU spike event")
	}
}

func TestCPUWatcherSilentWithoutBaseline(t *testing.T) {
	p := &sequenceProbe{samples: []model.Snapshot{{Timestamp: time.Now(), CPUPercent: 99}}}
	bus := eventbus.New(nil, nil)

	var got int32
	bus.Subscribe("anomaly.cpu", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&got, 1)
		return nil
	})

	w := NewCPUWatcher(nil, p, bus)
	w.cadence = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	w.Stop()

	if atomic.LoadInt32(&got) != 0 {
		t.Error("expected no events before a baseline is set")
	}
}

func TestProcessWatcherDetectsCrashAndRestart(t *testing.T) {
	gen1 := []model.ProcessInfo{{PID: 1, Name: "worker"}}
	gen2 := []model.ProcessInfo{} // worker dies
	gen3 := []model.ProcessInfo{{PID: 2, Name: "worker"}} // restarts under new pid

	p := &sequenceProbe{procSequence: [][]model.ProcessInfo{gen1, gen2, gen3}}
	bus := eventbus.New(nil, nil)

	var crashes, restarts int32
	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe("anomaly.process_crash", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&crashes, 1)
		wg.Done()
		return nil
	})
	bus.Subscribe("anomaly.process_restart", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&restarts, 1)
		wg.Done()
		return nil
	})

	w := NewProcessWatcher(nil, p, bus)
	w.cadence = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	waitOrTimeout(t, &wg)
	cancel()
	w.Stop()

	if atomic.LoadInt32(&crashes) == 0 {
		t.Error("expected a process_crash event")
	}
	if atomic.LoadInt32(&restarts) == 0 {
		t.Error("expected a process_restart event")
	}
}

func TestProcessWatcherEscalatesToCrashLoop(t *testing.T) {
	// worker dies and restarts under a new PID crashLoopThreshold times in a
	// row, each restart within restartMatchWindow of the prior death.
	sequence := [][]model.ProcessInfo{
		{{PID: 1, Name: "worker"}},
		{},
		{{PID: 2, Name: "worker"}},
		{},
		{{PID: 3, Name: "worker"}},
		{},
		{{PID: 4, Name: "worker"}},
	}
	p := &sequenceProbe{procSequence: sequence}
	bus := eventbus.New(nil, nil)

	var crashLoops int32
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("anomaly.process_crash_loop", func(e model.AnomalyEvent) error {
		atomic.AddInt32(&crashLoops, 1)
		wg.Done()
		return nil
	})

	w := NewProcessWatcher(nil, p, bus)
	w.cadence = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	waitOrTimeout(t, &wg)
	cancel()
	w.Stop()

	if atomic.LoadInt32(&crashLoops) == 0 {
		t.Error("expected a process_crash_loop event once restarts crossed the threshold")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expected events")
	}
}
