// Package anomaly implements the Anomaly Detector: a table of
// independent heuristic rules evaluated over (baseline, history,
// current) that emit zero or more AnomalyEvents.
package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/fractalops/uatu/internal/model"
)

// Thresholds configures the detector's rule constants. Zero-valued
// fields are replaced with DefaultThresholds' values by NewDetector.
type Thresholds struct {
	CPUSpikeRatio    float64
	CPUCriticalAbs   float64
	MemSpikeRatio    float64
	MemCriticalAbs   float64
	LeakWindow       int
	LeakMonotonicPct float64
	NewProcCPUPct    float64
	NewProcMemMB     float64
}

// DefaultThresholds returns the detector's default rule constants,
// matching spec.md §4.4 exactly.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUSpikeRatio:    1.5,
		CPUCriticalAbs:   90.0,
		MemSpikeRatio:    1.3,
		MemCriticalAbs:   95.0,
		LeakWindow:       6,
		LeakMonotonicPct: 0.8,
		NewProcCPUPct:    20.0,
		NewProcMemMB:     500.0,
	}
}

// Detector evaluates the rule table against a WatcherState's baseline,
// history, and current snapshot, grounded in HOW on melisai's
// model.Threshold / DefaultThresholds() / DetectAnomalies(report)
// table-driven shape (each rule is an ordered table entry producing
// zero-or-one event) and in WHAT (the seven rules, exact thresholds,
// supersession, tie-break) on
// original_source/uatu/watcher/detector.py's AnomalyDetector.
type Detector struct {
	t Thresholds
}

// NewDetector constructs a Detector. Zero-valued fields in t fall back
// to DefaultThresholds().
func NewDetector(t Thresholds) *Detector {
	d := DefaultThresholds()
	if t.CPUSpikeRatio != 0 {
		d.CPUSpikeRatio = t.CPUSpikeRatio
	}
	if t.CPUCriticalAbs != 0 {
		d.CPUCriticalAbs = t.CPUCriticalAbs
	}
	if t.MemSpikeRatio != 0 {
		d.MemSpikeRatio = t.MemSpikeRatio
	}
	if t.MemCriticalAbs != 0 {
		d.MemCriticalAbs = t.MemCriticalAbs
	}
	if t.LeakWindow != 0 {
		d.LeakWindow = t.LeakWindow
	}
	if t.LeakMonotonicPct != 0 {
		d.LeakMonotonicPct = t.LeakMonotonicPct
	}
	if t.NewProcCPUPct != 0 {
		d.NewProcCPUPct = t.NewProcCPUPct
	}
	if t.NewProcMemMB != 0 {
		d.NewProcMemMB = t.NewProcMemMB
	}
	return &Detector{t: d}
}

// Detect evaluates every rule against state and the new current
// snapshot, in spec order, and returns the resulting events. If
// state.Baseline is nil, Detect returns no events (silent warmup).
// The detector never fails: a negative or NaN field is treated as if
// the offending rule's precondition did not hold.
func (d *Detector) Detect(state *model.WatcherState, current model.Snapshot) []model.AnomalyEvent {
	var events []model.AnomalyEvent

	if state == nil || state.Baseline == nil {
		return events
	}
	baseline := *state.Baseline

	if e, ok := d.cpuRule(baseline, current); ok {
		events = append(events, e)
	}
	if e, ok := d.memRule(baseline, current); ok {
		events = append(events, e)
	}
	if e, ok := d.memLeakRule(state, current); ok {
		events = append(events, e)
	}
	events = append(events, d.newProcessRule(state, current)...)
	events = append(events, d.zombieRule(current)...)

	return events
}

func valid(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

// cpuRule implements rules 1 and 2: CPU critical supersedes CPU spike,
// at most one CPU_SPIKE event per call.
func (d *Detector) cpuRule(baseline, current model.Snapshot) (model.AnomalyEvent, bool) {
	if !valid(current.CPUPercent) {
		return model.AnomalyEvent{}, false
	}

	if current.CPUPercent >= d.t.CPUCriticalAbs {
		top := topN(current.TopCPUProcesses, 3)
		details := map[string]interface{}{
			"current":       current.CPUPercent,
			"top_processes": procDetails(top),
		}
		return model.AnomalyEvent{
			Timestamp: current.Timestamp,
			Type:      model.CPUSpike,
			Severity:  model.SeverityCritical,
			Message:   fmt.Sprintf("CPU usage critical: %.1f%%", current.CPUPercent),
			Details:   details,
		}, true
	}

	if !valid(baseline.CPUPercent) {
		return model.AnomalyEvent{}, false
	}
	if current.CPUPercent > baseline.CPUPercent*d.t.CPUSpikeRatio {
		var culprit string
		details := map[string]interface{}{
			"current":  current.CPUPercent,
			"baseline": baseline.CPUPercent,
			"increase": current.CPUPercent - baseline.CPUPercent,
		}
		if top := firstTieBroken(current.TopCPUProcesses, cpuOf); top != nil {
			culprit = fmt.Sprintf(" - %s (PID %d)", top.Name, top.PID)
			details["top_process"] = map[string]interface{}{
				"pid": top.PID, "name": top.Name, "cpu": top.CPUPercent,
			}
		} else {
			details["top_process"] = nil
		}
		msg := fmt.Sprintf("CPU spike: %.1f%% (baseline: %.1f%%)%s", current.CPUPercent, baseline.CPUPercent, culprit)
		return model.AnomalyEvent{
			Timestamp: current.Timestamp,
			Type:      model.CPUSpike,
			Severity:  model.SeverityWarning,
			Message:   msg,
			Details:   details,
		}, true
	}
	return model.AnomalyEvent{}, false
}

// memRule implements rules 3 and 4.
func (d *Detector) memRule(baseline, current model.Snapshot) (model.AnomalyEvent, bool) {
	if !valid(current.MemoryPercent) {
		return model.AnomalyEvent{}, false
	}

	if current.MemoryPercent >= d.t.MemCriticalAbs {
		return model.AnomalyEvent{
			Timestamp: current.Timestamp,
			Type:      model.MemorySpike,
			Severity:  model.SeverityCritical,
			Message:   fmt.Sprintf("Memory usage critical: %.1f%%", current.MemoryPercent),
			Details: map[string]interface{}{
				"current_percent": current.MemoryPercent,
				"used_mb":         current.MemoryUsedMB,
				"total_mb":        current.MemoryTotalMB,
			},
		}, true
	}

	if !valid(baseline.MemoryPercent) {
		return model.AnomalyEvent{}, false
	}
	if current.MemoryPercent > baseline.MemoryPercent*d.t.MemSpikeRatio {
		var culprit string
		details := map[string]interface{}{
			"current":     current.MemoryPercent,
			"baseline":    baseline.MemoryPercent,
			"increase_mb": current.MemoryUsedMB - baseline.MemoryUsedMB,
		}
		if top := firstTieBroken(current.TopMemoryProcesses, memOf); top != nil {
			culprit = fmt.Sprintf(" - %s (PID %d)", top.Name, top.PID)
			details["top_process"] = map[string]interface{}{
				"pid": top.PID, "name": top.Name, "memory_mb": top.MemoryMB,
			}
		} else {
			details["top_process"] = nil
		}
		msg := fmt.Sprintf("Memory spike: %.1f%% (baseline: %.1f%%)%s", current.MemoryPercent, baseline.MemoryPercent, culprit)
		return model.AnomalyEvent{
			Timestamp: current.Timestamp,
			Type:      model.MemorySpike,
			Severity:  model.SeverityWarning,
			Message:   msg,
			Details:   details,
		}, true
	}
	return model.AnomalyEvent{}, false
}

// memLeakRule implements rule 5: monotonic memory growth over the
// trailing LeakWindow samples.
func (d *Detector) memLeakRule(state *model.WatcherState, current model.Snapshot) (model.AnomalyEvent, bool) {
	if len(state.History) < d.t.LeakWindow {
		return model.AnomalyEvent{}, false
	}
	recent := state.History[len(state.History)-d.t.LeakWindow:]

	increases := 0
	for i := 1; i < len(recent); i++ {
		if recent[i].MemoryUsedMB > recent[i-1].MemoryUsedMB {
			increases++
		}
	}
	if float64(increases) < float64(len(recent)-1)*d.t.LeakMonotonicPct {
		return model.AnomalyEvent{}, false
	}

	first, last := recent[0], recent[len(recent)-1]
	minutes := last.Timestamp.Sub(first.Timestamp).Minutes()
	if minutes == 0 {
		return model.AnomalyEvent{}, false
	}
	rate := (last.MemoryUsedMB - first.MemoryUsedMB) / minutes

	var culprit string
	if top := firstTieBroken(current.TopMemoryProcesses, memOf); top != nil {
		culprit = fmt.Sprintf(" - %s (PID %d)", top.Name, top.PID)
	}

	return model.AnomalyEvent{
		Timestamp: current.Timestamp,
		Type:      model.MemoryLeak,
		Severity:  model.SeverityWarning,
		Message:   fmt.Sprintf("Memory leak: growing at %.1f MB/min%s", rate, culprit),
		Details: map[string]interface{}{
			"growth_rate_mb_per_min": rate,
			"current_mb":             current.MemoryUsedMB,
		},
	}, true
}

// newProcessRule implements rule 6: a pid newly present in current's
// top lists, absent from the prior current's top lists, exceeding a
// resource threshold.
func (d *Detector) newProcessRule(state *model.WatcherState, current model.Snapshot) []model.AnomalyEvent {
	if state.Current == nil {
		return nil
	}

	curAll := append(append([]model.ProcessInfo{}, current.TopCPUProcesses...), current.TopMemoryProcesses...)
	prevAll := append(append([]model.ProcessInfo{}, state.Current.TopCPUProcesses...), state.Current.TopMemoryProcesses...)

	prevPIDs := make(map[int32]bool, len(prevAll))
	for _, p := range prevAll {
		prevPIDs[p.PID] = true
	}

	seen := make(map[int32]bool)
	var newPIDs []int32
	for _, p := range curAll {
		if !prevPIDs[p.PID] && !seen[p.PID] {
			seen[p.PID] = true
			newPIDs = append(newPIDs, p.PID)
		}
	}
	sort.Slice(newPIDs, func(i, j int) bool { return newPIDs[i] < newPIDs[j] })

	byPID := make(map[int32]model.ProcessInfo, len(curAll))
	for _, p := range curAll {
		if _, ok := byPID[p.PID]; !ok {
			byPID[p.PID] = p
		}
	}

	var events []model.AnomalyEvent
	for _, pid := range newPIDs {
		p := byPID[pid]
		if p.CPUPercent > d.t.NewProcCPUPct || p.MemoryMB > d.t.NewProcMemMB {
			events = append(events, model.AnomalyEvent{
				Timestamp: current.Timestamp,
				Type:      model.NewProcess,
				Severity:  model.SeverityInfo,
				Message:   fmt.Sprintf("New high-resource process detected: %s (PID %d)", p.Name, p.PID),
				Details: map[string]interface{}{
					"pid": p.PID, "name": p.Name,
					"cpu_percent": p.CPUPercent, "memory_mb": p.MemoryMB,
				},
			})
		}
	}
	return events
}

// zombieRule implements rule 7, pid-ascending.
func (d *Detector) zombieRule(current model.Snapshot) []model.AnomalyEvent {
	all := append(append([]model.ProcessInfo{}, current.TopCPUProcesses...), current.TopMemoryProcesses...)

	seen := make(map[int32]bool)
	var zombies []model.ProcessInfo
	for _, p := range all {
		if seen[p.PID] {
			continue
		}
		if p.IsZombie() {
			seen[p.PID] = true
			zombies = append(zombies, p)
		}
	}
	sort.Slice(zombies, func(i, j int) bool { return zombies[i].PID < zombies[j].PID })

	events := make([]model.AnomalyEvent, 0, len(zombies))
	for _, p := range zombies {
		events = append(events, model.AnomalyEvent{
			Timestamp: current.Timestamp,
			Type:      model.ZombieProcess,
			Severity:  model.SeverityWarning,
			Message:   fmt.Sprintf("Zombie process detected: %s (PID %d)", p.Name, p.PID),
			Details:   map[string]interface{}{"pid": p.PID, "name": p.Name},
		})
	}
	return events
}

// firstTieBroken returns the lowest-PID entry among those sharing the
// maximal ranking position (procs is already sorted descending by its
// ranking metric by model.NewSnapshot; ties at position 0 are broken
// by pid ascending).
func firstTieBroken(procs []model.ProcessInfo, metric func(model.ProcessInfo) float64) *model.ProcessInfo {
	if len(procs) == 0 {
		return nil
	}
	best := procs[0]
	for _, p := range procs[1:] {
		if metric(p) != metric(procs[0]) {
			break
		}
		if p.PID < best.PID {
			best = p
		}
	}
	return &best
}

func cpuOf(p model.ProcessInfo) float64 { return p.CPUPercent }
func memOf(p model.ProcessInfo) float64 { return p.MemoryMB }

func topN(procs []model.ProcessInfo, n int) []model.ProcessInfo {
	if len(procs) <= n {
		return procs
	}
	return procs[:n]
}

func procDetails(procs []model.ProcessInfo) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(procs))
	for _, p := range procs {
		out = append(out, map[string]interface{}{
			"pid": p.PID, "name": p.Name, "cpu": p.CPUPercent,
		})
	}
	return out
}
