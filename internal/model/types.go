// Package model defines the data types shared across uatu's components:
// point-in-time system snapshots, process info, anomaly events, allowlist
// entries, and cached investigation results. These types are serialized to
// JSON for the event log, the investigation log, the allowlist file, and
// the investigation cache.
package model

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// maxTopProcesses bounds how many processes a Snapshot keeps per ranking.
const maxTopProcesses = 10

// ProcessInfo describes a single process at snapshot time.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	User       string  `json:"user"`
	CPUPercent float64 `json:"cpu_percent"`
	MemoryMB   float64 `json:"memory_mb"`
	State      string  `json:"state"`
}

// IsZombie reports whether the process state indicates a zombie, matching
// either the single-letter procfs state code "Z" or a textual "zombie"
// reported by alternate process sources.
func (p ProcessInfo) IsZombie() bool {
	s := strings.ToUpper(strings.TrimSpace(p.State))
	return s == "Z" || strings.Contains(s, "ZOMBIE")
}

// Snapshot is a single point-in-time measurement of host resource usage.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`

	Load1Min  float64 `json:"load_1min"`
	Load5Min  float64 `json:"load_5min"`
	Load15Min float64 `json:"load_15min"`

	ProcessCount int `json:"process_count"`

	TopCPUProcesses    []ProcessInfo `json:"top_cpu_processes"`
	TopMemoryProcesses []ProcessInfo `json:"top_memory_processes"`

	ListeningPorts PortSet `json:"listening_ports"`
}

// PortSet is a set of listening TCP/UDP ports. Membership is O(1); the
// JSON form is always a sorted array for deterministic output.
type PortSet map[uint16]struct{}

// NewPortSet builds a PortSet from a (possibly duplicated, unordered) slice.
func NewPortSet(ports []uint16) PortSet {
	s := make(PortSet, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether port is a member of the set.
func (s PortSet) Has(port uint16) bool {
	_, ok := s[port]
	return ok
}

// Sorted returns the set's members in ascending order.
func (s PortSet) Sorted() []uint16 {
	out := make([]uint16, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s PortSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *PortSet) UnmarshalJSON(data []byte) error {
	var ports []uint16
	if err := json.Unmarshal(data, &ports); err != nil {
		return err
	}
	*s = NewPortSet(ports)
	return nil
}

// NewSnapshot builds a Snapshot, normalizing the top-process rankings and
// the listening-port list per the invariants: each ranking is deduplicated
// by PID, sorted descending by its metric, and capped at maxTopProcesses;
// ports are deduplicated and sorted ascending.
func NewSnapshot(ts time.Time, cpuPct, memPct, memUsedMB, memTotalMB float64, load1, load5, load15 float64, processCount int, topCPU, topMem []ProcessInfo, ports []uint16) Snapshot {
	return Snapshot{
		Timestamp:          ts,
		CPUPercent:         cpuPct,
		MemoryPercent:      memPct,
		MemoryUsedMB:       memUsedMB,
		MemoryTotalMB:      memTotalMB,
		Load1Min:           load1,
		Load5Min:           load5,
		Load15Min:          load15,
		ProcessCount:       processCount,
		TopCPUProcesses:    dedupeTop(topCPU, func(p ProcessInfo) float64 { return p.CPUPercent }),
		TopMemoryProcesses: dedupeTop(topMem, func(p ProcessInfo) float64 { return p.MemoryMB }),
		ListeningPorts:     NewPortSet(ports),
	}
}

// dedupeTop removes duplicate PIDs (keeping the first occurrence), sorts
// descending by the given metric, and caps the result at maxTopProcesses.
func dedupeTop(procs []ProcessInfo, metric func(ProcessInfo) float64) []ProcessInfo {
	seen := make(map[int32]bool, len(procs))
	out := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if seen[p.PID] {
			continue
		}
		seen[p.PID] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return metric(out[i]) > metric(out[j])
	})
	if len(out) > maxTopProcesses {
		out = out[:maxTopProcesses]
	}
	return out
}

// AnomalyEvent is a single detected anomaly, as emitted by a Watcher or the
// Detector and fanned out over the Event Bus.
type AnomalyEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      AnomalyType            `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// WatcherHistoryCapacity is the fixed size of a WatcherState's ring buffer.
const WatcherHistoryCapacity = 100

// WatcherState is a single Watcher's accumulated state: the learned
// baseline, the most recent sample, a bounded history of past samples,
// and a per-process last-seen index used for crash/restart detection.
//
// Invariant: History is ordered by Timestamp ascending; Current equals
// the last element of History whenever History is non-empty.
type WatcherState struct {
	Baseline *Snapshot `json:"baseline,omitempty"`
	Current  *Snapshot `json:"current,omitempty"`

	History []Snapshot `json:"history"`

	ProcessLastSeen map[int32]time.Time `json:"process_last_seen"`
}

// NewWatcherState returns an empty WatcherState ready for use.
func NewWatcherState() *WatcherState {
	return &WatcherState{
		History:         make([]Snapshot, 0, WatcherHistoryCapacity),
		ProcessLastSeen: make(map[int32]time.Time),
	}
}

// PushHistory appends snap to History, evicting the oldest entry once the
// ring buffer reaches WatcherHistoryCapacity, and sets Current to snap.
func (s *WatcherState) PushHistory(snap Snapshot) {
	if len(s.History) >= WatcherHistoryCapacity {
		s.History = append(s.History[1:], snap)
	} else {
		s.History = append(s.History, snap)
	}
	cur := snap
	s.Current = &cur
}

// AllowlistEntryType distinguishes how an AllowlistEntry's Pattern is
// matched against a candidate command.
type AllowlistEntryType string

const (
	// AllowlistBase matches against a command's first whitespace-delimited
	// token only (e.g. "top" matches "top -b -n1").
	AllowlistBase AllowlistEntryType = "base"
	// AllowlistExact matches the full command string verbatim.
	AllowlistExact AllowlistEntryType = "exact"
	// AllowlistPrefix matches any command that starts with Pattern.
	AllowlistPrefix AllowlistEntryType = "prefix"
)

// AllowlistEntry is one approved command pattern in the Allowlist Store.
type AllowlistEntry struct {
	Pattern string             `json:"pattern"`
	Type    AllowlistEntryType `json:"type"`
	Added   time.Time          `json:"added"`
}

// InvestigationCacheEntry is a cached investigation result, keyed
// externally by the fingerprint the Investigation Cache computes from the
// triggering event's type and message.
type InvestigationCacheEntry struct {
	Key          string    `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	EventMessage string    `json:"event_message"`
	Analysis     string    `json:"analysis"`
	Count        int       `json:"count"`
}
