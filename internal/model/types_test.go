package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSnapshotJSON(t *testing.T) {
	snap := NewSnapshot(
		time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		42.5, 63.1, 4096, 8192,
		1.2, 0.9, 0.7,
		128,
		[]ProcessInfo{
			{PID: 100, Name: "app", CPUPercent: 90, MemoryMB: 200, State: "R"},
			{PID: 101, Name: "worker", CPUPercent: 10, MemoryMB: 50, State: "S"},
		},
		[]ProcessInfo{
			{PID: 100, Name: "app", CPUPercent: 90, MemoryMB: 200, State: "R"},
		},
		[]uint16{8080, 22},
	)

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.CPUPercent != 42.5 {
		t.Errorf("cpu_percent = %v, want 42.5", decoded.CPUPercent)
	}
	sorted := decoded.ListeningPorts.Sorted()
	if len(sorted) != 2 || sorted[0] != 22 {
		t.Errorf("listening_ports = %v, want [22 8080]", sorted)
	}
}

func TestNewSnapshotDedupesAndCapsTopProcesses(t *testing.T) {
	var top []ProcessInfo
	for i := 0; i < 15; i++ {
		top = append(top, ProcessInfo{PID: int32(i), CPUPercent: float64(i)})
	}
	// Duplicate PID 14 with a lower value; first occurrence should be kept.
	top = append(top, ProcessInfo{PID: 14, CPUPercent: 1})

	snap := NewSnapshot(time.Now(), 0, 0, 0, 0, 0, 0, 0, 0, top, nil, nil)

	if len(snap.TopCPUProcesses) != maxTopProcesses {
		t.Fatalf("top cpu processes len = %d, want %d", len(snap.TopCPUProcesses), maxTopProcesses)
	}
	if snap.TopCPUProcesses[0].PID != 14 || snap.TopCPUProcesses[0].CPUPercent != 14 {
		t.Errorf("top process = %+v, want highest-cpu PID 14 at 14%%", snap.TopCPUProcesses[0])
	}
}

func TestNewSnapshotSortsAndDedupesPorts(t *testing.T) {
	snap := NewSnapshot(time.Now(), 0, 0, 0, 0, 0, 0, 0, 0, nil, nil,
		[]uint16{443, 80, 443, 22})

	got := snap.ListeningPorts.Sorted()
	want := []uint16{22, 80, 443}
	if len(got) != len(want) {
		t.Fatalf("ports = %v, want %v", got, want)
	}
	for i, p := range want {
		if got[i] != p {
			t.Errorf("ports[%d] = %d, want %d", i, got[i], p)
		}
	}
}

func TestProcessInfoIsZombie(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{"Z", true},
		{"z", true},
		{"zombie", true},
		{"Zombie", true},
		{"R", false},
		{"S", false},
		{"", false},
	}
	for _, tt := range tests {
		p := ProcessInfo{State: tt.state}
		if got := p.IsZombie(); got != tt.want {
			t.Errorf("IsZombie(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestSeverityParseAndString(t *testing.T) {
	for _, s := range []Severity{SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		parsed, err := ParseSeverity(s.String())
		if err != nil {
			t.Fatalf("ParseSeverity(%q): %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("round trip %v -> %q -> %v", s, s.String(), parsed)
		}
	}
	if _, err := ParseSeverity("bogus"); err == nil {
		t.Error("expected error for unknown severity")
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !SeverityWarning.Less(SeverityError) {
		t.Error("warning should be less urgent than error")
	}
	if !SeverityCritical.AtLeast(SeverityError) {
		t.Error("critical should be at least error")
	}
	if SeverityInfo.AtLeast(SeverityWarning) {
		t.Error("info should not be at least warning")
	}
}

func TestAnomalyTypeParseAndString(t *testing.T) {
	for _, at := range []AnomalyType{CPUSpike, MemoryLeak, ZombieProcess, LogError} {
		parsed, err := ParseAnomalyType(at.String())
		if err != nil {
			t.Fatalf("ParseAnomalyType(%q): %v", at.String(), err)
		}
		if parsed != at {
			t.Errorf("round trip %v -> %q -> %v", at, at.String(), parsed)
		}
	}
	if _, err := ParseAnomalyType("not_a_type"); err == nil {
		t.Error("expected error for unknown anomaly type")
	}
}

func TestWatcherStatePushHistoryEvicts(t *testing.T) {
	ws := NewWatcherState()
	base := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	for i := 0; i < WatcherHistoryCapacity+10; i++ {
		ws.PushHistory(Snapshot{Timestamp: base.Add(time.Duration(i) * time.Second)})
	}
	if len(ws.History) != WatcherHistoryCapacity {
		t.Fatalf("history len = %d, want %d", len(ws.History), WatcherHistoryCapacity)
	}
	if ws.Current == nil || !ws.Current.Timestamp.Equal(ws.History[len(ws.History)-1].Timestamp) {
		t.Error("current must equal the last history element")
	}
	if !ws.History[0].Timestamp.Equal(base.Add(10 * time.Second)) {
		t.Errorf("oldest surviving entry = %v, want %v", ws.History[0].Timestamp, base.Add(10*time.Second))
	}
}

func TestAnomalyEventJSON(t *testing.T) {
	ev := AnomalyEvent{
		Timestamp: time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		Type:      CPUSpike,
		Severity:  SeverityWarning,
		Message:   "CPU at 91.2% (baseline 40.0%)",
		Details:   map[string]interface{}{"cpu_percent": 91.2},
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded AnomalyEvent
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != CPUSpike || decoded.Severity != SeverityWarning {
		t.Errorf("decoded = %+v", decoded)
	}
}
