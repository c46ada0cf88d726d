package model

import (
	"encoding/json"
	"fmt"
)

// AnomalyType is a closed enum of the anomaly categories the Detector
// (and the process watcher) can emit.
type AnomalyType int

const (
	CPUSpike AnomalyType = iota
	MemorySpike
	MemoryLeak
	ProcessCrash
	ProcessRestart
	CrashLoop
	NewProcess
	ProcessDied
	PortChange
	ZombieProcess
	HighLoad
	LogError
)

var anomalyTypeNames = [...]string{
	"cpu_spike",
	"memory_spike",
	"memory_leak",
	"process_crash",
	"process_restart",
	"crash_loop",
	"new_process",
	"process_died",
	"port_change",
	"zombie_process",
	"high_load",
	"log_error",
}

func (t AnomalyType) String() string {
	if int(t) < 0 || int(t) >= len(anomalyTypeNames) {
		return fmt.Sprintf("anomaly_type(%d)", int(t))
	}
	return anomalyTypeNames[t]
}

// ParseAnomalyType parses the stable string form. Unknown strings are a
// hard error, mirroring Severity's parse strictness.
func ParseAnomalyType(s string) (AnomalyType, error) {
	for i, name := range anomalyTypeNames {
		if name == s {
			return AnomalyType(i), nil
		}
	}
	return 0, fmt.Errorf("model: unknown anomaly type %q", s)
}

func (t AnomalyType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *AnomalyType) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseAnomalyType(str)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
