package investigate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

// InvestigationResult is the "investigation" section of an AuditRecord.
// ID is a fresh UUID minted per audit record (not per cache entry), so
// external tooling has a stable join key even across repeated cache
// hits for the same fingerprint.
type InvestigationResult struct {
	ID         string `json:"id"`
	Analysis   string `json:"analysis"`
	Cached     bool   `json:"cached"`
	CacheCount int    `json:"cache_count"`
}

// eventJSON mirrors the "event" section's field set, which is a subset
// of model.AnomalyEvent renamed to match spec.md §4.9's audit shape
// (event_timestamp rather than timestamp, to disambiguate from the
// record's own top-level timestamp).
type eventJSON struct {
	Type           string                 `json:"type"`
	Severity       string                 `json:"severity"`
	Message        string                 `json:"message"`
	EventTimestamp time.Time              `json:"event_timestamp"`
	Details        map[string]interface{} `json:"details"`
}

// systemJSON mirrors the "system" section: a narrow projection of
// model.Snapshot carrying only the fields spec.md §4.9 names.
type systemJSON struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	Load1Min      float64 `json:"load_1min"`
	ProcessCount  int     `json:"process_count"`
}

// AuditRecord is one line of the investigations.jsonl log.
type AuditRecord struct {
	Timestamp     time.Time
	Event         model.AnomalyEvent
	System        model.Snapshot
	Investigation InvestigationResult
}

// MarshalJSON renders the record in the exact field layout spec.md §4.9
// specifies, rather than Go's natural struct-field names.
func (r AuditRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Timestamp     time.Time           `json:"timestamp"`
		Event         eventJSON           `json:"event"`
		System        systemJSON          `json:"system"`
		Investigation InvestigationResult `json:"investigation"`
	}{
		Timestamp: r.Timestamp,
		Event: eventJSON{
			Type:           r.Event.Type.String(),
			Severity:       r.Event.Severity.String(),
			Message:        r.Event.Message,
			EventTimestamp: r.Event.Timestamp,
			Details:        r.Event.Details,
		},
		System: systemJSON{
			CPUPercent:    r.System.CPUPercent,
			MemoryPercent: r.System.MemoryPercent,
			MemoryUsedMB:  r.System.MemoryUsedMB,
			Load1Min:      r.System.Load1Min,
			ProcessCount:  r.System.ProcessCount,
		},
		Investigation: r.Investigation,
	})
}

// AuditLog is a line-atomic JSONL append log for investigation records,
// the same append-one-marshaled-line discipline as handler.EventLogger.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLog opens (creating parent directories as needed) the JSONL
// file at path for append.
func NewAuditLog(path string) (*AuditLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("investigation audit log: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("investigation audit log: open: %w", err)
	}
	return &AuditLog{file: f}, nil
}

// Append marshals record and writes it as one line, under a mutex so
// concurrent investigation goroutines never interleave partial lines.
func (a *AuditLog) Append(record AuditRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("investigation audit log: marshal: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.file.Write(data)
	return err
}

// Close closes the underlying file.
func (a *AuditLog) Close() error {
	return a.file.Close()
}
