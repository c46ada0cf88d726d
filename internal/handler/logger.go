// Package handler implements the four concrete Event Bus handler
// kinds subscribed at startup: a JSONL event logger, a console display,
// a rate limiter, and an investigation dispatcher.
package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fractalops/uatu/internal/model"
)

// EventLogger appends one JSON object per line to a JSONL file,
// creating parent directories as needed. Writes are line-atomic: each
// record is fully marshaled in memory before a single write syscall
// that appends the trailing newline, so a writer never interleaves a
// partial record with another goroutine's, grounded on melisai's
// output.WriteJSON buffered-encoder discipline
// (SetEscapeHTML(false), no HTML-escaping of event messages) adapted
// from whole-document-encode to append-one-line-per-call.
type EventLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewEventLogger opens (creating if necessary) the JSONL file at path
// for appending.
func NewEventLogger(path string) (*EventLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("event logger: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("event logger: open %s: %w", path, err)
	}
	return &EventLogger{file: f}, nil
}

// OnEvent appends event as one JSON line.
func (l *EventLogger) OnEvent(event model.AnomalyEvent) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return fmt.Errorf("event logger: marshal: %w", err)
	}
	data := buf.Bytes() // Encode has already appended the trailing newline

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("event logger: write: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *EventLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
