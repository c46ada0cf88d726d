// Package allowlist implements the Allowlist Store: the set of command
// patterns the Permission Gate auto-approves without a user prompt.
package allowlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fractalops/uatu/internal/model"
)

// safeBaseSet is the read-only monitoring commands auto-detected as
// base-type entries by Add, per spec.md §4.10.
var safeBaseSet = map[string]bool{
	"top": true, "ps": true, "df": true, "free": true, "uptime": true,
	"vm_stat": true, "vmstat": true, "iostat": true, "netstat": true,
	"lsof": true, "who": true, "w": true, "last": true, "dmesg": true,
	"journalctl": true,
}

// ErrEmptyPattern is returned by Add for empty or whitespace-only input.
var ErrEmptyPattern = errors.New("allowlist: pattern cannot be empty")

// Store is a persisted, mutex-guarded set of AllowlistEntry patterns.
type Store struct {
	path string

	mu      sync.Mutex
	entries []model.AllowlistEntry
}

// New constructs a Store persisted at path, loading any existing
// document. A missing or corrupt file yields an empty store, never an
// error, per spec.md §4.10.
func New(path string) *Store {
	s := &Store{path: path}
	s.load()
	return s
}

// DefaultPath returns the conventional per-user allowlist location,
// ~/.config/uatu/allowlist.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("allowlist: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "uatu", "allowlist.json"), nil
}

// baseCommand returns the first whitespace-delimited token of command,
// or "" if command is empty or all whitespace.
func baseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Add inserts pattern into the store. If entryType is "" it is
// auto-selected: a pattern whose base command is in the safe-base set
// is stored as a base-type entry (pattern reduced to that base
// command); otherwise it is stored as an exact-type entry (pattern
// kept in full). Duplicate (pattern, type) insertions are silent
// no-ops.
func (s *Store) Add(pattern string, entryType model.AllowlistEntryType) error {
	if strings.TrimSpace(pattern) == "" {
		return ErrEmptyPattern
	}

	storedPattern := pattern
	storedType := entryType
	if storedType == "" {
		base := baseCommand(pattern)
		if safeBaseSet[base] {
			storedType = model.AllowlistBase
			storedPattern = base
		} else {
			storedType = model.AllowlistExact
			storedPattern = pattern
		}
	}

	s.mu.Lock()
	for _, e := range s.entries {
		if e.Pattern == storedPattern && e.Type == storedType {
			s.mu.Unlock()
			return nil
		}
	}
	s.entries = append(s.entries, model.AllowlistEntry{
		Pattern: storedPattern,
		Type:    storedType,
		Added:   time.Now(),
	})
	s.mu.Unlock()

	return s.save()
}

// Remove deletes every entry whose Pattern equals pattern, regardless
// of type. It reports whether at least one entry matched.
func (s *Store) Remove(pattern string) (bool, error) {
	s.mu.Lock()
	kept := s.entries[:0:0]
	removed := false
	for _, e := range s.entries {
		if e.Pattern == pattern {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.mu.Unlock()

	if !removed {
		return false, nil
	}
	return true, s.save()
}

// Clear empties the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
	return s.save()
}

// Entries returns a snapshot copy of the current entries.
func (s *Store) Entries() []model.AllowlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AllowlistEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// IsAllowed reports whether cmd matches any stored entry, per spec.md
// §4.10's per-type matching rules.
func (s *Store) IsAllowed(cmd string) bool {
	if strings.TrimSpace(cmd) == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		switch e.Type {
		case model.AllowlistBase:
			if baseCommand(cmd) == e.Pattern {
				return true
			}
		case model.AllowlistExact:
			if cmd == e.Pattern {
				return true
			}
		case model.AllowlistPrefix:
			if cmd == e.Pattern || strings.HasPrefix(cmd, e.Pattern+" ") {
				return true
			}
		}
	}
	return false
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var onDisk struct {
		Commands []model.AllowlistEntry `json:"commands"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return
	}
	s.mu.Lock()
	s.entries = onDisk.Commands
	s.mu.Unlock()
}

func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("allowlist: mkdir: %w", err)
	}

	s.mu.Lock()
	snapshot := struct {
		Commands []model.AllowlistEntry `json:"commands"`
	}{Commands: append([]model.AllowlistEntry(nil), s.entries...)}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("allowlist: marshal: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("allowlist: write: %w", err)
	}
	return os.Rename(tmp, s.path)
}
