package allowlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fractalops/uatu/internal/model"
)

func TestAddAutoDetectsBaseType(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	if err := s.Add("top -bn1", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Type != model.AllowlistBase || entries[0].Pattern != "top" {
		t.Errorf("entry = %+v, want base type with pattern 'top'", entries[0])
	}
	if !s.IsAllowed("top") {
		t.Error("expected 'top' to be allowed")
	}
	if !s.IsAllowed("top -bn2") {
		t.Error("expected 'top -bn2' to be allowed via base match")
	}
	if s.IsAllowed("ps") {
		t.Error("expected 'ps' not to be allowed")
	}
}

func TestAddAutoDetectsExactTypeForUnsafeCommand(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	if err := s.Add("curl http://example.com", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	entries := s.Entries()
	if entries[0].Type != model.AllowlistExact || entries[0].Pattern != "curl http://example.com" {
		t.Errorf("entry = %+v, want exact type with the full command", entries[0])
	}
	if s.IsAllowed("curl http://example.com/other") {
		t.Error("exact match should not allow a different suffix")
	}
	if !s.IsAllowed("curl http://example.com") {
		t.Error("exact match should allow the identical command")
	}
}

func TestAddIsIdempotentForDuplicatePatternAndType(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	if err := s.Add("top", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("top", ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(s.Entries()) != 1 {
		t.Errorf("entries = %d, want 1 (duplicate insert should be a no-op)", len(s.Entries()))
	}
}

func TestAddRejectsEmptyPattern(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	if err := s.Add("   ", ""); err != ErrEmptyPattern {
		t.Errorf("err = %v, want ErrEmptyPattern", err)
	}
}

func TestRemoveReportsWhetherItMatched(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	_ = s.Add("top", "")

	removed, err := s.Remove("top")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Error("expected Remove to report true")
	}
	if s.IsAllowed("top") {
		t.Error("expected 'top' to no longer be allowed")
	}

	removed, err = s.Remove("top")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Error("expected second Remove to report false")
	}
}

func TestClearEmptiesStore(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	_ = s.Add("top", "")
	_ = s.Add("ps", "")
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Errorf("entries = %d, want 0 after Clear", len(s.Entries()))
	}
}

func TestPrefixTypeMatchesOnBoundary(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "allowlist.json"))
	if err := s.Add("journalctl -u nginx", model.AllowlistPrefix); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !s.IsAllowed("journalctl -u nginx") {
		t.Error("exact-length prefix match should be allowed")
	}
	if !s.IsAllowed("journalctl -u nginx --since today") {
		t.Error("prefix followed by space should be allowed")
	}
	if s.IsAllowed("journalctl -u nginx-other") {
		t.Error("prefix without a following space boundary should not match")
	}
}

func TestPersistenceRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.json")
	s1 := New(path)
	_ = s1.Add("top", "")

	s2 := New(path)
	if !s2.IsAllowed("top -bn1") {
		t.Error("expected the reloaded store to retain the persisted entry")
	}
}

func TestCorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowlist.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(path)
	if s.IsAllowed("anything") {
		t.Error("expected an empty store for a corrupt file")
	}
}
