package main

import (
	"os"
	"strings"
	"testing"
)

func TestTailLinesMissingFileReturnsNilNoError(t *testing.T) {
	lines, err := tailLines(t.TempDir()+"/does-not-exist.jsonl", 10)
	if err != nil {
		t.Fatalf("tailLines: %v", err)
	}
	if lines != nil {
		t.Errorf("expected nil lines, got %v", lines)
	}
}

func TestTailLinesReturnsAllWhenFewerThanN(t *testing.T) {
	path := t.TempDir() + "/events.jsonl"
	content := "one\ntwo\nthree\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := tailLines(path, 10)
	if err != nil {
		t.Fatalf("tailLines: %v", err)
	}
	want := []string{"one", "two", "three"}
	if !equalStrings(lines, want) {
		t.Errorf("tailLines = %v, want %v", lines, want)
	}
}

func TestTailLinesTruncatesToLastN(t *testing.T) {
	path := t.TempDir() + "/events.jsonl"
	content := strings.Join([]string{"one", "two", "three", "four", "five"}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := tailLines(path, 2)
	if err != nil {
		t.Fatalf("tailLines: %v", err)
	}
	want := []string{"four", "five"}
	if !equalStrings(lines, want) {
		t.Errorf("tailLines = %v, want %v", lines, want)
	}
}

func TestTailLinesSkipsBlankLines(t *testing.T) {
	path := t.TempDir() + "/events.jsonl"
	content := "one\n\ntwo\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines, err := tailLines(path, 10)
	if err != nil {
		t.Fatalf("tailLines: %v", err)
	}
	want := []string{"one", "two"}
	if !equalStrings(lines, want) {
		t.Errorf("tailLines = %v, want %v", lines, want)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
