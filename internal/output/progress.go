// Package output handles report serialization and progress reporting.
package output

import (
	"fmt"
	"os"
	"time"
)

// Progress reports collection status to stderr.
type Progress struct {
	enabled bool
	start   time.Time
}

// NewProgress creates a Progress reporter. Set enabled=false for --quiet mode.
func NewProgress(enabled bool) *Progress {
	return &Progress{
		enabled: enabled,
		start:   time.Now(),
	}
}

// Log prints a progress message to stderr if enabled.
func (p *Progress) Log(format string, args ...interface{}) {
	if !p.enabled {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%s] %s\n", elapsed, msg)
}

// VerboseProgress extends Progress with a Debug level that only prints
// when verbose is set, for cmd/uatu's --verbose flag. Verbose implies
// enabled, even if the caller passed enabled=false.
type VerboseProgress struct {
	Progress
	verbose bool
}

// NewVerboseProgress creates a VerboseProgress reporter. verbose=true
// forces Log output on regardless of enabled.
func NewVerboseProgress(enabled, verbose bool) *VerboseProgress {
	return &VerboseProgress{
		Progress: Progress{enabled: enabled || verbose, start: time.Now()},
		verbose:  verbose,
	}
}

// Debug prints a debug-level message to stderr, only when verbose.
func (p *VerboseProgress) Debug(format string, args ...interface{}) {
	if !p.verbose {
		return
	}
	elapsed := time.Since(p.start).Round(time.Millisecond)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%s] DEBUG: %s\n", elapsed, msg)
}
