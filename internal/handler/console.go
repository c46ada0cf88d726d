package handler

import (
	"fmt"
	"io"
	"os"

	"github.com/fractalops/uatu/internal/model"
)

// ANSI color codes, grounded on original_source/uatu/ui/console.py's
// rich-based severity coloring; the pack carries no rich analog, so
// ConsoleHandler falls back to bare ANSI escapes the way melisai's own
// ambient fmt-based logging already implies (a deliberate stdlib
// choice — see DESIGN.md).
const (
	colorReset   = "\033[0m"
	colorBlue    = "\033[34m"
	colorYellow  = "\033[33m"
	colorBoldRed = "\033[1;31m"
)

// ConsoleHandler renders a one-line colored status per event to an
// io.Writer (stderr by default). It never returns an error: a failing
// write is swallowed, matching spec.md §4.7's "never fails loudly."
type ConsoleHandler struct {
	w io.Writer
}

// NewConsoleHandler constructs a ConsoleHandler writing to w. A nil w
// defaults to os.Stderr.
func NewConsoleHandler(w io.Writer) *ConsoleHandler {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleHandler{w: w}
}

// OnEvent prints event to the console. ERROR renders identically to
// WARNING (spec.md §9 Open Questions).
func (c *ConsoleHandler) OnEvent(event model.AnomalyEvent) error {
	color := colorBlue
	switch event.Severity {
	case model.SeverityWarning, model.SeverityError:
		color = colorYellow
	case model.SeverityCritical:
		color = colorBoldRed
	}
	_, _ = fmt.Fprintf(c.w, "%s[%s] %s: %s%s\n",
		color, event.Severity.String(), event.Type.String(), event.Message, colorReset)
	return nil
}
