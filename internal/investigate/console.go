package investigate

import (
	"fmt"
	"io"
	"os"

	"github.com/fractalops/uatu/internal/model"
)

const (
	consoleReset = "\033[0m"
	consoleBold  = "\033[1m"
	consoleCyan  = "\033[36m"
)

// ConsoleReporter prints a short, human-readable investigation summary,
// colored in the same bare-ANSI style as handler.ConsoleHandler.
type ConsoleReporter struct {
	w io.Writer
}

// NewConsoleReporter builds a ConsoleReporter writing to w; a nil w
// defaults to os.Stdout.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleReporter{w: w}
}

// Report renders one investigation's outcome.
func (c *ConsoleReporter) Report(event model.AnomalyEvent, analysis string, cached bool, cacheCount int) {
	origin := "investigated"
	if cached {
		origin = fmt.Sprintf("cached, seen %d times", cacheCount)
	}
	fmt.Fprintf(c.w, "%s%s[investigation] %s (%s)%s\n%s\n\n",
		consoleBold, consoleCyan, event.Message, origin, consoleReset, analysis)
}
