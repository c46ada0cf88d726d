// uatu — host-resident system-observation daemon and LLM-backed
// troubleshooting agent.
//
// Samples CPU, memory, load, and the process table; detects anomalies
// against a learned baseline; and, on request, hands anomalies off to
// an LLM provider for root-cause analysis under a permission-gated
// tool surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "uatu",
		Short: "Host-resident system-observation daemon and troubleshooting agent",
		Long: `uatu — single Go binary watching a host's vital signs.

Samples CPU, memory, load, and the process table against a learned
baseline, detects anomalies, and optionally investigates them with an
LLM provider under a permission-gated tool surface.`,
		Version: version,
	}

	rootCmd.AddCommand(
		newWatchCmd(),
		newEventsCmd(),
		newInvestigationsCmd(),
		newAllowlistCmd(),
		newGateServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if err == errInterrupted {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

// errInterrupted is returned by RunE bodies that exit because of a
// user interrupt (SIGINT), so main can report exit code 130 per
// spec.md §6 rather than the generic 1.
var errInterrupted = fmt.Errorf("interrupted")
