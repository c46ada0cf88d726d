package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fractalops/uatu/internal/allowlist"
	"github.com/fractalops/uatu/internal/gate"
)

func newGateServeCmd() *cobra.Command {
	var configPath string

	return &cobra.Command{
		Use:   "gate-serve",
		Short: "Start the Permission Gate as a standalone MCP server (stdio)",
		Long: `Starts a JSON-RPC server implementing the Model Context Protocol.
The hosting agent process calls the pre_tool_use tool before every
Bash or network tool invocation; the gate decides allow/deny per
spec.md's seven-step procedure, prompting on the terminal when a
decision needs human approval.

Communication happens over standard input/output (stdio).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			allowlistPath, err := allowlist.DefaultPath()
			if err != nil {
				return err
			}
			store := allowlist.New(allowlistPath)

			opts := gate.Options{
				ReadOnly:        cfg.Permissions.ReadOnly,
				AllowNetwork:    cfg.Permissions.AllowNetwork,
				RequireApproval: cfg.Permissions.RequireApproval,
			}

			g := gate.New(store, opts, terminalApprovalCallback, nil)
			net := gate.NewNetworkGate(gate.NewHostAllowlist(), opts, terminalNetworkApprovalCallback)

			srv := gate.NewServer(version, g, net)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := srv.Start(ctx); err != nil {
				if ctx.Err() != nil {
					return errInterrupted
				}
				return err
			}
			return nil
		},
	}
}

// terminalApprovalCallback prompts the operator on stderr/stdin for a
// one-off allow/deny decision, matching spec.md §5's "a single-slot
// mutex serializes the approval callback" contract from the gate's
// side (serialization itself lives in gate.Gate).
func terminalApprovalCallback(ctx context.Context, description, command string) (approved, addToAllowlist bool, err error) {
	fmt.Fprintf(os.Stderr, "\nApproval requested: %s\n  command: %s\nAllow? [y/N/a=allow+remember] ", description, command)
	return readApprovalResponse()
}

func terminalNetworkApprovalCallback(ctx context.Context, description, host string) (approved, addToAllowlist bool, err error) {
	fmt.Fprintf(os.Stderr, "\nApproval requested: %s\n  host: %s\nAllow? [y/N/a=allow+remember] ", description, host)
	return readApprovalResponse()
}

func readApprovalResponse() (approved, addToAllowlist bool, err error) {
	reader := bufio.NewReader(os.Stdin)
	line, readErr := reader.ReadString('\n')
	if readErr != nil {
		return false, false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, false, nil
	case "a", "allow":
		return true, true, nil
	default:
		return false, false, nil
	}
}
