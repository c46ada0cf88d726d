// Package gate implements the Permission Gate: the sole security
// boundary between an investigation's tool calls and the host. Every
// tool invocation is decided by Gate.Decide before it runs.
package gate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/fractalops/uatu/internal/allowlist"
	"github.com/fractalops/uatu/internal/telemetry"
)

// Decision is the outcome of Decide.
type Decision struct {
	Allow   bool
	Reason  string
	Message string
}

func allow(message string) Decision { return Decision{Allow: true, Message: message} }
func deny(reason string) Decision   { return Decision{Allow: false, Reason: reason} }

// blockedNetworkSet is BLOCKED_NETWORK_SET from spec.md §4.11.
var blockedNetworkSet = map[string]bool{
	"curl": true, "wget": true, "nc": true, "ssh": true,
	"scp": true, "rsync": true, "ftp": true, "telnet": true,
}

// suspiciousPatterns is SUSPICIOUS_PATTERNS from spec.md §4.11, compiled
// once at init rather than per Decide call.
var suspiciousPatterns = compileSuspiciousPatterns()

func compileSuspiciousPatterns() []*regexp.Regexp {
	raw := []string{
		`\|.*curl`, `\|.*wget`, `\|.*nc\b`, `\|.*ssh`,
		`grep.*password`, `grep.*secret`, `grep.*key`,
		`base64`, `xxd`, `\$\(`,
	}
	out := make([]*regexp.Regexp, len(raw))
	for i, p := range raw {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// ApprovalCallback requests a human decision for (description, command).
// It returns (approved, addToAllowlist). Calls are serialized by Gate
// so only one prompt is ever visible at a time.
type ApprovalCallback func(ctx context.Context, description, command string) (approved, addToAllowlist bool, err error)

// Options configures a Gate's environment-derived switches.
type Options struct {
	ReadOnly        bool
	AllowNetwork    bool
	RequireApproval bool
}

// Gate is the command-tool Permission Gate (§4.11). Network-tool gating
// is the separate NetworkGate type, which shares Options and Decision;
// see NetworkGate.DecideURL.
type Gate struct {
	allowlist *allowlist.Store
	opts      Options
	approve   ApprovalCallback
	metrics   *telemetry.Metrics

	// promptMu serializes approval callback invocations so only one
	// user-visible prompt is ever outstanding at a time, per spec.md §5.
	promptMu sync.Mutex
}

// New constructs a Gate. approve may be nil, meaning any command that
// reaches step 6 is denied for lack of a callback. metrics may be nil
// to skip instrumentation.
func New(store *allowlist.Store, opts Options, approve ApprovalCallback, metrics *telemetry.Metrics) *Gate {
	return &Gate{allowlist: store, opts: opts, approve: approve, metrics: metrics}
}

func baseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isBashTool(toolName string) bool {
	return strings.Contains(strings.ToLower(toolName), "bash")
}

// Decide evaluates the 7-step decision procedure of spec.md §4.11
// against a shell command, failing closed on any internal error.
func (g *Gate) Decide(ctx context.Context, toolName, command, description string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = deny("internal error")
		}
		if g.metrics != nil {
			outcome := "deny"
			if d.Allow {
				outcome = "allow"
			}
			g.metrics.GateDecisionsTotal.WithLabelValues(outcome).Inc()
		}
	}()

	// Step 1: non-bash tools are always allowed.
	if !isBashTool(toolName) {
		return allow("")
	}

	// Step 2: read-only mode denies every bash command unconditionally.
	if g.opts.ReadOnly {
		return deny("bash disabled by read-only mode")
	}

	// Step 3: blocked network commands, unless explicitly overridden.
	base := baseCommand(command)
	if blockedNetworkSet[base] {
		if !g.opts.AllowNetwork {
			return deny(fmt.Sprintf("network command '%s' blocked", base))
		}
		// Falls through to step 4; nothing is logged and the Decision
		// carries no warning.
	}

	// Step 4: suspicious patterns force user approval, skipping the
	// allowlist auto-allow in step 5 entirely.
	suspicious := false
	for _, re := range suspiciousPatterns {
		if re.MatchString(command) {
			suspicious = true
			break
		}
	}

	// Step 5: allowlist auto-allow, only reachable when nothing in step 4 fired.
	if !suspicious && !g.opts.RequireApproval && g.allowlist != nil && g.allowlist.IsAllowed(command) {
		return allow("auto-allowed (allowlisted)")
	}

	// Step 6: no callback configured denies by default.
	if g.approve == nil {
		return deny("no approval callback")
	}

	// Step 7: serialized approval prompt.
	g.promptMu.Lock()
	approved, addToAllowlist, err := g.approve(ctx, description, command)
	g.promptMu.Unlock()
	if err != nil {
		return deny("internal error")
	}
	if !approved {
		return deny("user declined")
	}

	message := "Command allowed"
	if addToAllowlist {
		if err := g.allowlist.Add(command, ""); err != nil {
			return deny("internal error")
		}
		message = "Command allowed and added to allowlist"
	}
	return allow(message)
}
