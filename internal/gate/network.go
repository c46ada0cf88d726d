package gate

import (
	"context"
	"net/url"
	"strings"
)

// NetworkGate mirrors Gate's decision procedure for tools that reach
// out over the network, keyed by destination hostname rather than
// command base, per spec.md §4.11's "parallel but structurally
// identical gate."
type NetworkGate struct {
	hosts   *hostAllowlist
	opts    Options
	approve NetworkApprovalCallback
}

// NetworkApprovalCallback requests a human decision for an outbound
// network call to host.
type NetworkApprovalCallback func(ctx context.Context, description, host string) (approved, addToAllowlist bool, err error)

// NewNetworkGate constructs a NetworkGate over a hostname allowlist.
func NewNetworkGate(store *hostAllowlist, opts Options, approve NetworkApprovalCallback) *NetworkGate {
	return &NetworkGate{hosts: store, opts: opts, approve: approve}
}

// DecideURL extracts the hostname from rawURL and runs it through the
// steps of Gate.Decide that apply to a host: non-network tools are
// allowed, read-only mode denies, an allowlisted host is auto-allowed,
// and otherwise the approval callback decides. It has no blocked-command
// or suspicious-pattern step, and approval calls are not serialized.
func (g *NetworkGate) DecideURL(ctx context.Context, toolName, rawURL, description string) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = deny("internal error")
		}
	}()

	if !isNetworkTool(toolName) {
		return allow("")
	}
	if g.opts.ReadOnly {
		return deny("network tools disabled by read-only mode")
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return deny("could not determine destination host")
	}
	host := u.Hostname()

	if !g.opts.RequireApproval && g.hosts != nil && g.hosts.isAllowed(host) {
		return allow("auto-allowed (allowlisted host)")
	}

	if g.approve == nil {
		return deny("no approval callback")
	}

	approved, addToAllowlist, err := g.approve(ctx, description, host)
	if err != nil {
		return deny("internal error")
	}
	if !approved {
		return deny("user declined")
	}

	message := "Host allowed"
	if addToAllowlist && g.hosts != nil {
		g.hosts.add(host)
		message = "Host allowed and added to allowlist"
	}
	return allow(message)
}

func isNetworkTool(toolName string) bool {
	lower := strings.ToLower(toolName)
	for _, marker := range []string{"http", "fetch", "web", "net"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// hostAllowlist is a tiny in-memory hostname set; its entries are not
// persisted and do not survive a restart.
type hostAllowlist struct {
	hosts map[string]bool
}

// NewHostAllowlist constructs an empty hostname allowlist.
func NewHostAllowlist() *hostAllowlist {
	return &hostAllowlist{hosts: make(map[string]bool)}
}

func (h *hostAllowlist) isAllowed(host string) bool {
	if h == nil {
		return false
	}
	return h.hosts[host]
}

func (h *hostAllowlist) add(host string) {
	h.hosts[host] = true
}
