package gate

import (
	"context"
	"testing"
)

func TestNetworkGateAllowsNonNetworkTool(t *testing.T) {
	g := NewNetworkGate(NewHostAllowlist(), Options{}, nil)
	d := g.DecideURL(context.Background(), "ReadFile", "not-a-url", "")
	if !d.Allow {
		t.Errorf("expected allow for a non-network tool, got %+v", d)
	}
}

func TestNetworkGateAutoAllowsAllowlistedHost(t *testing.T) {
	hosts := NewHostAllowlist()
	hosts.add("example.com")
	g := NewNetworkGate(hosts, Options{}, nil)
	d := g.DecideURL(context.Background(), "WebFetch", "https://example.com/status", "")
	if !d.Allow {
		t.Errorf("expected auto-allow for an allowlisted host, got %+v", d)
	}
}

func TestNetworkGateDeniesUnknownHostWithoutCallback(t *testing.T) {
	g := NewNetworkGate(NewHostAllowlist(), Options{}, nil)
	d := g.DecideURL(context.Background(), "WebFetch", "https://unknown.example", "")
	if d.Allow {
		t.Errorf("expected deny with no approval callback, got %+v", d)
	}
}

func TestNetworkGateReadOnlyDenies(t *testing.T) {
	g := NewNetworkGate(NewHostAllowlist(), Options{ReadOnly: true}, func(ctx context.Context, d, h string) (bool, bool, error) {
		return true, true, nil
	})
	d := g.DecideURL(context.Background(), "WebFetch", "https://example.com", "")
	if d.Allow {
		t.Errorf("expected deny under read-only mode, got %+v", d)
	}
}

func TestNetworkGateApprovalAddsHost(t *testing.T) {
	hosts := NewHostAllowlist()
	g := NewNetworkGate(hosts, Options{}, func(ctx context.Context, d, h string) (bool, bool, error) {
		return true, true, nil
	})
	d := g.DecideURL(context.Background(), "WebFetch", "https://new.example/data", "")
	if !d.Allow {
		t.Fatalf("expected allow, got %+v", d)
	}
	if !hosts.isAllowed("new.example") {
		t.Error("expected the approved host to be added to the allowlist")
	}
}
