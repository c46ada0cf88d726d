package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

type fakeProbe struct {
	snap  model.Snapshot
	procs []model.ProcessInfo
	data  []byte
	err   error
}

func (f *fakeProbe) Sample(ctx context.Context) (model.Snapshot, error) { return f.snap, f.err }
func (f *fakeProbe) ListProcesses(ctx context.Context, filter probe.ProcessFilter) ([]model.ProcessInfo, error) {
	return f.procs, f.err
}
func (f *fakeProbe) ReadKernelPath(path string) ([]byte, error) { return f.data, f.err }

// --- getArgs / stringArg / floatArg helpers ---

func TestGetArgs_NilArguments(t *testing.T) {
	req := mcp.CallToolRequest{}
	args := getArgs(req)
	if args == nil {
		t.Fatal("getArgs returned nil, expected empty map")
	}
	if len(args) != 0 {
		t.Fatalf("expected empty map, got %v", args)
	}
}

func TestGetArgs_ValidMap(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"key": "value",
			},
		},
	}
	args := getArgs(req)
	if v, ok := args["key"]; !ok || v != "value" {
		t.Fatalf("expected key=value, got %v", args)
	}
}

func TestGetArgs_WrongType(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: "not a map",
		},
	}
	args := getArgs(req)
	if len(args) != 0 {
		t.Fatalf("expected empty map for wrong type, got %v", args)
	}
}

func TestStringArg_Present(t *testing.T) {
	args := map[string]interface{}{"name": "hello"}
	if got := stringArg(args, "name", "default"); got != "hello" {
		t.Fatalf("expected 'hello', got %q", got)
	}
}

func TestStringArg_Missing(t *testing.T) {
	args := map[string]interface{}{}
	if got := stringArg(args, "name", "default"); got != "default" {
		t.Fatalf("expected 'default', got %q", got)
	}
}

func TestFloatArg_Present(t *testing.T) {
	args := map[string]interface{}{"min_cpu_percent": 42.5}
	if got := floatArg(args, "min_cpu_percent", 0); got != 42.5 {
		t.Fatalf("expected 42.5, got %v", got)
	}
}

func TestFloatArg_Missing(t *testing.T) {
	args := map[string]interface{}{}
	if got := floatArg(args, "min_cpu_percent", 7); got != 7 {
		t.Fatalf("expected default 7, got %v", got)
	}
}

// --- newTextResult / errResult ---

func TestNewTextResult(t *testing.T) {
	result := newTextResult("hello world")
	if result.IsError {
		t.Fatal("newTextResult should not set IsError")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok || tc.Text != "hello world" {
		t.Fatalf("expected TextContent 'hello world', got %+v", result.Content[0])
	}
}

func TestErrResult(t *testing.T) {
	result := errResult("something failed")
	if !result.IsError {
		t.Fatal("errResult should set IsError=true")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok || tc.Text != "something failed" {
		t.Fatalf("expected TextContent 'something failed', got %+v", result.Content[0])
	}
}

// --- handleGetSystemInfo / handleListProcesses / handleReadProcFile ---

func TestHandleGetSystemInfo(t *testing.T) {
	h := &toolHandlers{probe: &fakeProbe{snap: model.Snapshot{CPUPercent: 55, ProcessCount: 120}}}
	res, err := h.handleGetSystemInfo(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success")
	}
	tc := res.Content[0].(mcp.TextContent)
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(tc.Text), &snap); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if snap.CPUPercent != 55 {
		t.Errorf("expected cpu_percent 55, got %v", snap.CPUPercent)
	}
}

func TestHandleListProcesses_AppliesFilterArgs(t *testing.T) {
	var captured probe.ProcessFilter
	p := &fakeProbe{procs: []model.ProcessInfo{{PID: 1, Name: "worker"}}}
	h := &toolHandlers{probe: filterCapturingProbe{fakeProbe: p, captured: &captured}}

	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: map[string]interface{}{
		"min_cpu_percent": 10.0,
		"min_memory_mb":   256.0,
	}}}
	res, err := h.handleListProcesses(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success")
	}
	if captured.MinCPUPercent != 10.0 || captured.MinMemoryMB != 256.0 {
		t.Errorf("expected filter to carry args through, got %+v", captured)
	}
}

type filterCapturingProbe struct {
	*fakeProbe
	captured *probe.ProcessFilter
}

func (f filterCapturingProbe) ListProcesses(ctx context.Context, filter probe.ProcessFilter) ([]model.ProcessInfo, error) {
	*f.captured = filter
	return f.fakeProbe.procs, f.fakeProbe.err
}

func TestHandleReadProcFile_RequiresPath(t *testing.T) {
	h := &toolHandlers{probe: &fakeProbe{}}
	res, err := h.handleReadProcFile(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result when path is missing")
	}
}

func TestHandleReadProcFile_ReturnsContent(t *testing.T) {
	h := &toolHandlers{probe: &fakeProbe{data: []byte("MemTotal: 1000 kB")}}
	req := mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: map[string]interface{}{"path": "/proc/meminfo"}}}
	res, err := h.handleReadProcFile(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := res.Content[0].(mcp.TextContent)
	if tc.Text != "MemTotal: 1000 kB" {
		t.Errorf("expected file content, got %q", tc.Text)
	}
}

// --- handleExplainAnomaly ---

func TestHandleExplainAnomaly_ValidID(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"anomaly_id": "cpu_spike",
			},
		},
	}
	res, err := handleExplainAnomaly(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success, got IsError")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}
	if !strings.Contains(tc.Text, "CPU Spike") {
		t.Errorf("expected 'CPU Spike' in output, got: %s", tc.Text)
	}
}

func TestHandleExplainAnomaly_CoversEveryModelAnomalyType(t *testing.T) {
	for _, at := range []model.AnomalyType{
		model.CPUSpike, model.MemorySpike, model.MemoryLeak, model.ProcessCrash,
		model.ProcessRestart, model.CrashLoop, model.NewProcess, model.ProcessDied,
		model.PortChange, model.ZombieProcess, model.HighLoad, model.LogError,
	} {
		if _, ok := anomalyExplanations[at.String()]; !ok {
			t.Errorf("anomalyExplanations missing entry for %s", at.String())
		}
	}
}

func TestHandleExplainAnomaly_MissingArgument(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{},
		},
	}
	res, err := handleExplainAnomaly(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected IsError for missing anomaly_id")
	}
}

func TestHandleExplainAnomaly_UnknownID(t *testing.T) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: map[string]interface{}{
				"anomaly_id": "unknown_anomaly_xyz",
			},
		},
	}
	res, err := handleExplainAnomaly(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("unknown ID should not be an error, just a fallback message")
	}
	tc := res.Content[0].(mcp.TextContent)
	if !strings.Contains(tc.Text, "No specific explanation") {
		t.Errorf("expected fallback message, got: %s", tc.Text)
	}
}

// --- handleListAnomalies ---

func TestHandleListAnomalies(t *testing.T) {
	req := mcp.CallToolRequest{}
	res, err := handleListAnomalies(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatal("expected success, got IsError")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("expected TextContent")
	}

	var entries []struct {
		ID    string `json:"id"`
		Brief string `json:"brief"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &entries); err != nil {
		t.Fatalf("response is not valid JSON: %v\ntext: %s", err, tc.Text)
	}
	if len(entries) != len(anomalyExplanations) {
		t.Errorf("expected %d entries, got %d", len(anomalyExplanations), len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].ID < entries[i-1].ID {
			t.Errorf("entries not sorted by id: %s < %s", entries[i].ID, entries[i-1].ID)
		}
	}
}

// --- Server creation ---

func TestNewServer(t *testing.T) {
	srv := NewServer("1.0.0-test", &fakeProbe{})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
	if srv.mcpServer == nil {
		t.Fatal("mcpServer is nil")
	}
}
