package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fractalops/uatu/internal/model"
	"github.com/fractalops/uatu/internal/probe"
)

// toolTimeout bounds every tool call against the live Probe.
const toolTimeout = 30 * time.Second

// toolHandlers closes over the Probe the stateful tool handlers read
// from; the stateless tools (explain_anomaly, list_anomalies) are
// plain functions below, matching melisai's mix of method- and
// function-valued tool handlers.
type toolHandlers struct {
	probe probe.Probe
}

func (h *toolHandlers) handleGetSystemInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	snap, err := h.probe.Sample(ctx)
	if err != nil {
		return errResult(fmt.Sprintf("sample failed: %v", err)), nil
	}

	jsonData, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(jsonData)), nil
}

func (h *toolHandlers) handleListProcesses(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	args := getArgs(request)
	filter := probe.ProcessFilter{
		MinCPUPercent: floatArg(args, "min_cpu_percent", 0),
		MinMemoryMB:   floatArg(args, "min_memory_mb", 0),
	}

	procs, err := h.probe.ListProcesses(ctx, filter)
	if err != nil {
		return errResult(fmt.Sprintf("list processes failed: %v", err)), nil
	}
	if procs == nil {
		procs = []model.ProcessInfo{}
	}

	jsonData, err := json.MarshalIndent(procs, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(jsonData)), nil
}

func (h *toolHandlers) handleReadProcFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	path := stringArg(args, "path", "")
	if path == "" {
		return errResult("path is required"), nil
	}

	data, err := h.probe.ReadKernelPath(path)
	if err != nil {
		return errResult(fmt.Sprintf("read failed: %v", err)), nil
	}
	return newTextResult(string(data)), nil
}

// handleExplainAnomaly provides a root-cause explanation for a specific
// anomaly type.
func handleExplainAnomaly(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	anomalyID := stringArg(args, "anomaly_id", "")
	if anomalyID == "" {
		return errResult("anomaly_id is required"), nil
	}

	desc, ok := anomalyExplanations[anomalyID]
	if !ok {
		return newTextResult(fmt.Sprintf(
			"No specific explanation for anomaly %q. Valid IDs: use list_anomalies.",
			anomalyID,
		)), nil
	}
	return newTextResult(desc), nil
}

// handleListAnomalies returns every known anomaly type ID with a brief
// description.
func handleListAnomalies(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type entry struct {
		ID    string `json:"id"`
		Brief string `json:"brief"`
	}

	var entries []entry
	for id, desc := range anomalyExplanations {
		brief := id
		for _, line := range strings.Split(desc, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				brief = strings.ReplaceAll(line, "**", "")
				break
			}
		}
		entries = append(entries, entry{ID: id, Brief: brief})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	jsonData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal failed: %v", err)), nil
	}
	return newTextResult(string(jsonData)), nil
}

// getArgs safely extracts the arguments map from a CallToolRequest.
// Returns an empty map if Arguments is nil or not a map.
func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

// stringArg extracts a string argument with a default value.
func stringArg(args map[string]interface{}, key, defaultVal string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	s, ok := val.(string)
	if !ok || s == "" {
		return defaultVal
	}
	return s
}

// floatArg extracts a numeric argument with a default value.
func floatArg(args map[string]interface{}, key string, defaultVal float64) float64 {
	val, ok := args[key]
	if !ok || val == nil {
		return defaultVal
	}
	f, ok := val.(float64)
	if !ok {
		return defaultVal
	}
	return f
}

// newTextResult creates a successful MCP tool result with text content.
func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: text,
			},
		},
	}
}

// errResult creates an MCP tool error result (IsError=true). This is
// returned as a tool-level error, not a transport-level JSON-RPC error.
func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: msg,
			},
		},
	}
}

// anomalyExplanations maps every model.AnomalyType's string form to a
// root-cause explanation, grounded in structure on melisai's own
// anomalyExplanations table (bold markdown header, Root Causes,
// Recommendations) but written for Uatu's twelve anomaly types rather
// than melisai's USE-method metric IDs.
var anomalyExplanations = map[string]string{
	"cpu_spike": `**CPU Spike**
Current CPU usage exceeds the learned baseline by more than the configured ratio.
**Root Causes:**
- A new compute-intensive workload started
- A runaway process or infinite loop
**Recommendations:**
- Use list_processes to find the top CPU consumers.
- Compare against get_system_info's current reading.`,

	"memory_spike": `**Memory Spike**
Current memory usage exceeds the learned baseline by more than the configured ratio.
**Root Causes:**
- A process allocated a large working set
- A memory leak accelerating rapidly
**Recommendations:**
- Use list_processes with min_memory_mb to find the top consumers.
- Watch for a following memory_leak event confirming sustained growth.`,

	"memory_leak": `**Memory Leak**
Memory usage has grown monotonically across the detector's observation window.
**Root Causes:**
- An application failing to release allocated memory over its lifetime
- Unbounded in-process caching
**Recommendations:**
- Identify the process via list_processes and inspect its memory trend.
- Restart the affected process as a short-term mitigation; track down the leak long-term.`,

	"process_crash": `**Process Crash**
A previously-observed process is no longer present.
**Root Causes:**
- Unhandled exception or signal (SIGSEGV, SIGABRT)
- OOM killer terminated the process
**Recommendations:**
- Check read_proc_file on /proc/sys/kernel or dmesg-equivalent for OOM kill evidence.
- Inspect the process's logs for its exit reason.`,

	"process_restart": `**Process Restart**
A process of the same name reappeared shortly after a crash.
**Root Causes:**
- A supervisor (systemd, supervisord) restarting a crashed service
**Recommendations:**
- Confirm restart count is not accelerating (see crash_loop).
- Investigate the crash's root cause even if the restart succeeded.`,

	"crash_loop": `**Crash Loop**
A process has restarted repeatedly inside a short window — it is not recovering.
**Root Causes:**
- A persistent fault triggered on every startup (bad config, missing dependency)
- Resource exhaustion recurring immediately after restart
**Recommendations:**
- Use list_processes to check whether it is currently up.
- Inspect startup logs; the same failure likely repeats each cycle.`,

	"new_process": `**New Resource-Heavy Process**
A process not previously observed is consuming significant CPU or memory.
**Root Causes:**
- A new deployment or scheduled job started
- An unexpected or unauthorized process
**Recommendations:**
- Use list_processes to identify the process's name, user, and resource usage.
- Verify it is expected before taking action.`,

	"process_died": `**Process Died**
A tracked process is no longer present in the process table.
**Root Causes:**
- Normal termination (job completion)
- Abnormal termination (see process_crash for unexpected exits)
**Recommendations:**
- Cross-reference with process_crash/crash_loop to judge whether this was expected.`,

	"port_change": `**Listening Port Change**
The set of TCP/UDP ports the host is listening on has changed.
**Root Causes:**
- A service started or stopped
- An unexpected process bound a new port
**Recommendations:**
- Use get_system_info to see the current listening port set.
- Cross-reference with list_processes for the owning process.`,

	"zombie_process": `**Zombie Process**
A process has exited but its parent has not reaped its exit status.
**Root Causes:**
- Parent process bug (missing wait()/waitpid() call)
- Parent overwhelmed by a burst of short-lived children
**Recommendations:**
- Use list_processes to identify the parent PID.
- Restarting the parent typically clears its zombie children.`,

	"high_load": `**High Load Average**
The 1-minute load average exceeds the learned baseline by more than the configured ratio.
**Root Causes:**
- CPU saturation (more runnable tasks than CPUs)
- Processes stuck in uninterruptible I/O wait
**Recommendations:**
- Compare against the cpu_spike signal to distinguish CPU- vs I/O-bound load.
- Use list_processes to find the heaviest contributors.`,

	"log_error": `**Log Error Pattern**
An error-level pattern was observed in monitored log output.
**Root Causes:**
- Application-level failure surfaced in its own logs
**Recommendations:**
- Inspect the originating log file directly for surrounding context.`,
}
