// Package mcp exposes Uatu's read-only system-inspection surface over
// the Model Context Protocol, so an external agent session can gather
// context about a running host the same way the Investigation
// Orchestrator's own provider call does internally.
package mcp

import (
	"context"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fractalops/uatu/internal/probe"
)

// Server wraps the MCP server instance and the Probe its tools read
// from.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer creates an MCP server exposing p's read-only tools.
func NewServer(version string, p probe.Probe) *Server {
	s := server.NewMCPServer("uatu", version, server.WithLogging())

	h := &toolHandlers{probe: p}
	registerTools(s, h)

	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools adds every supported tool to s, grounded on
// original_source/uatu/tools/sdk_tools.py's tool set — the same names,
// descriptions, and input schemas, reimplemented over internal/probe
// instead of platform-branching Python tool classes.
func registerTools(s *server.MCPServer, h *toolHandlers) {
	getSystemInfo := mcp.NewTool("get_system_info",
		mcp.WithDescription("Get system-wide CPU, memory, and load information. Returns current resource usage statistics."),
	)
	s.AddTool(getSystemInfo, h.handleGetSystemInfo)

	listProcesses := mcp.NewTool("list_processes",
		mcp.WithDescription("List running processes with PID, name, CPU, memory, and state."),
		mcp.WithNumber("min_cpu_percent",
			mcp.Description("Only return processes above this CPU percentage"),
			mcp.DefaultNumber(0),
		),
		mcp.WithNumber("min_memory_mb",
			mcp.Description("Only return processes above this memory usage in MB"),
			mcp.DefaultNumber(0),
		),
	)
	s.AddTool(listProcesses, h.handleListProcesses)

	readProcFile := mcp.NewTool("read_proc_file",
		mcp.WithDescription("Read a file from /proc or /sys directly. Low-level access to kernel data, e.g. /proc/meminfo, /proc/123/status."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the file (must lie under /proc or /sys)"),
		),
	)
	s.AddTool(readProcFile, h.handleReadProcFile)

	explainAnomaly := mcp.NewTool("explain_anomaly",
		mcp.WithDescription("Get a root-cause explanation and recommendations for a known anomaly type. Use list_anomalies to discover valid IDs."),
		mcp.WithString("anomaly_id",
			mcp.Required(),
			mcp.Description("Anomaly type ID, e.g. 'cpu_spike', 'memory_leak'. Use list_anomalies to see all."),
		),
	)
	s.AddTool(explainAnomaly, handleExplainAnomaly)

	listAnomalies := mcp.NewTool("list_anomalies",
		mcp.WithDescription("List every known anomaly type ID with a brief description."),
	)
	s.AddTool(listAnomalies, handleListAnomalies)
}
