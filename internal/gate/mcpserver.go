package gate

import (
	"context"
	"encoding/json"
	"os"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// decisionJSON is the Agent<->gate wire shape from spec.md §6:
// {decision: "allow"|"deny", message?: string, reason?: string}.
type decisionJSON struct {
	Decision string `json:"decision"`
	Message  string `json:"message,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func toDecisionJSON(d Decision) decisionJSON {
	out := decisionJSON{Message: d.Message, Reason: d.Reason}
	if d.Allow {
		out.Decision = "allow"
	} else {
		out.Decision = "deny"
	}
	return out
}

// Server exposes a Gate (and its paired NetworkGate) as an MCP tool
// server, reusing melisai's internal/mcp.NewServer/registerTools shape
// almost directly: the Agent<->gate contract (tool_name, tool_input ->
// decision) is structurally the same request/response cycle as an MCP
// tool call, so the hosting agent process calls pre_tool_use before
// every tool invocation instead of wiring a bespoke hook protocol.
type Server struct {
	mcpServer *server.MCPServer
}

// NewServer builds an MCP server exposing g and net as the
// pre_tool_use tool. net may be nil if network-tool gating is disabled.
func NewServer(version string, g *Gate, net *NetworkGate) *Server {
	s := server.NewMCPServer("uatu-gate", version, server.WithLogging())

	preToolUse := gomcp.NewTool("pre_tool_use",
		gomcp.WithDescription("Decide whether a tool invocation may proceed. Call this before every Bash or network tool call."),
		gomcp.WithString("tool_name", gomcp.Required(), gomcp.Description("Name of the tool about to be invoked")),
		gomcp.WithString("command", gomcp.Description("Shell command, for Bash-family tools")),
		gomcp.WithString("url", gomcp.Description("Destination URL, for network-family tools")),
		gomcp.WithString("description", gomcp.Description("Human-readable description of what the tool call is for")),
	)
	s.AddTool(preToolUse, handlePreToolUse(g, net))

	return &Server{mcpServer: s}
}

// Start runs the server in stdio mode (blocking).
func (s *Server) Start(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.mcpServer)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func handlePreToolUse(g *Gate, net *NetworkGate) func(context.Context, gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	return func(ctx context.Context, request gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		args := getArgs(request)
		toolName := stringArg(args, "tool_name", "")
		description := stringArg(args, "description", "")

		var decision Decision
		if url := stringArg(args, "url", ""); url != "" && net != nil {
			decision = net.DecideURL(ctx, toolName, url, description)
		} else {
			decision = g.Decide(ctx, toolName, stringArg(args, "command", ""), description)
		}

		data, err := json.Marshal(toDecisionJSON(decision))
		if err != nil {
			return errResult("marshal decision: " + err.Error()), nil
		}
		return newTextResult(string(data)), nil
	}
}

func getArgs(request gomcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

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

func newTextResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{gomcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		IsError: true,
		Content: []gomcp.Content{gomcp.TextContent{Type: "text", Text: msg}},
	}
}
