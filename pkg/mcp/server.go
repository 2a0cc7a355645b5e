package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/internal/validation"
)

// ManualTrigger starts a run of a chain on demand. Satisfied by *trigger.Service.
type ManualTrigger interface {
	TriggerManual(ctx context.Context, chainID string, payload map[string]any) (*store.Execution, error)
}

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Trigger   ManualTrigger
	Store     store.Store
	Validator validation.Validator
	Logger    *slog.Logger
}

// Server wraps an MCP server with autoforge tool handlers.
type Server struct {
	trigger   ManualTrigger
	store     store.Store
	validator validation.Validator
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &Server{
		trigger:   deps.Trigger,
		store:     deps.Store,
		validator: deps.Validator,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"autoforge",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Autoforge runs automation chains: a trigger followed by an ordered list of actions. Use autoforge.define to create a chain, autoforge.chains to list them, autoforge.trigger to start a run, autoforge.status to inspect a run and its events, and autoforge.executions to list runs."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: triggerTool(), Handler: s.handleTrigger},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: executionsTool(), Handler: s.handleExecutions},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: chainsTool(), Handler: s.handleChains},
	}
}

// --- Tool definitions ---

func triggerTool() mcp.Tool {
	return mcp.NewTool("autoforge.trigger",
		mcp.WithDescription("Start a run of a chain"),
		mcp.WithString("chain_id", mcp.Required(), mcp.Description("ID of the chain to run")),
		mcp.WithObject("payload", mcp.Description("Trigger payload available to actions as ${{trigger.<path>}}")),
		mcp.WithString("owner_id", mcp.Description("When set, the chain must belong to this owner")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("autoforge.status",
		mcp.WithDescription("Get an execution and its event log"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to inspect")),
	)
}

func executionsTool() mcp.Tool {
	return mcp.NewTool("autoforge.executions",
		mcp.WithDescription("List executions, newest first"),
		mcp.WithString("chain_id", mcp.Description("Only executions of this chain")),
		mcp.WithString("status",
			mcp.Enum("pending", "running", "success", "failed"),
			mcp.Description("Only executions in this status"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of executions (default: 50)")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("autoforge.define",
		mcp.WithDescription("Create a chain"),
		mcp.WithString("owner_id", mcp.Required(), mcp.Description("ID of the owning account")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Chain name")),
		mcp.WithString("description", mcp.Description("Chain description")),
		mcp.WithString("trigger_type", mcp.Required(),
			mcp.Enum("manual", "webhook", "schedule"),
			mcp.Description("How runs are started"),
		),
		mcp.WithObject("trigger_config", mcp.Description("Trigger settings: secret for webhook, interval_minutes for schedule")),
		mcp.WithArray("actions", mcp.Required(),
			mcp.Description("Ordered actions, each {\"type\": kind, \"config\": {...}}"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithNumber("execution_cost", mcp.Description("Per-run cost in minor units (default: 10)")),
		mcp.WithBoolean("is_active", mcp.Description("Whether the chain accepts triggers (default: true)")),
	)
}

func chainsTool() mcp.Tool {
	return mcp.NewTool("autoforge.chains",
		mcp.WithDescription("List chains"),
		mcp.WithString("owner_id", mcp.Description("Only chains of this owner")),
		mcp.WithString("trigger_type",
			mcp.Enum("manual", "webhook", "schedule"),
			mcp.Description("Only chains with this trigger"),
		),
		mcp.WithNumber("limit", mcp.Description("Maximum number of chains (default: 50)")),
	)
}
