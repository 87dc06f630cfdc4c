package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/outpost/internal/catalog"
	"github.com/rendis/outpost/internal/processor"
	"github.com/rendis/outpost/internal/retention"
)

// OutpostServerDeps holds the dependencies for creating an OutpostServer.
type OutpostServerDeps struct {
	Processor  *processor.Processor
	Catalog    *catalog.Catalog
	Purger     *retention.Purger
	CatalogDir string
	Logger     *slog.Logger
}

// OutpostServer wraps an MCP server with outpost-specific tool handlers.
type OutpostServer struct {
	processor  *processor.Processor
	catalog    *catalog.Catalog
	purger     *retention.Purger
	catalogDir string
	logger     *slog.Logger
	mcpServer  *server.MCPServer
}

// NewOutpostServer creates a new OutpostServer with all 5 tools registered.
func NewOutpostServer(deps OutpostServerDeps) *OutpostServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &OutpostServer{
		processor:  deps.Processor,
		catalog:    deps.Catalog,
		purger:     deps.Purger,
		catalogDir: deps.CatalogDir,
		logger:     logger,
	}

	mcpSrv := server.NewMCPServer(
		"outpost",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Outpost validates and stores action execution results. Use outpost.process to ingest a finished execution (schema validation plus secret masking), outpost.get to read one back, outpost.query to list executions, outpost.actions to inspect the action catalog, and outpost.purge to delete aged executions."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *OutpostServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *OutpostServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 5 registered MCP tools as ServerTool entries.
func (s *OutpostServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: processTool(), Handler: s.handleProcess},
		{Tool: getTool(), Handler: s.handleGet},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: actionsTool(), Handler: s.handleActions},
		{Tool: purgeTool(), Handler: s.handlePurge},
	}
}

// --- Tool definitions ---

func processTool() mcp.Tool {
	return mcp.NewTool("outpost.process",
		mcp.WithDescription("Ingest a finished action execution: validate its result against the action's output schema, mask secret fields, and store it"),
		mcp.WithString("action_ref", mcp.Required(), mcp.Description("Reference of the executed action, e.g. core.local")),
		mcp.WithString("status", mcp.Required(),
			mcp.Enum("succeeded", "failed", "timeout", "canceled", "abandoned"),
			mcp.Description("Terminal status reported by the runner"),
		),
		mcp.WithObject("result", mcp.Description("Raw result document produced by the runner")),
		mcp.WithString("execution_id", mcp.Description("Execution ID (generated when omitted)")),
		mcp.WithString("started_at", mcp.Description("Execution start time, RFC3339")),
		mcp.WithString("ended_at", mcp.Description("Execution end time, RFC3339")),
	)
}

func getTool() mcp.Tool {
	return mcp.NewTool("outpost.get",
		mcp.WithDescription("Fetch a stored execution, masked by default"),
		mcp.WithString("execution_id", mcp.Required(), mcp.Description("ID of the execution to fetch")),
		mcp.WithString("show_secrets", mcp.Description("Set to \"true\" to return the unmasked raw result (default: false)")),
		mcp.WithString("key", mcp.Description("jq path to project out of the result, e.g. output.instance_id")),
		mcp.WithString("history", mcp.Description("Set to \"true\" to include the processing event history (default: false)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("outpost.query",
		mcp.WithDescription("List stored executions"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (status, action_ref, since, limit, offset)")),
	)
}

func actionsTool() mcp.Tool {
	return mcp.NewTool("outpost.actions",
		mcp.WithDescription("List the registered actions and runner types"),
		mcp.WithString("reload", mcp.Description("Set to \"true\" to reload the catalog from disk first (default: false)")),
	)
}

func purgeTool() mcp.Tool {
	return mcp.NewTool("outpost.purge",
		mcp.WithDescription("Delete executions older than the retention window"),
		mcp.WithString("older_than", mcp.Description("Age cutoff as a Go duration, e.g. 720h (default: the configured retention max_age)")),
	)
}
