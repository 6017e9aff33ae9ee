package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/wfgraph/internal/dag"
	"github.com/rendis/wfgraph/internal/expressions"
	"github.com/rendis/wfgraph/internal/store"
	"github.com/rendis/wfgraph/internal/validation"
)

// GraphServerDeps holds the dependencies for creating a GraphServer.
type GraphServerDeps struct {
	// Store is optional; without it only inline documents are accepted.
	Store      store.Store
	Validator  *validation.WorkflowValidator
	Logger     *slog.Logger
	DAGOptions []dag.Option
}

// GraphServer wraps an MCP server with the graph tool handlers.
type GraphServer struct {
	store      store.Store
	validator  *validation.WorkflowValidator
	logger     *slog.Logger
	dagOptions []dag.Option
	mcpServer  *server.MCPServer
}

// NewGraphServer creates a GraphServer with all 4 tools registered.
func NewGraphServer(deps GraphServerDeps) (*GraphServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	validator := deps.Validator
	if validator == nil {
		engines, err := expressions.NewEngines()
		if err != nil {
			return nil, err
		}
		if validator, err = validation.NewWorkflowValidator(engines); err != nil {
			return nil, err
		}
	}

	s := &GraphServer{
		store:      deps.Store,
		validator:  validator,
		logger:     logger,
		dagOptions: deps.DAGOptions,
	}

	mcpSrv := server.NewMCPServer(
		"wfgraph",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("wfgraph reconstructs Conductor workflow graphs. Use wfgraph.validate to check a definition, wfgraph.build to get the graph of a definition or execution, wfgraph.diagram to render it, and wfgraph.resolve to find the node that shows a task."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *GraphServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *GraphServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the 4 registered MCP tools as ServerTool entries.
func (s *GraphServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: buildTool(), Handler: s.handleBuild},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: resolveTool(), Handler: s.handleResolve},
		{Tool: validateTool(), Handler: s.handleValidate},
	}
}

// --- Tool definitions ---

// sourceOptions are the arguments shared by tools that build a graph.
func sourceOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("definition", mcp.Description("Inline workflow definition")),
		mcp.WithObject("execution", mcp.Description("Inline execution with its ordered task records")),
		mcp.WithString("definition_name", mcp.Description("Name of a cached definition")),
		mcp.WithNumber("version", mcp.Description("Cached definition version (default: latest)")),
		mcp.WithString("execution_id", mcp.Description("ID of a cached execution")),
	}
}

func buildTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Build the workflow graph of a definition, or of an execution overlaid on its definition"),
	}, sourceOptions()...)
	return mcp.NewTool("wfgraph.build", opts...)
}

func diagramTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Generate a visual diagram of a workflow graph. Returns ASCII art, Mermaid flowchart syntax, or a PNG image"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (PNG)"),
		),
	}, sourceOptions()...)
	return mcp.NewTool("wfgraph.diagram", opts...)
}

func resolveTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Resolve a task of an execution to the graph node that shows it, with its current record and siblings"),
		mcp.WithString("task_id", mcp.Description("Execution task id")),
		mcp.WithString("ref", mcp.Description("Task reference name (used when task_id is empty)")),
	}, sourceOptions()...)
	return mcp.NewTool("wfgraph.resolve", opts...)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("wfgraph.validate",
		mcp.WithDescription("Validate a workflow definition and, optionally, an execution's task records against it"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition to validate")),
		mcp.WithObject("execution", mcp.Description("Execution whose records are checked against the definition")),
	)
}
