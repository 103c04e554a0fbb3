// Package mcp exposes the workflow client as a Model Context Protocol server,
// so an agent can inspect, submit, follow and visualize InvokeAI workflow runs
// through tool calls over stdio. Queue events for submitted runs are pushed
// back to the submitting session as notifications.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/CodeGandee/invokeai-go-client/internal/store"
	"github.com/CodeGandee/invokeai-go-client/pkg/client"
	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
	"github.com/CodeGandee/invokeai-go-client/pkg/workflow"
)

// Catalog is the inventory-facing slice of the API client the listing tools
// use. *client.Client satisfies it.
type Catalog interface {
	ListModels(ctx context.Context, opts client.ListModelsOptions) ([]schema.ModelRecord, error)
	ListBoards(ctx context.Context, includeUncategorized bool) ([]schema.Board, error)
}

// ServerDeps holds the collaborators for creating a Server. Executor drives
// the submission tools and Catalog the listing tools. Store and Events are
// optional: the first enables the run journal, the second live queue-event
// notifications.
type ServerDeps struct {
	Executor workflow.Executor
	Catalog  Catalog
	Store    store.Store
	Events   workflow.EventSource
	QueueID  string
	Version  string
	Logger   *slog.Logger
}

// Server wraps an MCP server with workflow tool handlers.
type Server struct {
	executor workflow.Executor
	catalog  Catalog
	store    store.Store
	eventLog *store.EventLog
	events   workflow.EventSource
	queueID  string
	logger   *slog.Logger
	sessions *SessionRegistry
	notifier RunNotifier

	mcpServer *server.MCPServer
}

// NewServer creates a Server with all workflow tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	queueID := deps.QueueID
	if queueID == "" {
		queueID = schema.DefaultQueueID
	}

	s := &Server{
		executor: deps.Executor,
		catalog:  deps.Catalog,
		store:    deps.Store,
		events:   deps.Events,
		queueID:  queueID,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}
	if deps.Store != nil {
		s.eventLog = store.NewEventLog(deps.Store, logger)
	}

	mcpSrv := server.NewMCPServer(
		"invokeai-client",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("invokeai-client drives image-generation workflows on an InvokeAI instance. Use workflow_inputs to inspect an export's exposed inputs, workflow_submit to queue a run (wait=true blocks and returns the generated images), workflow_status and workflow_cancel to follow or stop runs, list_models and list_boards to browse the server, run_history to query past runs, and workflow_graph to visualize a workflow."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewQueueNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin
// closes. With an event source configured, queue events are forwarded to the
// submitting sessions for as long as the transport runs.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.events != nil {
		go s.forwardEvents(ctx)
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// forwardEvents consumes the queue event feed and dispatches each event until
// the context ends or the feed closes.
func (s *Server) forwardEvents(ctx context.Context) {
	events, unsubscribe, err := s.events.Subscribe(ctx, s.queueID)
	if err != nil {
		s.logger.WarnContext(ctx, "event subscription failed, notifications disabled", "error", err)
		return
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.dispatchEvent(ctx, ev)
		}
	}
}

// dispatchEvent pushes one event to its watching session and journals it.
// A terminal status change additionally settles the journal entry and
// releases the binding.
func (s *Server) dispatchEvent(ctx context.Context, ev schema.QueueEvent) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.DebugContext(ctx, "queue event push failed", "item_id", ev.ItemID, "error", err)
	}

	runID, journaled := s.sessions.RunFor(ev.ItemID)
	if journaled && s.eventLog != nil {
		if err := s.eventLog.Append(ctx, runID, ev); err != nil {
			s.logger.DebugContext(ctx, "event journal write failed", "run_id", runID, "error", err)
		}
	}

	if ev.Type != schema.EventQueueItemStatusChanged || !ev.Status.Terminal() {
		return
	}
	s.sessions.Release(ev.ItemID)

	if journaled && s.store != nil {
		now := time.Now().UTC()
		status := ev.Status
		update := store.RunUpdate{Status: &status, SessionID: ev.SessionID, CompletedAt: &now}
		if err := s.store.UpdateRunStatus(ctx, runID, update); err != nil {
			s.logger.WarnContext(ctx, "run journal update failed", "run_id", runID, "error", err)
		}
	}
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: inputsTool(), Handler: s.handleInputs},
		{Tool: submitTool(), Handler: s.handleSubmit},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: listModelsTool(), Handler: s.handleListModels},
		{Tool: listBoardsTool(), Handler: s.handleListBoards},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: graphTool(), Handler: s.handleGraph},
	}
}

// --- Tool definitions ---

func inputsTool() mcp.Tool {
	return mcp.NewTool("workflow_inputs",
		mcp.WithDescription("List the form-exposed inputs of a workflow export"),
		mcp.WithString("workflow_path", mcp.Required(), mcp.Description("Path to the workflow export JSON file")),
	)
}

func submitTool() mcp.Tool {
	return mcp.NewTool("workflow_submit",
		mcp.WithDescription("Queue one run of a workflow export, optionally overriding input values and waiting for the generated images"),
		mcp.WithString("workflow_path", mcp.Required(), mcp.Description("Path to the workflow export JSON file")),
		mcp.WithObject("inputs", mcp.Description("Input overrides keyed by discovery index, e.g. {\"0\": \"a castle\", \"2\": 42}")),
		mcp.WithString("board", mcp.Description("Board ID to route generated images to (sets every exposed board input)")),
		mcp.WithBoolean("wait", mcp.Description("Block until the run finishes and include its output images (default: false)")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Wait deadline in seconds (default: 600)")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("workflow_status",
		mcp.WithDescription("Get the queue status of a submitted run"),
		mcp.WithString("run_id", mcp.Description("Journaled run ID or unique prefix")),
		mcp.WithNumber("item_id", mcp.Description("Queue item ID (alternative to run_id)")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("workflow_cancel",
		mcp.WithDescription("Cancel a submitted run"),
		mcp.WithString("run_id", mcp.Description("Journaled run ID or unique prefix")),
		mcp.WithNumber("item_id", mcp.Description("Queue item ID (alternative to run_id)")),
	)
}

func listModelsTool() mcp.Tool {
	return mcp.NewTool("list_models",
		mcp.WithDescription("List the models installed on the server"),
		mcp.WithString("base",
			mcp.Enum("any", "sd-1", "sd-2", "sd-3", "sdxl", "sdxl-refiner", "flux"),
			mcp.Description("Filter by base architecture"),
		),
		mcp.WithString("type",
			mcp.Enum("main", "vae", "lora", "controlnet", "embedding", "t5_encoder", "clip_embed", "ip_adapter"),
			mcp.Description("Filter by model type"),
		),
		mcp.WithString("name", mcp.Description("Filter by model name")),
	)
}

func listBoardsTool() mcp.Tool {
	return mcp.NewTool("list_boards",
		mcp.WithDescription("List the image boards on the server"),
		mcp.WithBoolean("include_uncategorized", mcp.Description("Prepend the synthetic uncategorized board (default: true)")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool("run_history",
		mcp.WithDescription("Query the local run journal"),
		mcp.WithString("run_id", mcp.Description("Return one run with its artifacts and progress instead of a listing")),
		mcp.WithString("status",
			mcp.Enum("pending", "in_progress", "completed", "failed", "canceled"),
			mcp.Description("Filter by run status"),
		),
		mcp.WithString("workflow", mcp.Description("Filter by workflow name")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default: 50)")),
	)
}

func graphTool() mcp.Tool {
	return mcp.NewTool("workflow_graph",
		mcp.WithDescription("Render a workflow's execution graph. Returns Mermaid flowchart syntax, ASCII art, or a base64-encoded PNG image"),
		mcp.WithString("workflow_path", mcp.Required(), mcp.Description("Path to the workflow export JSON file")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "ascii", "image"),
			mcp.Description("Output format: mermaid (flowchart syntax), ascii (text), or image (base64 PNG)"),
		),
		mcp.WithString("run_id", mcp.Description("Overlay per-node status from a journaled run")),
	)
}
