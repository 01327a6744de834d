// Package mcpserver exposes the import and claim operations as MCP tools so
// agents can take work from the backlog over stdio.
package mcpserver

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/imkarma/taskhive/internal/brief"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the components the tools call into.
type Deps struct {
	Store    *store.Store
	Importer *importer.Importer
	Ledger   *ledger.Ledger
	Logger   *slog.Logger

	// DefaultAgent is used when a claim or release call names no agent.
	DefaultAgent string
}

// tools holds the handlers. Each handler is a plain method so tests can
// call it without a transport.
type tools struct {
	store        *store.Store
	importer     *importer.Importer
	ledger       *ledger.Ledger
	briefs       *brief.Builder
	log          *slog.Logger
	defaultAgent string
}

// New creates the MCP server with every tool registered.
func New(d Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"taskhive",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	register(s, newTools(d))
	return s
}

func newTools(d Deps) *tools {
	return &tools{
		store:        d.Store,
		importer:     d.Importer,
		ledger:       d.Ledger,
		briefs:       brief.New(d.Store),
		log:          logging.OrDefault(d.Logger),
		defaultAgent: d.DefaultAgent,
	}
}

// ServeStdio serves s on stdin/stdout until ctx is cancelled or the client
// disconnects. Protocol errors go to log; stdout carries only MCP frames.
func ServeStdio(ctx context.Context, s *server.MCPServer, log *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logging.OrDefault(log).Handler(), slog.LevelError))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func register(s *server.MCPServer, t *tools) {
	// --- Import ---
	s.AddTool(mcp.NewTool("import_file",
		mcp.WithDescription("Import one master task list file into the backlog of a user, project or board."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the task list file")),
		withScopeParams(),
		withImportParams(),
	), t.handleImportFile)

	s.AddTool(mcp.NewTool("import_all",
		mcp.WithDescription("Import several task list files. Every path is validated before any file is read; one bad path rejects the whole batch."),
		mcp.WithArray("paths", mcp.Required(), mcp.Description("Paths of the task list files"),
			mcp.Items(map[string]any{"type": "string"})),
		withScopeParams(),
		withImportParams(),
	), t.handleImportAll)

	s.AddTool(mcp.NewTool("scan_task_lists",
		mcp.WithDescription("Find files under a directory that look like master task lists."),
		mcp.WithString("root", mcp.Required(), mcp.Description("Directory to scan")),
		mcp.WithNumber("max_depth", mcp.Description("Directory levels to descend (default 3)")),
	), t.handleScan)

	// --- Claims ---
	s.AddTool(mcp.NewTool("claim_task",
		mcp.WithDescription("Claim a task for an agent. Returns a brief with everything needed to start work. Fails if another agent holds the task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID or unique prefix")),
		mcp.WithString("agent", mcp.Description("Agent identity")),
	), t.handleClaim)

	s.AddTool(mcp.NewTool("release_task",
		mcp.WithDescription("Release a claimed task back to TODO."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID or unique prefix")),
		mcp.WithString("agent", mcp.Description("Agent releasing the task")),
	), t.handleRelease)

	s.AddTool(mcp.NewTool("list_claimed",
		mcp.WithDescription("List the tasks an agent currently holds."),
		mcp.WithString("agent", mcp.Description("Agent identity")),
	), t.handleListClaimed)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List backlog tasks in position order."),
		mcp.WithString("status", mcp.Description("TODO, IN_PROGRESS, IN_REVIEW, DONE, BLOCKED or CANCELLED")),
		mcp.WithString("category", mcp.Description("Only tasks in this category")),
		mcp.WithString("phase", mcp.Description("Only tasks in this phase")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks")),
		withScopeParams(),
	), t.handleListTasks)
}

func withScopeParams() mcp.ToolOption {
	return func(tool *mcp.Tool) {
		mcp.WithString("user_id", mcp.Description("Owning user ID"))(tool)
		mcp.WithString("project_id", mcp.Description("Owning project ID"))(tool)
		mcp.WithString("board_id", mcp.Description("Owning board ID"))(tool)
	}
}

func withImportParams() mcp.ToolOption {
	return func(tool *mcp.Tool) {
		mcp.WithBoolean("dry_run", mcp.Description("Parse and count without creating tasks"))(tool)
		mcp.WithBoolean("strict", mcp.Description("Fail files that contain unrecognized lines"))(tool)
		mcp.WithBoolean("skip_duplicates", mcp.Description("Skip files whose content was already imported"))(tool)
		mcp.WithNumber("timeout_seconds", mcp.Description("Per-file read and parse timeout; default 30"))(tool)
	}
}

func serverInstructions() string {
	return `You have access to taskhive, a shared backlog for agents.

## Taking work
1. Call list_tasks with status TODO to see open work in position order.
2. Call claim_task with the task ID. The response contains a brief with the
   task, its source list and related work. If the task is held by another
   agent you get an error naming the holder; pick a different task.
3. When you stop working on a task without finishing it, call release_task.

## Importing work
Use scan_task_lists to find master task lists, then import_file or
import_all. Imports append to the end of the backlog and never deduplicate
unless skip_duplicates is set.`
}
