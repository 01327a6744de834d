package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/pathguard"
	"github.com/imkarma/taskhive/internal/store"
)

func (t *tools) handleImportFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := t.importer.ImportOne(ctx, scopeFrom(req), path, importOptionsFrom(req))
	if err != nil {
		return t.toolError("import_file", err), nil
	}
	return jsonResult(res)
}

func (t *tools) handleImportAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := stringSliceArg(req, "paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	batch, err := t.importer.ImportMany(ctx, scopeFrom(req), paths, importOptionsFrom(req))
	if err != nil {
		return t.toolError("import_all", err), nil
	}
	return jsonResult(batch)
}

func (t *tools) handleScan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, err := req.RequireString("root")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	found, err := t.importer.Scan(ctx, root, importer.ScanOptions{MaxDepth: intArg(req, "max_depth")})
	if err != nil {
		return t.toolError("scan_task_lists", err), nil
	}
	if found == nil {
		found = []importer.Candidate{}
	}
	return jsonResult(found)
}

func (t *tools) handleClaim(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := t.taskID(ctx, req)
	if err != nil {
		return t.toolError("claim_task", err), nil
	}
	agent := t.agent(req)
	if agent == "" {
		return mcp.NewToolResultError("agent is required"), nil
	}

	task, err := t.ledger.Claim(ctx, id, agent)
	if err != nil {
		return t.toolError("claim_task", err), nil
	}

	text, err := t.briefs.Build(ctx, task)
	if err != nil {
		return t.toolError("claim_task", err), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (t *tools) handleRelease(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := t.taskID(ctx, req)
	if err != nil {
		return t.toolError("release_task", err), nil
	}

	task, err := t.ledger.Release(ctx, id, t.agent(req))
	if err != nil {
		return t.toolError("release_task", err), nil
	}
	return jsonResult(task)
}

func (t *tools) handleListClaimed(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tasks, err := t.ledger.ListClaimedBy(ctx, t.agent(req))
	if err != nil {
		return t.toolError("list_claimed", err), nil
	}
	return jsonResult(nonNil(tasks))
}

func (t *tools) handleListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.TaskFilter{
		Category: req.GetString("category", ""),
		Phase:    req.GetString("phase", ""),
		Limit:    intArg(req, "limit"),
	}
	if scope := scopeFrom(req); scope.UserID != "" {
		filter.Scope = &scope
	}
	if raw := req.GetString("status", ""); raw != "" {
		st, ok := store.ParseStatus(raw)
		if !ok {
			return mcp.NewToolResultError("unknown status " + raw), nil
		}
		filter.Status = st
	}

	tasks, err := t.store.ListTasks(ctx, filter)
	if err != nil {
		return t.toolError("list_tasks", err), nil
	}
	return jsonResult(nonNil(tasks))
}

// taskID resolves the task_id argument, which may be a unique prefix.
func (t *tools) taskID(ctx context.Context, req mcp.CallToolRequest) (string, error) {
	raw, err := req.RequireString("task_id")
	if err != nil {
		return "", apperr.InvalidInput("resolve task", err.Error())
	}
	return t.store.ResolveTaskID(ctx, raw)
}

func (t *tools) agent(req mcp.CallToolRequest) string {
	if a := strings.TrimSpace(req.GetString("agent", "")); a != "" {
		return a
	}
	return t.defaultAgent
}

// toolError turns err into a tool error result. Path rejections carry only
// the reason code; store failures are logged and reported generically.
func (t *tools) toolError(tool string, err error) *mcp.CallToolResult {
	switch apperr.KindOf(err) {
	case apperr.KindPathRejected:
		msg := "path rejected: " + apperr.ReasonOf(err)
		var be *pathguard.BatchError
		if errors.As(err, &be) {
			var parts []string
			for _, f := range be.Failures {
				parts = append(parts, fmt.Sprintf("%s (%s)", f.Path, f.Reason))
			}
			msg += ": " + strings.Join(parts, ", ")
		}
		return mcp.NewToolResultError(msg)
	case apperr.KindInternalStore:
		t.log.Error("tool call failed", "tool", tool, "err", err)
		return mcp.NewToolResultError("internal error")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func scopeFrom(req mcp.CallToolRequest) store.OwnerScope {
	return store.OwnerScope{
		UserID:    req.GetString("user_id", ""),
		ProjectID: req.GetString("project_id", ""),
		BoardID:   req.GetString("board_id", ""),
	}
}

func importOptionsFrom(req mcp.CallToolRequest) importer.Options {
	return importer.Options{
		DryRun:         req.GetBool("dry_run", false),
		Strict:         req.GetBool("strict", false),
		SkipDuplicates: req.GetBool("skip_duplicates", false),
		Timeout:        time.Duration(intArg(req, "timeout_seconds")) * time.Second,
	}
}

// stringSliceArg reads a non-empty JSON array of non-empty strings. A single
// bad entry rejects the whole argument.
func stringSliceArg(req mcp.CallToolRequest, key string) ([]string, error) {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%s must be a non-empty list of strings", key)
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%s[%d] must be a non-empty string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}

// intArg reads a JSON number. Missing or negative values give zero.
func intArg(req mcp.CallToolRequest, key string) int {
	switch v := req.GetArguments()[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return 0
}

func nonNil(tasks []store.Task) []store.Task {
	if tasks == nil {
		return []store.Task{}
	}
	return tasks
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
