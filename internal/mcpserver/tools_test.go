package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/pathguard"
	"github.com/imkarma/taskhive/internal/store"
)

type fixture struct {
	tools  *tools
	store  *store.Store
	userID string
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	u, err := s.CreateUser(context.Background(), "mcp-user")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	root := t.TempDir()
	log := logging.Discard()
	im := importer.New(importer.Config{
		Store:  s,
		Guard:  pathguard.New(pathguard.Options{AllowedRoots: []string{root}, EnforceExtension: true}),
		Logger: log,
	})
	tl := newTools(Deps{
		Store:        s,
		Importer:     im,
		Ledger:       ledger.New(s, log),
		Logger:       log,
		DefaultAgent: "default-agent",
	})
	return &fixture{tools: tl, store: s, userID: u.ID, root: root}
}

func request(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestNew_RegistersTools(t *testing.T) {
	f := newFixture(t)
	s := New(Deps{Store: f.store, Importer: f.tools.importer, Ledger: f.tools.ledger})
	if s == nil {
		t.Fatal("expected server")
	}
	if !strings.Contains(serverInstructions(), "claim_task") {
		t.Error("instructions should describe claim_task")
	}
}

func TestImportFile(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "tasks.md")
	os.WriteFile(path, []byte("## Code Quality\n- [ ] Add tests [HIGH]\n- [ ] Update docs\n"), 0644)

	res, err := f.tools.handleImportFile(context.Background(), request(map[string]any{
		"path":    path,
		"user_id": f.userID,
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var got importer.FileResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !got.Success || got.Created != 2 {
		t.Errorf("unexpected result %+v", got)
	}
}

func TestImportFile_Rejected(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "tasks.md")
	os.WriteFile(outside, []byte("## A\n- [ ] a\n"), 0644)

	res, _ := f.tools.handleImportFile(context.Background(), request(map[string]any{
		"path":    outside,
		"user_id": f.userID,
	}))
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	text := resultText(t, res)
	if !strings.Contains(text, string(pathguard.ReasonOutsideRoots)) {
		t.Errorf("expected reason code in %q", text)
	}
	if strings.Contains(text, outside) {
		t.Errorf("single-file rejection should not echo the path: %q", text)
	}

	res, _ = f.tools.handleImportFile(context.Background(), request(map[string]any{"user_id": f.userID}))
	if !res.IsError {
		t.Error("expected error for missing path")
	}
}

func TestImportAll(t *testing.T) {
	f := newFixture(t)
	one := filepath.Join(f.root, "one.md")
	two := filepath.Join(f.root, "two.md")
	os.WriteFile(one, []byte("## A\n- [ ] a1\n"), 0644)
	os.WriteFile(two, []byte("## B\n- [ ] b1\n- [ ] b2\n"), 0644)

	res, _ := f.tools.handleImportAll(context.Background(), request(map[string]any{
		"paths":   []any{one, two},
		"user_id": f.userID,
	}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var batch importer.BatchResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &batch); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if batch.TotalCreated != 3 || len(batch.Files) != 2 {
		t.Errorf("unexpected batch %+v", batch)
	}

	res, _ = f.tools.handleImportAll(context.Background(), request(map[string]any{
		"paths":   []any{one, filepath.Join(f.root, "missing.md")},
		"user_id": f.userID,
	}))
	if !res.IsError || !strings.Contains(resultText(t, res), "missing.md") {
		t.Errorf("expected batch rejection naming the failed path, got %+v", res)
	}

	res, _ = f.tools.handleImportAll(context.Background(), request(map[string]any{"user_id": f.userID}))
	if !res.IsError {
		t.Error("expected error for empty paths")
	}
}

func TestImportAllRejectsMalformedPaths(t *testing.T) {
	f := newFixture(t)
	good := filepath.Join(f.root, "a.md")
	os.WriteFile(good, []byte("## A\n- [ ] a1\n"), 0644)

	tests := []struct {
		name  string
		paths any
	}{
		{"empty and non-string entries", []any{good, "", 42}},
		{"blank entry", []any{good, "   "}},
		{"non-string entry", []any{good, true}},
		{"not a list", good},
		{"empty list", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _ := f.tools.handleImportAll(context.Background(), request(map[string]any{
				"paths":   tt.paths,
				"user_id": f.userID,
			}))
			if !res.IsError {
				t.Fatalf("expected the whole call to be rejected, got %s", resultText(t, res))
			}
			if !strings.Contains(resultText(t, res), "paths") {
				t.Errorf("error should name the argument, got %q", resultText(t, res))
			}
		})
	}

	tasks, err := f.store.ListTasks(context.Background(), store.TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("rejected batches must not import anything, got %d tasks", len(tasks))
	}
}

func TestImportOptionsTimeout(t *testing.T) {
	opts := importOptionsFrom(request(map[string]any{"timeout_seconds": float64(5), "strict": true}))
	if opts.Timeout != 5*time.Second || !opts.Strict {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts := importOptionsFrom(request(map[string]any{})); opts.Timeout != 0 {
		t.Errorf("missing timeout should leave the default, got %v", opts.Timeout)
	}
}

func TestScanTaskLists(t *testing.T) {
	f := newFixture(t)
	os.WriteFile(filepath.Join(f.root, "backlog.md"), []byte("# Backlog\n"), 0644)

	res, _ := f.tools.handleScan(context.Background(), request(map[string]any{"root": f.root}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var found []importer.Candidate
	if err := json.Unmarshal([]byte(resultText(t, res)), &found); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(found) != 1 || found[0].Reason != "name" {
		t.Errorf("expected one candidate, got %+v", found)
	}
}

func TestClaimAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, err := f.store.CreateTask(ctx, store.OwnerScope{UserID: f.userID}, "Wire the brief", "", store.PriorityHigh)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	res, _ := f.tools.handleClaim(ctx, request(map[string]any{"task_id": task.ShortID(), "agent": "agent-a"}))
	if res.IsError {
		t.Fatalf("claim: %s", resultText(t, res))
	}
	brief := resultText(t, res)
	if !strings.Contains(brief, "Wire the brief") || !strings.Contains(brief, "taskhive release") {
		t.Errorf("expected brief for claimed task, got:\n%s", brief)
	}

	res, _ = f.tools.handleClaim(ctx, request(map[string]any{"task_id": task.ID, "agent": "agent-b"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "agent-a") {
		t.Errorf("expected conflict naming agent-a, got %+v", res)
	}

	res, _ = f.tools.handleListClaimed(ctx, request(map[string]any{"agent": "agent-a"}))
	var held []store.Task
	json.Unmarshal([]byte(resultText(t, res)), &held)
	if len(held) != 1 || held[0].ID != task.ID {
		t.Errorf("expected agent-a to hold the task, got %+v", held)
	}

	res, _ = f.tools.handleRelease(ctx, request(map[string]any{"task_id": task.ID, "agent": "agent-a"}))
	if res.IsError {
		t.Fatalf("release: %s", resultText(t, res))
	}
	var released store.Task
	json.Unmarshal([]byte(resultText(t, res)), &released)
	if released.Status != store.StatusTodo || released.Claim != nil {
		t.Errorf("expected released task, got %+v", released)
	}
}

func TestClaim_DefaultAgent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task, _ := f.store.CreateTask(ctx, store.OwnerScope{UserID: f.userID}, "Anything", "", "")

	res, _ := f.tools.handleClaim(ctx, request(map[string]any{"task_id": task.ID}))
	if res.IsError {
		t.Fatalf("claim: %s", resultText(t, res))
	}
	got, _ := f.store.GetTask(ctx, task.ID)
	if got.Claim == nil || got.Claim.Holder != "default-agent" {
		t.Errorf("expected default agent to hold the task, got %+v", got.Claim)
	}
}

func TestClaim_NotFound(t *testing.T) {
	f := newFixture(t)
	res, _ := f.tools.handleClaim(context.Background(), request(map[string]any{"task_id": "nope", "agent": "a"}))
	if !res.IsError || !strings.Contains(resultText(t, res), "not_found") {
		t.Errorf("expected not found error, got %+v", res)
	}
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scope := store.OwnerScope{UserID: f.userID}
	a, _ := f.store.CreateTask(ctx, scope, "A", "", "")
	f.store.CreateTask(ctx, scope, "B", "", "")
	f.store.ClaimTask(ctx, a.ID, "agent-1")

	res, _ := f.tools.handleListTasks(ctx, request(map[string]any{"status": "todo", "user_id": f.userID}))
	var tasks []store.Task
	if err := json.Unmarshal([]byte(resultText(t, res)), &tasks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "B" {
		t.Errorf("expected only B, got %+v", tasks)
	}

	res, _ = f.tools.handleListTasks(ctx, request(map[string]any{"status": "later"}))
	if !res.IsError {
		t.Error("expected error for unknown status")
	}
}
