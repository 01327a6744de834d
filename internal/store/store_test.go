package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/imkarma/taskhive/internal/apperr"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testScope creates a user and returns a user-only scope.
func testScope(t *testing.T, s *Store) OwnerScope {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return OwnerScope{UserID: u.ID}
}

func TestNew_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file not created")
	}
}

func TestNew_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u, _ := s.CreateUser(ctx, "bob")
	task, err := s.CreateTask(ctx, OwnerScope{UserID: u.ID}, "Persist me", "", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask after reopen: %v", err)
	}
	if got.Title != "Persist me" {
		t.Errorf("expected title to survive reopen, got %q", got.Title)
	}
}

func TestCreateTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	task, err := s.CreateTask(ctx, scope, "Test task", "A description", PriorityHigh)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if task.ID == "" {
		t.Error("expected generated ID")
	}
	if task.Title != "Test task" {
		t.Errorf("expected title 'Test task', got %q", task.Title)
	}
	if task.Status != StatusTodo {
		t.Errorf("expected status TODO, got %s", task.Status)
	}
	if task.Priority != PriorityHigh {
		t.Errorf("expected priority HIGH, got %s", task.Priority)
	}
	if task.Position != 0 {
		t.Errorf("expected first position 0, got %d", task.Position)
	}
	if task.Provenance != nil || task.Claim != nil {
		t.Error("hand-made task should have no provenance or claim")
	}

	events, _ := s.GetEvents(ctx, task.ID)
	if len(events) != 1 || events[0].Type != "created" {
		t.Errorf("expected one created event, got %+v", events)
	}
}

func TestCreateTask_DefaultPriority(t *testing.T) {
	s := testStore(t)
	task, err := s.CreateTask(context.Background(), testScope(t, s), "No priority", "", "")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("expected default priority MEDIUM, got %q", task.Priority)
	}
}

func TestCreateTask_EmptyTitle(t *testing.T) {
	s := testStore(t)
	_, err := s.CreateTask(context.Background(), testScope(t, s), "   ", "", "")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestInsertTask_Provenance(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	task := &Task{
		Scope:    scope,
		Title:    "Imported",
		Category: "Backend",
		Phase:    "1",
		Tags:     []string{"api", "v2"},
		Provenance: &Provenance{
			ListName:    "Release Plan",
			SourceFile:  "/work/plan.md",
			Category:    "Backend",
			ImportID:    "imp-1",
			ContentHash: "abc123",
		},
	}
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Provenance == nil {
		t.Fatal("expected provenance")
	}
	if got.Provenance.ListName != "Release Plan" || got.Provenance.SourceFile != "/work/plan.md" {
		t.Errorf("unexpected provenance %+v", got.Provenance)
	}
	if got.Provenance.ImportedAt.IsZero() {
		t.Error("expected imported_at to be set")
	}
	if len(got.Tags) != 2 || got.Tags[0] != "api" {
		t.Errorf("unexpected tags %v", got.Tags)
	}

	events, _ := s.GetEvents(ctx, task.ID)
	if len(events) != 1 || events[0].Type != "imported" {
		t.Errorf("expected one imported event, got %+v", events)
	}

	dup, err := s.ContentHashImported(ctx, scope, "abc123")
	if err != nil {
		t.Fatalf("ContentHashImported: %v", err)
	}
	if !dup {
		t.Error("expected content hash to be recorded")
	}
}

func TestInsertTask_UnknownUser(t *testing.T) {
	s := testStore(t)
	err := s.InsertTask(context.Background(), &Task{Scope: OwnerScope{UserID: "ghost"}, Title: "x"})
	if err == nil {
		t.Fatal("expected foreign key failure for unknown user")
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetTask(context.Background(), "missing")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReservePositions_Sequential(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	first, err := s.ReservePositions(ctx, scope, 3)
	if err != nil {
		t.Fatalf("ReservePositions: %v", err)
	}
	if first != 0 {
		t.Errorf("expected empty scope to start at 0, got %d", first)
	}
	next, _ := s.ReservePositions(ctx, scope, 2)
	if next != 3 {
		t.Errorf("expected next block at 3, got %d", next)
	}

	other := OwnerScope{UserID: scope.UserID, ProjectID: "p"}
	if got, _ := s.ReservePositions(ctx, other, 1); got != 0 {
		t.Errorf("expected independent counter per scope, got %d", got)
	}

	if _, err := s.ReservePositions(ctx, scope, 0); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input for zero count, got %v", err)
	}
}

func TestReservePositions_Concurrent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	const workers, block = 8, 5
	firsts := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			firsts[i], errs[i] = s.ReservePositions(ctx, scope, block)
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		for p := firsts[i]; p < firsts[i]+block; p++ {
			if seen[p] {
				t.Fatalf("position %d reserved twice", p)
			}
			seen[p] = true
		}
	}
	if len(seen) != workers*block {
		t.Errorf("expected %d distinct positions, got %d", workers*block, len(seen))
	}
}

func TestListTasks_OrderAndFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	a, _ := s.CreateTask(ctx, scope, "A", "", "")
	s.CreateTask(ctx, scope, "B", "", "")
	s.CreateTask(ctx, scope, "C", "", "")
	if err := s.UpdateTaskStatus(ctx, a.ID, StatusDone, "alice"); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}

	all, err := s.ListTasks(ctx, TaskFilter{Scope: &scope})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(all) != 3 || all[0].Title != "A" || all[2].Title != "C" {
		t.Fatalf("unexpected order: %+v", all)
	}

	todo, _ := s.ListTasks(ctx, TaskFilter{Status: StatusTodo})
	if len(todo) != 2 {
		t.Errorf("expected 2 TODO tasks, got %d", len(todo))
	}

	limited, _ := s.ListTasks(ctx, TaskFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestResolveTaskID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Resolve me", "", "")

	id, err := s.ResolveTaskID(ctx, task.ShortID())
	if err != nil {
		t.Fatalf("ResolveTaskID: %v", err)
	}
	if id != task.ID {
		t.Errorf("expected %s, got %s", task.ID, id)
	}

	if _, err := s.ResolveTaskID(ctx, "zzzz"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := s.ResolveTaskID(ctx, "%"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input for wildcard, got %v", err)
	}
}

func TestClaimTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Claim me", "", "")

	claimed, err := s.ClaimTask(ctx, task.ID, "agent-1")
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}
	if claimed.Status != StatusInProgress {
		t.Errorf("expected IN_PROGRESS, got %s", claimed.Status)
	}
	if claimed.Claim == nil || claimed.Claim.Holder != "agent-1" {
		t.Fatalf("expected holder agent-1, got %+v", claimed.Claim)
	}
	if claimed.Claim.ModifiedBy != "agent-1" {
		t.Errorf("expected modified_by agent-1, got %q", claimed.Claim.ModifiedBy)
	}

	again, err := s.ClaimTask(ctx, task.ID, "agent-1")
	if err != nil {
		t.Fatalf("re-claim by holder: %v", err)
	}
	if !again.Claim.ClaimedAt.Equal(claimed.Claim.ClaimedAt) {
		t.Errorf("re-claim should keep claimed_at: %v vs %v", again.Claim.ClaimedAt, claimed.Claim.ClaimedAt)
	}

	_, err = s.ClaimTask(ctx, task.ID, "agent-2")
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if holder := apperr.HolderOf(err); holder != "agent-1" {
		t.Errorf("expected conflict to name agent-1, got %q", holder)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Claim.Holder != "agent-1" {
		t.Errorf("losing claim must not change holder, got %q", got.Claim.Holder)
	}
}

func TestClaimTask_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.ClaimTask(context.Background(), "missing", "agent-1")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestClaimTask_ConcurrentSingleWinner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Contended", "", "")

	agents := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	errs := make([]error, len(agents))

	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent string) {
			defer wg.Done()
			_, errs[i] = s.ClaimTask(ctx, task.ID, agent)
		}(i, agent)
	}
	wg.Wait()

	winners := 0
	var winner string
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
			winner = agents[i]
		case errors.Is(err, apperr.ErrConflict):
		default:
			t.Errorf("agent %s: unexpected error %v", agents[i], err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Claim == nil || got.Claim.Holder != winner {
		t.Errorf("expected stored holder %q, got %+v", winner, got.Claim)
	}
}

func TestReleaseTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Release me", "", "")
	s.ClaimTask(ctx, task.ID, "agent-1")

	released, err := s.ReleaseTask(ctx, task.ID, "agent-2")
	if err != nil {
		t.Fatalf("ReleaseTask: %v", err)
	}
	if released.Claim != nil {
		t.Errorf("expected claim cleared, got %+v", released.Claim)
	}
	if released.Status != StatusTodo {
		t.Errorf("expected TODO, got %s", released.Status)
	}

	events, _ := s.GetEvents(ctx, task.ID)
	last := events[len(events)-1]
	if last.Type != "released" || last.Agent != "agent-2" {
		t.Errorf("expected release event by agent-2, got %+v", last)
	}

	// Releasing an unclaimed task is a no-op.
	if _, err := s.ReleaseTask(ctx, task.ID, "agent-2"); err != nil {
		t.Errorf("second release: %v", err)
	}
	if after, _ := s.GetEvents(ctx, task.ID); len(after) != len(events) {
		t.Errorf("no-op release should not add events")
	}

	if _, err := s.ReleaseTask(ctx, "missing", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListClaimedBy(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)

	a, _ := s.CreateTask(ctx, scope, "A", "", "")
	b, _ := s.CreateTask(ctx, scope, "B", "", "")
	c, _ := s.CreateTask(ctx, scope, "C", "", "")
	s.ClaimTask(ctx, a.ID, "agent-1")
	s.ClaimTask(ctx, b.ID, "agent-2")
	s.ClaimTask(ctx, c.ID, "agent-1")

	tasks, err := s.ListClaimedBy(ctx, "agent-1")
	if err != nil {
		t.Fatalf("ListClaimedBy: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != a.ID || tasks[1].ID != c.ID {
		t.Errorf("unexpected claimed tasks %+v", tasks)
	}

	none, _ := s.ListClaimedBy(ctx, "nobody")
	if len(none) != 0 {
		t.Errorf("expected no tasks, got %d", len(none))
	}
}

func TestUpdateTaskStatus_DropsClaim(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Finish me", "", "")
	s.ClaimTask(ctx, task.ID, "agent-1")

	if err := s.UpdateTaskStatus(ctx, task.ID, StatusDone, "agent-1"); err != nil {
		t.Fatalf("UpdateTaskStatus: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if got.Claim != nil {
		t.Errorf("expected claim to be dropped, got %+v", got.Claim)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, "SOMEDAY", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if err := s.UpdateTaskStatus(ctx, "missing", StatusDone, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdates_RollBackWithoutEvent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Keep history", "", PriorityLow)

	if _, err := s.db.ExecContext(ctx, `DROP TABLE events`); err != nil {
		t.Fatalf("drop events: %v", err)
	}

	if err := s.UpdateTaskStatus(ctx, task.ID, StatusDone, "agent-1"); err == nil {
		t.Error("expected status update to fail when its event cannot be written")
	}
	if err := s.UpdateTaskPriority(ctx, task.ID, PriorityHigh, "agent-1"); err == nil {
		t.Error("expected priority update to fail when its event cannot be written")
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != StatusTodo || got.Priority != PriorityLow {
		t.Errorf("failed updates must not change the task, got %s %s", got.Status, got.Priority)
	}
}

func TestUpdateTaskPriority(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, testScope(t, s), "Prioritize", "", "")

	if err := s.UpdateTaskPriority(ctx, task.ID, "urgent", "bob"); err != nil {
		t.Fatalf("UpdateTaskPriority: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if got.Priority != PriorityUrgent {
		t.Errorf("expected URGENT, got %s", got.Priority)
	}
}

func TestCheckScope(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	u, _ := s.CreateUser(ctx, "carol")
	p, err := s.CreateProject(ctx, u.ID, "Site")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	b, err := s.CreateBoard(ctx, p.ID, "Sprint")
	if err != nil {
		t.Fatalf("CreateBoard: %v", err)
	}

	if err := s.CheckScope(ctx, OwnerScope{UserID: u.ID, ProjectID: p.ID, BoardID: b.ID}); err != nil {
		t.Errorf("expected full scope to pass, got %v", err)
	}

	tests := []struct {
		name  string
		scope OwnerScope
		want  error
	}{
		{"no user", OwnerScope{}, apperr.ErrInvalidInput},
		{"unknown user", OwnerScope{UserID: "nope"}, apperr.ErrNotFound},
		{"unknown project", OwnerScope{UserID: u.ID, ProjectID: "nope"}, apperr.ErrNotFound},
		{"board without project", OwnerScope{UserID: u.ID, BoardID: b.ID}, apperr.ErrInvalidInput},
		{"unknown board", OwnerScope{UserID: u.ID, ProjectID: p.ID, BoardID: "nope"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.CheckScope(ctx, tt.scope); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCountByStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	scope := testScope(t, s)
	a, _ := s.CreateTask(ctx, scope, "A", "", "")
	s.CreateTask(ctx, scope, "B", "", "")
	s.ClaimTask(ctx, a.ID, "agent-1")

	counts, err := s.CountByStatus(ctx, &scope)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusTodo] != 1 || counts[StatusInProgress] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}
