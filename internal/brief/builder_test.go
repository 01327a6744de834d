package brief

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/imkarma/taskhive/internal/store"
)

func testStore(t *testing.T) (*store.Store, store.OwnerScope) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	u, err := s.CreateUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return s, store.OwnerScope{UserID: u.ID}
}

func TestBuild_ImportedClaimedTask(t *testing.T) {
	s, scope := testStore(t)
	ctx := context.Background()
	b := New(s)

	task := &store.Task{
		Scope:       scope,
		Title:       "Implement login",
		Description: "Create POST /auth/login endpoint",
		Category:    "Auth",
		Phase:       "1",
		Tags:        []string{"api"},
		Position:    0,
		Provenance: &store.Provenance{
			ListName:   "Launch Plan",
			SourceFile: "/work/launch.md",
			Category:   "Auth",
			ImportID:   "imp-42",
		},
	}
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	sibling := &store.Task{Scope: scope, Title: "Add logout", Category: "Auth", Position: 1}
	if err := s.InsertTask(ctx, sibling); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}
	claimed, err := s.ClaimTask(ctx, task.ID, "coder-1")
	if err != nil {
		t.Fatalf("ClaimTask: %v", err)
	}

	out, err := b.Build(ctx, claimed)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{
		"Implement login",
		"POST /auth/login",
		"Category: Auth",
		"Phase: 1",
		"Tags: api",
		"Claimed by coder-1",
		"Launch Plan",
		"/work/launch.md",
		"Add logout",
		"## History",
		"claimed",
		"taskhive release " + claimed.ShortID(),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("brief missing %q", want)
		}
	}
}

func TestBuild_ManualTaskHasNoSource(t *testing.T) {
	s, scope := testStore(t)
	ctx := context.Background()
	b := New(s)

	task, _ := s.CreateTask(ctx, scope, "Quick fix", "", "")
	out, err := b.Build(ctx, task)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(out, "## Source") {
		t.Error("manual task should not have a source section")
	}
	if strings.Contains(out, "Other open tasks") {
		t.Error("task without category should not list related tasks")
	}
}
