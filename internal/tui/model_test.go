package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/store"
)

func newModel(t *testing.T) (Model, *store.Store, store.OwnerScope) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	u, err := s.CreateUser(context.Background(), "tui")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return New(s, ledger.New(s, logging.Discard()), "tui-agent"), s, store.OwnerScope{UserID: u.ID}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// load runs the model's task loader and feeds the result back in.
func load(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(m.loadTasks()())
	return next.(Model)
}

// run executes cmd and feeds its message to the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func TestBoardColumns(t *testing.T) {
	m, s, scope := newModel(t)
	ctx := context.Background()
	a, _ := s.CreateTask(ctx, scope, "First", "", "")
	s.CreateTask(ctx, scope, "Second", "", "")
	s.ClaimTask(ctx, a.ID, "someone")

	m = load(t, m)
	if len(m.board[0]) != 1 || len(m.board[1]) != 1 {
		t.Fatalf("expected one TODO and one IN PROGRESS, got %d/%d", len(m.board[0]), len(m.board[1]))
	}
	view := m.View()
	if !strings.Contains(view, "TODO (1)") || !strings.Contains(view, "@someone") {
		t.Errorf("board view missing columns or holder:\n%s", view)
	}
}

func TestClaimAndReleaseKeys(t *testing.T) {
	m, s, scope := newModel(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, scope, "Claim me", "", "")
	m = load(t, m)

	next, cmd := m.Update(key("c"))
	m = run(t, next.(Model), cmd)
	got, _ := s.GetTask(ctx, task.ID)
	if got.Claim == nil || got.Claim.Holder != "tui-agent" {
		t.Fatalf("expected tui-agent to hold the task, got %+v", got.Claim)
	}
	if !strings.HasPrefix(m.statusMsg, "Claimed") {
		t.Errorf("expected claim status message, got %q", m.statusMsg)
	}

	m = load(t, m)
	next, _ = m.Update(key("right"))
	m = next.(Model)
	if sel := m.selectedTask(); sel == nil || sel.ID != task.ID {
		t.Fatalf("expected cursor on claimed task, got %+v", sel)
	}

	next, cmd = m.Update(key("x"))
	m = run(t, next.(Model), cmd)
	got, _ = s.GetTask(ctx, task.ID)
	if got.Claim != nil || got.Status != store.StatusTodo {
		t.Errorf("expected released task, got %s %+v", got.Status, got.Claim)
	}
}

func TestClaimConflictShowsHolder(t *testing.T) {
	m, s, scope := newModel(t)
	ctx := context.Background()
	task, _ := s.CreateTask(ctx, scope, "Taken", "", "")
	s.ClaimTask(ctx, task.ID, "other-agent")
	m = load(t, m)
	next, _ := m.Update(key("right"))
	m = next.(Model)

	next, cmd := m.Update(key("c"))
	m = run(t, next.(Model), cmd)
	if !strings.Contains(m.statusMsg, "other-agent") {
		t.Errorf("expected conflict message naming the holder, got %q", m.statusMsg)
	}
}

func TestDetailShowsBrief(t *testing.T) {
	m, s, scope := newModel(t)
	s.CreateTask(context.Background(), scope, "Read the brief", "Some detail", "")
	m = load(t, m)

	next, cmd := m.Update(key("enter"))
	m = run(t, next.(Model), cmd)
	if m.screen != screenDetail {
		t.Fatalf("expected detail screen, got %v", m.screen)
	}
	if !strings.Contains(m.View(), "Read the brief") {
		t.Error("detail view should show the task")
	}

	next, _ = m.Update(key("esc"))
	if next.(Model).screen != screenBoard {
		t.Error("esc should return to the board")
	}
}

func TestFilter(t *testing.T) {
	m, s, scope := newModel(t)
	ctx := context.Background()
	s.CreateTask(ctx, scope, "Write docs", "", "")
	s.CreateTask(ctx, scope, "Fix login", "", "")
	m = load(t, m)

	next, _ := m.Update(key("/"))
	m = next.(Model)
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	m.filter.SetValue("login")
	next, _ = m.Update(key("enter"))
	m = next.(Model)
	if len(m.board[0]) != 1 || m.board[0][0].Title != "Fix login" {
		t.Errorf("expected only the login task, got %+v", m.board[0])
	}
}
