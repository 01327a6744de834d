// Package tui is the interactive backlog browser behind `taskhive ui`.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/taskhive/internal/brief"
	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/store"
)

// screen represents which screen the TUI is on.
type screen int

const (
	screenBoard  screen = iota // kanban board (main)
	screenDetail               // brief of the selected task
)

const refreshInterval = 3 * time.Second

type column struct {
	status store.TaskStatus
	label  string
}

var columns = []column{
	{store.StatusTodo, "TODO"},
	{store.StatusInProgress, "IN PROGRESS"},
	{store.StatusInReview, "IN REVIEW"},
	{store.StatusBlocked, "BLOCKED"},
	{store.StatusDone, "DONE"},
}

// Model is the top-level bubbletea model.
type Model struct {
	store  *store.Store
	ledger *ledger.Ledger
	briefs *brief.Builder
	agent  string

	width  int
	height int
	screen screen

	// Board state.
	tasks     []store.Task
	board     [][]store.Task
	cursorCol int
	cursorRow int

	// Title filter.
	filter       textinput.Model
	filtering    bool
	filterString string

	// Detail screen.
	detail     viewport.Model
	detailTask *store.Task

	statusMsg  string
	statusTime time.Time
	refreshing bool
	quitting   bool
}

// New creates the model. agent is the identity used for claims made from
// the browser.
func New(s *store.Store, l *ledger.Ledger, agent string) Model {
	fi := textinput.New()
	fi.Placeholder = "filter by title..."
	fi.CharLimit = 80
	fi.Width = 40

	return Model{
		store:  s,
		ledger: l,
		briefs: brief.New(s),
		agent:  agent,
		screen: screenBoard,
		board:  make([][]store.Task, len(columns)),
		filter: fi,
		detail: viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadTasks(), tickCmd())
}

// --- Messages ---

type tasksLoadedMsg struct {
	tasks []store.Task
	err   error
}

type briefLoadedMsg struct {
	task    *store.Task
	content string
	err     error
}

type actionDoneMsg struct {
	status string
	err    error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// --- Commands ---

func (m Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.store.ListTasks(context.Background(), store.TaskFilter{})
		return tasksLoadedMsg{tasks: tasks, err: err}
	}
}

func (m Model) loadBrief(id string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		task, err := m.store.GetTask(ctx, id)
		if err != nil {
			return briefLoadedMsg{err: err}
		}
		content, err := m.briefs.Build(ctx, task)
		return briefLoadedMsg{task: task, content: content, err: err}
	}
}

func (m Model) claim(id string) tea.Cmd {
	return func() tea.Msg {
		t, err := m.ledger.Claim(context.Background(), id, m.agent)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Claimed " + t.ShortID() + " as " + m.agent}
	}
}

func (m Model) release(id string) tea.Cmd {
	return func() tea.Msg {
		t, err := m.ledger.Release(context.Background(), id, m.agent)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Released " + t.ShortID()}
	}
}

func (m Model) setStatus(id string, st store.TaskStatus) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.UpdateTaskStatus(context.Background(), id, st, m.agent); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Moved " + shortID(id) + " to " + string(st)}
	}
}

// --- Board helpers ---

func (m *Model) rebuildBoard() {
	for i := range m.board {
		m.board[i] = nil
	}
	needle := strings.ToLower(m.filterString)
	for _, t := range m.tasks {
		if needle != "" && !strings.Contains(strings.ToLower(t.Title), needle) {
			continue
		}
		for i, c := range columns {
			if t.Status == c.status {
				m.board[i] = append(m.board[i], t)
				break
			}
		}
	}
	m.clampCursor()
}

func (m *Model) clampCursor() {
	if m.cursorCol < 0 {
		m.cursorCol = 0
	}
	if m.cursorCol >= len(columns) {
		m.cursorCol = len(columns) - 1
	}
	col := m.board[m.cursorCol]
	if m.cursorRow >= len(col) {
		m.cursorRow = len(col) - 1
	}
	if m.cursorRow < 0 {
		m.cursorRow = 0
	}
}

func (m Model) selectedTask() *store.Task {
	col := m.board[m.cursorCol]
	if m.cursorRow < len(col) {
		t := col[m.cursorRow]
		return &t
	}
	return nil
}

func (m *Model) flash(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
