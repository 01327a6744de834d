package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/store"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			return m.handleFilterKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vw, vh := m.width-4, m.height-6
		if vw < 20 {
			vw = 20
		}
		if vh < 6 {
			vh = 6
		}
		m.detail.Width = vw
		m.detail.Height = vh
		return m, nil

	case tasksLoadedMsg:
		m.refreshing = false
		if msg.err != nil {
			m.flash("Failed to load tasks: " + msg.err.Error())
			return m, nil
		}
		m.tasks = msg.tasks
		m.rebuildBoard()
		return m, nil

	case briefLoadedMsg:
		if msg.err != nil {
			m.flash("Error: " + msg.err.Error())
			return m, nil
		}
		m.detailTask = msg.task
		m.detail.SetContent(msg.content)
		m.detail.GotoTop()
		m.screen = screenDetail
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.flash(describeError(msg.err))
		} else {
			m.flash(msg.status)
		}
		cmds := []tea.Cmd{m.loadTasks()}
		if m.screen == screenDetail && m.detailTask != nil {
			cmds = append(cmds, m.loadBrief(m.detailTask.ID))
		}
		return m, tea.Batch(cmds...)

	case tickMsg:
		cmds := []tea.Cmd{tickCmd()}
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.loadTasks())
		}
		return m, tea.Batch(cmds...)
	}

	if m.screen == screenDetail {
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "q":
		if m.screen == screenBoard {
			m.quitting = true
			return m, tea.Quit
		}
		m.screen = screenBoard
		return m, nil
	}

	if m.screen == screenDetail {
		return m.handleDetailKey(msg)
	}
	return m.handleBoardKey(msg)
}

func (m Model) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	// Navigation.
	case "j", "down":
		m.cursorRow++
		m.clampCursor()
	case "k", "up":
		m.cursorRow--
		m.clampCursor()
	case "h", "left":
		m.cursorCol--
		m.clampCursor()
	case "l", "right":
		m.cursorCol++
		m.clampCursor()

	case "enter", " ":
		if t := m.selectedTask(); t != nil {
			return m, m.loadBrief(t.ID)
		}

	case "c":
		if t := m.selectedTask(); t != nil {
			return m, m.claim(t.ID)
		}
	case "x":
		if t := m.selectedTask(); t != nil {
			return m, m.release(t.ID)
		}
	case "d":
		if t := m.selectedTask(); t != nil {
			return m, m.setStatus(t.ID, store.StatusDone)
		}
	case "v":
		if t := m.selectedTask(); t != nil {
			return m, m.setStatus(t.ID, store.StatusInReview)
		}

	case "/":
		m.filtering = true
		m.filter.SetValue(m.filterString)
		m.filter.Focus()
		return m, textinput.Blink
	case "esc":
		if m.filterString != "" {
			m.filterString = ""
			m.rebuildBoard()
		}

	case "R":
		return m, m.loadTasks()
	}

	return m, nil
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "backspace":
		m.screen = screenBoard
		m.detailTask = nil
		return m, m.loadTasks()
	case "c":
		if m.detailTask != nil {
			return m, m.claim(m.detailTask.ID)
		}
	case "x":
		if m.detailTask != nil {
			return m, m.release(m.detailTask.ID)
		}
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filtering = false
		m.filter.Blur()
		return m, nil
	case "enter":
		m.filtering = false
		m.filter.Blur()
		m.filterString = m.filter.Value()
		m.cursorRow = 0
		m.rebuildBoard()
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func describeError(err error) string {
	if apperr.KindOf(err) == apperr.KindConflict {
		return "Failed: held by " + apperr.HolderOf(err)
	}
	return "Failed: " + err.Error()
}
