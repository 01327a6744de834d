package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imkarma/taskhive/internal/store"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrMagenta   = lipgloss.AdaptiveColor{Light: "#A21CAF", Dark: "#E879F9"}
	clrCyan      = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle   = lipgloss.NewStyle().Foreground(clrDim)

	columnStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1)

	columnActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrHighlight).
				Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	switch m.screen {
	case screenDetail:
		return m.viewDetail()
	default:
		return m.viewBoard()
	}
}

func (m Model) viewBoard() string {
	var b strings.Builder

	header := titleStyle.Render("taskhive")
	header += dimStyle.Render(fmt.Sprintf(" — %d tasks • agent %s", len(m.tasks), m.agent))
	if m.filterString != "" {
		header += dimStyle.Render(fmt.Sprintf(" • filter %q", m.filterString))
	}
	b.WriteString(header + "\n\n")

	if len(m.tasks) == 0 {
		b.WriteString(dimStyle.Render("  Backlog is empty. Import a list with: taskhive import <file>\n"))
		b.WriteString("\n" + renderFooter([]footerKey{{"q", "quit"}}))
		return b.String()
	}

	width := 28
	if m.width > 0 {
		width = m.width/len(columns) - 2
		if width < 18 {
			width = 18
		}
	}
	rows := 10
	if m.height > 0 {
		rows = (m.height - 10) / 2
		if rows < 3 {
			rows = 3
		}
	}

	var rendered []string
	for i, c := range columns {
		rendered = append(rendered, m.renderColumn(i, c, width, rows))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, rendered...))
	b.WriteString("\n")

	if m.filtering {
		b.WriteString("\n  / " + m.filter.View() + "\n")
	}

	// Status bar.
	if m.statusMsg != "" {
		b.WriteString("\n")
		lower := strings.ToLower(m.statusMsg)
		if strings.HasPrefix(lower, "failed") || strings.HasPrefix(lower, "error") {
			b.WriteString(errorStyle.Render("  " + m.statusMsg))
		} else {
			b.WriteString(statusStyle.Render("  " + m.statusMsg))
		}
	}

	b.WriteString("\n")
	b.WriteString(renderFooter([]footerKey{
		{"↑↓←→", "navigate"},
		{"enter", "brief"},
		{"c", "claim"},
		{"x", "release"},
		{"v", "review"},
		{"d", "done"},
		{"/", "filter"},
		{"R", "refresh"},
		{"q", "quit"},
	}))
	return b.String()
}

func (m Model) renderColumn(idx int, c column, width, rows int) string {
	var content strings.Builder
	tasks := m.board[idx]

	label := lipgloss.NewStyle().Bold(true).Foreground(statusColor(c.status)).
		Render(fmt.Sprintf("%s (%d)", c.label, len(tasks)))
	content.WriteString(label + "\n")

	// Scroll so the cursor stays visible in the active column.
	start := 0
	if idx == m.cursorCol && m.cursorRow >= rows {
		start = m.cursorRow - rows + 1
	}
	end := start + rows
	if end > len(tasks) {
		end = len(tasks)
	}

	for i := start; i < end; i++ {
		t := tasks[i]
		selected := idx == m.cursorCol && i == m.cursorRow
		content.WriteString(m.renderCard(t, selected, width-2) + "\n")
	}
	if end < len(tasks) {
		content.WriteString(dimStyle.Render(fmt.Sprintf("+%d more", len(tasks)-end)))
	}

	style := columnStyle
	if idx == m.cursorCol {
		style = columnActiveStyle
	}
	return style.Width(width).Render(content.String())
}

func (m Model) renderCard(t store.Task, selected bool, width int) string {
	cursor := "  "
	if selected {
		cursor = lipgloss.NewStyle().Foreground(clrHighlight).Render("▸ ")
	}
	id := lipgloss.NewStyle().Foreground(priorityColor(t.Priority)).Render(t.ShortID())
	title := truncate(t.Title, width-2)
	if selected {
		title = lipgloss.NewStyle().Bold(true).Render(title)
	}

	second := ""
	switch {
	case t.Claim != nil:
		second = lipgloss.NewStyle().Foreground(clrCyan).Render(truncate("@"+t.Claim.Holder, width-4))
	case t.Category != "":
		second = dimStyle.Render(truncate(t.Category, width-4))
	}
	return cursor + id + "\n  " + title + "\n  " + second
}

func (m Model) viewDetail() string {
	var b strings.Builder

	title := "Task"
	if m.detailTask != nil {
		title = m.detailTask.ShortID() + " " + m.detailTask.Title
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render("esc back"))
	b.WriteString("\n\n")

	b.WriteString(m.detail.View())
	b.WriteString("\n")

	if m.statusMsg != "" {
		b.WriteString(statusStyle.Render("  "+m.statusMsg) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(renderFooter([]footerKey{
		{"↑↓", "scroll"},
		{"c", "claim"},
		{"x", "release"},
		{"esc", "back"},
	}))
	return b.String()
}

// --- Shared helpers ---

type footerKey struct{ key, desc string }

func renderFooter(keys []footerKey) string {
	var parts []string
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+" "+footerDescStyle.Render(k.desc))
	}
	return "  " + strings.Join(parts, "  ")
}

func statusColor(st store.TaskStatus) lipgloss.AdaptiveColor {
	switch st {
	case store.StatusInProgress:
		return clrBlue
	case store.StatusInReview:
		return clrMagenta
	case store.StatusBlocked:
		return clrRed
	case store.StatusDone:
		return clrGreen
	default:
		return clrSubtle
	}
}

func priorityColor(p store.Priority) lipgloss.AdaptiveColor {
	switch p {
	case store.PriorityUrgent, store.PriorityHigh:
		return clrRed
	case store.PriorityMedium:
		return clrYellow
	default:
		return clrDim
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
