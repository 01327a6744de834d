package cli

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/store"
)

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the backlog as a kanban board",
	RunE:  runBoard,
}

func init() {
	addScopeFlags(boardCmd)
}

type boardColumn struct {
	status store.TaskStatus
	label  string
}

var boardColumns = []boardColumn{
	{store.StatusTodo, "TODO"},
	{store.StatusInProgress, "IN PROGRESS"},
	{store.StatusInReview, "IN REVIEW"},
	{store.StatusBlocked, "BLOCKED"},
	{store.StatusDone, "DONE"},
}

const boardColWidth = 26

func runBoard(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	scope, err := e.scopeFilter(ctx)
	if err != nil {
		return err
	}
	tasks, err := e.store.ListTasks(ctx, store.TaskFilter{Scope: scope})
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Printf("%s Import a list: %s\n", dim("Board is empty."), cyan("taskhive import <file>"))
		return nil
	}

	// Group tasks by status. Cancelled tasks are left off the board.
	columns := map[store.TaskStatus][]store.Task{}
	for _, t := range tasks {
		columns[t.Status] = append(columns[t.Status], t)
	}

	// Header.
	var header, sep strings.Builder
	for _, c := range boardColumns {
		label := fmt.Sprintf(" %s (%d)", c.label, len(columns[c.status]))
		header.WriteString(bold(statusColor(c.status)(label)))
		header.WriteString(pad(label, boardColWidth))
		sep.WriteString(strings.Repeat("─", boardColWidth))
	}
	fmt.Println(header.String())
	fmt.Println(dim(sep.String()))

	maxRows := 0
	for _, c := range boardColumns {
		if n := len(columns[c.status]); n > maxRows {
			maxRows = n
		}
	}

	for i := 0; i < maxRows; i++ {
		var line, detail strings.Builder
		for _, c := range boardColumns {
			col := columns[c.status]
			if i >= len(col) {
				line.WriteString(strings.Repeat(" ", boardColWidth))
				detail.WriteString(strings.Repeat(" ", boardColWidth))
				continue
			}
			t := col[i]

			id := t.ShortID()
			title := truncate(t.Title, boardColWidth-len(id)-3)
			plain := fmt.Sprintf(" %s %s", id, title)
			line.WriteString(fmt.Sprintf(" %s %s", priorityColor(t.Priority)(id), title))
			line.WriteString(pad(plain, boardColWidth))

			info := ""
			if t.Claim != nil {
				info = "    [" + truncate(t.Claim.Holder, boardColWidth-7) + "]"
				detail.WriteString(cyan(info))
			} else if t.Category != "" {
				info = "    " + truncate(t.Category, boardColWidth-5)
				detail.WriteString(dim(info))
			}
			detail.WriteString(pad(info, boardColWidth))
		}
		fmt.Println(line.String())
		fmt.Println(detail.String())
		fmt.Println()
	}

	// Summary line.
	fmt.Print(bold(fmt.Sprintf("%d tasks", len(tasks))))
	if n := len(columns[store.StatusDone]); n > 0 {
		fmt.Print("  " + green(fmt.Sprintf("✓ %d done", n)))
	}
	if n := len(columns[store.StatusInProgress]); n > 0 {
		fmt.Print("  " + blue(fmt.Sprintf("● %d in progress", n)))
	}
	if n := len(columns[store.StatusBlocked]); n > 0 {
		fmt.Print("  " + red(fmt.Sprintf("⚠ %d blocked", n)))
	}
	if n := len(columns[store.StatusCancelled]); n > 0 {
		fmt.Print("  " + dim(fmt.Sprintf("%d cancelled", n)))
	}
	fmt.Println()

	return nil
}

// pad returns the spaces needed after the visible text s to fill width.
func pad(s string, width int) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}
