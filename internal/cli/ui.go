package cli

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/tui"
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive backlog browser",
	Long:  "Opens a kanban view of the backlog where tasks can be inspected, claimed and released.",
	RunE:  runUI,
}

func runUI(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	agent := e.cfg.Agent
	if agent == "" {
		agent = "tui"
	}

	model := tui.New(e.store, e.ledger(), agent)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
