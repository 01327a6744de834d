package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Quick status overview",
	RunE:  runStatus,
}

func init() {
	addScopeFlags(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	counts, err := e.store.CountByStatus(ctx, scope)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		fmt.Printf("No tasks. Run: %s\n", cyan("taskhive import <file>"))
		return nil
	}

	fmt.Println(bold(fmt.Sprintf("Tasks: %d total", total)))
	for _, st := range store.AllStatuses {
		fmt.Printf("  %-14s %s\n", string(st)+":", statusColor(st)(counts[st]))
	}

	// Who holds what.
	claimed, err := e.store.ListTasks(ctx, store.TaskFilter{Scope: scope, Status: store.StatusInProgress})
	if err != nil {
		return err
	}
	holders := map[string]int{}
	var order []string
	for _, t := range claimed {
		if t.Claim == nil {
			continue
		}
		if holders[t.Claim.Holder] == 0 {
			order = append(order, t.Claim.Holder)
		}
		holders[t.Claim.Holder]++
	}
	if len(order) > 0 {
		fmt.Println()
		fmt.Println(bold("Agents:"))
		for _, a := range order {
			fmt.Printf("  %-20s %d claimed\n", cyan(a), holders[a])
		}
	}

	blocked, err := e.store.ListTasks(ctx, store.TaskFilter{Scope: scope, Status: store.StatusBlocked})
	if err != nil {
		return err
	}
	if len(blocked) > 0 {
		fmt.Printf("\n%s\n", red(bold("⚠  Blocked:")))
		for _, t := range blocked {
			fmt.Printf("  %s: %s\n", yellow(t.ShortID()), t.Title)
		}
	}

	return nil
}
