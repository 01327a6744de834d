package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/store"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [task-id]",
	Short: "Show the event log for a task, or recent events across the backlog",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLog,
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "l", 20, "Number of recent events when no task is given")
}

func runLog(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	var events []store.Event
	if len(args) == 1 {
		id, err := e.resolveTask(ctx, args[0])
		if err != nil {
			return err
		}
		if events, err = e.store.GetEvents(ctx, id); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Printf("No events for task %s\n", args[0])
			return nil
		}
		fmt.Printf("Events for task %s:\n\n", bold(args[0]))
	} else {
		if events, err = e.store.RecentEvents(ctx, logLimit); err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("No events yet.")
			return nil
		}
	}

	for _, ev := range events {
		agent := ""
		if ev.Agent != "" {
			agent = cyan("["+ev.Agent+"]") + " "
		}
		task := ""
		if len(args) == 0 && len(ev.TaskID) >= 8 {
			task = dim(ev.TaskID[:8]) + " "
		}
		fmt.Printf("  %s  %s%s%-16s %s\n", ev.Timestamp.Local().Format("2006-01-02 15:04:05"), task, agent, ev.Type, ev.Content)
	}
	return nil
}
