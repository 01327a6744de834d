package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/store"
)

var (
	taskPriority    string
	taskDescription string
	taskStatus      string
	taskCategory    string
	taskPhase       string
	taskHolder      string
	taskLimit       int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create or manage tasks",
	Long:  "Create tasks by hand or inspect and update the backlog.",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create [title]",
	Short: "Create a new task at the end of the backlog",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskCreate,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in backlog order",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStatusCmd = &cobra.Command{
	Use:   "status [id] [status]",
	Short: "Change a task's status",
	Long:  "Sets the status: todo, in_progress, in_review, done, blocked or cancelled. Leaving IN_PROGRESS drops any claim.",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskStatus,
}

var taskPriorityCmd = &cobra.Command{
	Use:   "priority [id] [priority]",
	Short: "Change a task's priority",
	Args:  cobra.ExactArgs(2),
	RunE:  runTaskPriority,
}

func init() {
	taskCreateCmd.Flags().StringVarP(&taskPriority, "priority", "p", "medium", "Priority: low, medium, high, urgent")
	taskCreateCmd.Flags().StringVarP(&taskDescription, "desc", "d", "", "Task description")
	addScopeFlags(taskCreateCmd)

	taskListCmd.Flags().StringVarP(&taskStatus, "status", "s", "", "Only tasks with this status")
	taskListCmd.Flags().StringVarP(&taskCategory, "category", "c", "", "Only tasks in this category")
	taskListCmd.Flags().StringVar(&taskPhase, "phase", "", "Only tasks in this phase")
	taskListCmd.Flags().StringVar(&taskHolder, "holder", "", "Only tasks claimed by this agent")
	taskListCmd.Flags().IntVarP(&taskLimit, "limit", "l", 0, "Maximum number of tasks")
	addScopeFlags(taskListCmd)

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskStatusCmd)
	taskCmd.AddCommand(taskPriorityCmd)
}

func runTaskCreate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	scope, err := e.scope(ctx)
	if err != nil {
		return err
	}
	priority, ok := store.ParsePriority(taskPriority)
	if !ok {
		return fmt.Errorf("invalid priority: %s", taskPriority)
	}

	task, err := e.store.CreateTask(ctx, scope, strings.Join(args, " "), taskDescription, priority)
	if err != nil {
		return err
	}

	fmt.Printf("Created task %s: %s [%s]\n", bold(task.ShortID()), task.Title, task.Priority)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	filter := store.TaskFilter{
		Category: taskCategory,
		Phase:    taskPhase,
		Holder:   taskHolder,
		Limit:    taskLimit,
	}
	if filter.Scope, err = e.scopeFilter(ctx); err != nil {
		return err
	}
	if taskStatus != "" {
		st, ok := store.ParseStatus(taskStatus)
		if !ok {
			return fmt.Errorf("invalid status: %s", taskStatus)
		}
		filter.Status = st
	}

	tasks, err := e.store.ListTasks(ctx, filter)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}

	for _, t := range tasks {
		holder := ""
		if t.Claim != nil {
			holder = cyan(fmt.Sprintf(" [%s]", t.Claim.Holder))
		}
		fmt.Printf("%4d  %s  %-12s %-7s %s%s\n",
			t.Position, bold(t.ShortID()), statusColor(t.Status)(t.Status), t.Priority, t.Title, holder)
	}
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	id, err := e.resolveTask(ctx, args[0])
	if err != nil {
		return err
	}
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Task %s\n", bold(task.ID))
	fmt.Printf("  Title:    %s\n", task.Title)
	fmt.Printf("  Status:   %s\n", statusColor(task.Status)(task.Status))
	fmt.Printf("  Priority: %s\n", priorityColor(task.Priority)(task.Priority))
	fmt.Printf("  Position: %d\n", task.Position)
	if task.Category != "" {
		fmt.Printf("  Category: %s\n", task.Category)
	}
	if task.Phase != "" {
		fmt.Printf("  Phase:    %s\n", task.Phase)
	}
	if len(task.Tags) > 0 {
		fmt.Printf("  Tags:     %s\n", strings.Join(task.Tags, ", "))
	}
	if task.Description != "" {
		fmt.Printf("  Desc:     %s\n", task.Description)
	}
	if task.Claim != nil {
		fmt.Printf("  Holder:   %s (since %s)\n", cyan(task.Claim.Holder), task.Claim.ClaimedAt.Local().Format("2006-01-02 15:04"))
	}
	if p := task.Provenance; p != nil {
		fmt.Printf("  Source:   %s (%s)\n", p.SourceFile, p.ListName)
		fmt.Printf("  Import:   %s at %s\n", p.ImportID, p.ImportedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("  Created:  %s\n", task.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  Updated:  %s\n", task.UpdatedAt.Local().Format("2006-01-02 15:04"))

	// Show events.
	events, err := e.store.GetEvents(ctx, task.ID)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Println("\n  Events:")
		for _, ev := range events {
			agent := ""
			if ev.Agent != "" {
				agent = fmt.Sprintf("[%s] ", ev.Agent)
			}
			fmt.Printf("    %s %s%s: %s\n", ev.Timestamp.Local().Format("15:04"), agent, ev.Type, ev.Content)
		}
	}

	return nil
}

func runTaskStatus(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	id, err := e.resolveTask(ctx, args[0])
	if err != nil {
		return err
	}
	st, ok := store.ParseStatus(args[1])
	if !ok {
		return fmt.Errorf("invalid status: %s", args[1])
	}

	if err := e.store.UpdateTaskStatus(ctx, id, st, e.cfg.Agent); err != nil {
		return err
	}
	fmt.Printf("Task %s is now %s\n", bold(args[0]), statusColor(st)(st))
	return nil
}

func runTaskPriority(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	id, err := e.resolveTask(ctx, args[0])
	if err != nil {
		return err
	}
	p, ok := store.ParsePriority(args[1])
	if !ok {
		return fmt.Errorf("invalid priority: %s", args[1])
	}

	if err := e.store.UpdateTaskPriority(ctx, id, p, e.cfg.Agent); err != nil {
		return err
	}
	fmt.Printf("Task %s priority set to %s\n", bold(args[0]), priorityColor(p)(p))
	return nil
}
