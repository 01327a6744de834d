package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/brief"
)

var (
	claimBrief bool
	releaseBy  string
)

var claimCmd = &cobra.Command{
	Use:   "claim [id] [agent]",
	Short: "Claim a task for an agent",
	Long:  "Gives the agent exclusive ownership of the task and moves it to IN_PROGRESS. The agent defaults to the configured one.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runClaim,
}

var releaseCmd = &cobra.Command{
	Use:   "release [id]",
	Short: "Release a claimed task back to TODO",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

var claimedCmd = &cobra.Command{
	Use:   "claimed [agent]",
	Short: "List tasks an agent holds",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClaimed,
}

func init() {
	claimCmd.Flags().BoolVarP(&claimBrief, "brief", "b", false, "Print the task brief after claiming")
	releaseCmd.Flags().StringVar(&releaseBy, "by", "", "Agent recorded as releasing the task")
}

func runClaim(cmd *cobra.Command, args []string) error {
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
	explicit := ""
	if len(args) > 1 {
		explicit = args[1]
	}
	agent, err := e.agentOr(explicit)
	if err != nil {
		return err
	}

	task, err := e.ledger().Claim(ctx, id, agent)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindConflict {
			return fmt.Errorf("task %s is held by %s", args[0], apperr.HolderOf(err))
		}
		return err
	}

	fmt.Printf("%s claimed %s: %s\n", cyan(agent), bold(task.ShortID()), task.Title)
	if claimBrief {
		text, err := brief.New(e.store).Build(ctx, task)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println(text)
	}
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
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
	by := releaseBy
	if by == "" {
		by = e.cfg.Agent
	}

	task, err := e.ledger().Release(ctx, id, by)
	if err != nil {
		return err
	}
	fmt.Printf("Released %s: %s [%s]\n", bold(task.ShortID()), task.Title, task.Status)
	return nil
}

func runClaimed(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	explicit := ""
	if len(args) > 0 {
		explicit = args[0]
	}
	agent, err := e.agentOr(explicit)
	if err != nil {
		return err
	}

	tasks, err := e.ledger().ListClaimedBy(cmd.Context(), agent)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Printf("%s holds no tasks.\n", agent)
		return nil
	}
	for _, t := range tasks {
		since := ""
		if t.Claim != nil {
			since = humanize.Time(t.Claim.ClaimedAt)
		}
		fmt.Printf("%s  %-6s %s %s\n", bold(t.ShortID()), priorityColor(t.Priority)(t.Priority), t.Title, dim("claimed "+since))
	}
	return nil
}
