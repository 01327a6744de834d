package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var ownerCmd = &cobra.Command{
	Use:   "owner",
	Short: "Manage users, projects and boards that own tasks",
}

var ownerUserCmd = &cobra.Command{
	Use:   "user [name]",
	Short: "Create a user, or list users when no name is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOwnerUser,
}

var ownerProjectCmd = &cobra.Command{
	Use:   "project [user] [name]",
	Short: "Create a project owned by a user (ID or name)",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runOwnerProject,
}

var ownerBoardCmd = &cobra.Command{
	Use:   "board [project-id] [name]",
	Short: "Create a board inside a project",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runOwnerBoard,
}

func init() {
	ownerCmd.AddCommand(ownerUserCmd)
	ownerCmd.AddCommand(ownerProjectCmd)
	ownerCmd.AddCommand(ownerBoardCmd)
}

func runOwnerUser(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	if len(args) == 1 {
		u, err := e.store.CreateUser(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Created user %s (%s)\n", bold(u.Name), u.ID)
		return nil
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Printf("No users. Run: %s\n", cyan("taskhive owner user <name>"))
		return nil
	}
	for _, u := range users {
		fmt.Printf("%s  %s\n", u.ID, bold(u.Name))
	}
	return nil
}

func runOwnerProject(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	u, err := e.store.GetUser(ctx, args[0])
	if err != nil {
		return err
	}
	p, err := e.store.CreateProject(ctx, u.ID, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Created project %s (%s) for %s\n", bold(p.Name), p.ID, u.Name)
	return nil
}

func runOwnerBoard(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	b, err := e.store.CreateBoard(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Created board %s (%s)\n", bold(b.Name), b.ID)
	return nil
}
