package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/config"
	"github.com/imkarma/taskhive/internal/store"
)

var initUser string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize taskhive in the current directory",
	Long:  "Creates a .taskhive/ directory with default config and database.",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initUser, "user", "u", "", "Create a user with this name")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Check if already initialized.
	if _, err := os.Stat(hiveDirName); err == nil {
		return fmt.Errorf("taskhive already initialized in this directory (%s/ exists)", hiveDirName)
	}

	if err := os.MkdirAll(hiveDirName, 0755); err != nil {
		return fmt.Errorf("create %s: %w", hiveDirName, err)
	}

	cfg := config.DefaultConfig()
	if err := config.Save(hivePath("config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Create database by opening store (migrations run automatically).
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	defer s.Close()

	fmt.Printf("Initialized taskhive in %s/\n", hiveDirName)

	if initUser != "" {
		u, err := s.CreateUser(cmd.Context(), initUser)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("Created user %s (%s)\n", bold(u.Name), dim(u.ID))
	}

	fmt.Println("")
	fmt.Println("Next steps:")
	if initUser == "" {
		fmt.Println("  1. Run: taskhive owner user create <name>")
	} else {
		fmt.Println("  1. Edit .taskhive/config.yaml to set allowed_roots and your agent id")
	}
	fmt.Println("  2. Run: taskhive scan")
	fmt.Println("  3. Run: taskhive import <file>")

	return nil
}
