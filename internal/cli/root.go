package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "taskhive",
	Short: "Shared backlog for AI agents",
	Long: "taskhive — import master task lists into a backlog and let agents claim work from it.\n" +
		"Use it from the shell, over HTTP (taskhive serve) or as an MCP tool server (taskhive mcp).",
	SilenceUsage: true,
}

// Execute runs the root command. Long-running commands (serve, mcp, ui)
// stop when ctx is cancelled.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default .taskhive/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level: debug, info, warn, error")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(importAllCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(claimedCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(uiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
}
