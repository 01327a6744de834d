package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/config"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/ledger"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/pathguard"
	"github.com/imkarma/taskhive/internal/store"
)

const hiveDirName = ".taskhive"

// Terminal colours for user-facing output.
var (
	bold    = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	green   = color.New(color.FgGreen).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	blue    = color.New(color.FgBlue).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
)

// hivePath returns the path to a file inside .taskhive/.
func hivePath(parts ...string) string {
	elems := append([]string{hiveDirName}, parts...)
	return filepath.Join(elems...)
}

// configFile is the config path in effect: --config, or .taskhive/config.yaml.
func configFile() string {
	if flagConfig != "" {
		return flagConfig
	}
	return hivePath("config.yaml")
}

// loadConfig reads the workspace config and installs the logger it asks for.
// Logs go to stderr so stdout stays clean for command output and MCP frames.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOrDefault(configFile())
	if err != nil {
		return nil, nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	return cfg, log, nil
}

// mustStore opens the store, returning an error if taskhive is not initialized.
func mustStore(cfg *config.Config) (*store.Store, error) {
	if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("taskhive not initialized. Run: taskhive init")
	}
	return store.New(cfg.DBPath)
}

// env bundles what most commands need. Close releases the store.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store *store.Store
}

func openEnv() (*env, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := mustStore(cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, store: s}, nil
}

func (e *env) Close() {
	e.store.Close()
}

func (e *env) guard() *pathguard.Validator {
	return pathguard.New(e.cfg.PathOptions())
}

func (e *env) importer() *importer.Importer {
	return importer.New(importer.Config{
		Store:         e.store,
		Guard:         e.guard(),
		Logger:        e.log,
		FallbackPhase: e.cfg.FallbackPhase,
		Workers:       e.cfg.ImportWorkers,
	})
}

func (e *env) ledger() *ledger.Ledger {
	return ledger.New(e.store, e.log)
}

// agentOr returns explicit, or the configured default agent.
func (e *env) agentOr(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if e.cfg.Agent != "" {
		return e.cfg.Agent, nil
	}
	return "", fmt.Errorf("no agent given and no default agent configured (set agent in %s or TASKHIVE_AGENT)", configFile())
}

// resolveTask expands a task ID prefix.
func (e *env) resolveTask(ctx context.Context, raw string) (string, error) {
	return e.store.ResolveTaskID(ctx, raw)
}

// Scope flags shared by commands that act on one owner scope.
var (
	scopeUser    string
	scopeProject string
	scopeBoard   string
)

func addScopeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&scopeUser, "user", "u", "", "Owning user (ID or name)")
	cmd.Flags().StringVar(&scopeProject, "project", "", "Owning project ID")
	cmd.Flags().StringVar(&scopeBoard, "board", "", "Owning board ID")
}

// scope builds the owner scope from flags. A user name is resolved to its
// ID. If no user is given and exactly one exists, that user is used.
func (e *env) scope(ctx context.Context) (store.OwnerScope, error) {
	user := scopeUser
	if user == "" {
		users, err := e.store.ListUsers(ctx)
		if err != nil {
			return store.OwnerScope{}, err
		}
		if len(users) != 1 {
			return store.OwnerScope{}, fmt.Errorf("--user is required (%d users exist)", len(users))
		}
		user = users[0].ID
	}
	u, err := e.store.GetUser(ctx, user)
	if err != nil {
		return store.OwnerScope{}, err
	}
	return store.OwnerScope{UserID: u.ID, ProjectID: scopeProject, BoardID: scopeBoard}, nil
}

// scopeFilter is like scope but returns nil when no scope flag is set.
func (e *env) scopeFilter(ctx context.Context) (*store.OwnerScope, error) {
	if scopeUser == "" && scopeProject == "" && scopeBoard == "" {
		return nil, nil
	}
	sc, err := e.scope(ctx)
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func statusColor(st store.TaskStatus) func(a ...interface{}) string {
	switch st {
	case store.StatusInProgress:
		return blue
	case store.StatusInReview:
		return magenta
	case store.StatusBlocked:
		return red
	case store.StatusDone:
		return green
	case store.StatusCancelled:
		return dim
	default:
		return fmt.Sprint
	}
}

func priorityColor(p store.Priority) func(a ...interface{}) string {
	switch p {
	case store.PriorityUrgent:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case store.PriorityHigh:
		return red
	case store.PriorityMedium:
		return yellow
	default:
		return dim
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
