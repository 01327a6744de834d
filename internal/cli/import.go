package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/importer"
	"github.com/imkarma/taskhive/internal/pathguard"
)

var (
	importDryRun         bool
	importStrict         bool
	importSkipDuplicates bool
	scanDepth            int
	scanMinItems         int
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a master task list into the backlog",
	Long:  "Parses a markdown checklist (optionally with YAML front matter) and appends one task per item to the backlog, in document order.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var importAllCmd = &cobra.Command{
	Use:   "import-all [file...]",
	Short: "Import several task lists",
	Long:  "Validates every path first; one rejected path aborts the whole batch. Accepted files are imported in the given order.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImportAll,
}

var scanCmd = &cobra.Command{
	Use:   "scan [dir]",
	Short: "Find files that look like master task lists",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

var validateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Check paths against the import rules without reading them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	for _, cmd := range []*cobra.Command{importCmd, importAllCmd} {
		cmd.Flags().BoolVarP(&importDryRun, "dry-run", "n", false, "Parse and count without creating tasks")
		cmd.Flags().BoolVar(&importStrict, "strict", false, "Fail files with unrecognized lines")
		cmd.Flags().BoolVar(&importSkipDuplicates, "skip-duplicates", false, "Skip files already imported into the scope")
		addScopeFlags(cmd)
	}

	scanCmd.Flags().IntVar(&scanDepth, "depth", importer.DefaultScanDepth, "Directory levels to descend")
	scanCmd.Flags().IntVar(&scanMinItems, "min-items", importer.DefaultMinChecklistItems, "Checklist items needed when the name gives no hint")
}

func importOptions(e *env) importer.Options {
	return importer.Options{
		DryRun:         importDryRun,
		Strict:         importStrict,
		SkipDuplicates: importSkipDuplicates,
		Timeout:        e.cfg.ImportTimeout,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
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

	res, err := e.importer().ImportOne(ctx, scope, args[0], importOptions(e))
	if err != nil {
		return describeImportError(err)
	}
	printFileResult(res)
	return res.Err()
}

func runImportAll(cmd *cobra.Command, args []string) error {
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

	batch, err := e.importer().ImportMany(ctx, scope, args, importOptions(e))
	if err != nil {
		return describeImportError(err)
	}
	for i := range batch.Files {
		printFileResult(&batch.Files[i])
	}
	fmt.Printf("\n%s across %d files\n", bold(fmt.Sprintf("%d tasks created", batch.TotalCreated)), len(batch.Files))
	return batch.Err()
}

func printFileResult(r *importer.FileResult) {
	name := filepath.Base(r.File)
	switch {
	case r.Error != "":
		fmt.Printf("%s %s: %s\n", red("✗"), name, r.Error)
		for _, line := range r.UnrecognizedLines {
			fmt.Printf("    line %d not recognized\n", line)
		}
	case r.Skipped:
		fmt.Printf("%s %s: already imported, skipped\n", dim("-"), name)
	case r.DryRun:
		fmt.Printf("%s %s: %d tasks found in %q (dry run)\n", cyan("?"), name, r.Found, r.ListName)
	case r.Partial():
		fmt.Printf("%s %s: %d of %d tasks created\n", yellow("!"), name, r.Created, r.Found)
		for _, msg := range r.Errors {
			fmt.Printf("    %s\n", msg)
		}
	default:
		fmt.Printf("%s %s: %d tasks created from %q\n", green("✓"), name, r.Created, r.ListName)
	}
}

// describeImportError expands a batch rejection into one line per path.
func describeImportError(err error) error {
	if apperr.KindOf(err) != apperr.KindPathRejected {
		return err
	}
	if be, ok := asBatchError(err); ok {
		for _, f := range be.Failures {
			fmt.Fprintf(os.Stderr, "%s %s: %s\n", red("✗"), f.Path, f.Reason.Message())
		}
		return fmt.Errorf("batch rejected: %d paths failed validation, nothing was imported", len(be.Failures))
	}
	return fmt.Errorf("path rejected: %s", pathguard.Reason(apperr.ReasonOf(err)).Message())
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	root := "."
	if len(args) > 0 {
		root = args[0]
	}

	found, err := importer.Scan(cmd.Context(), pathguard.New(cfg.PathOptions()), root, importer.ScanOptions{
		MaxDepth:          scanDepth,
		MinChecklistItems: scanMinItems,
	})
	if err != nil {
		return describeImportError(err)
	}

	if len(found) == 0 {
		fmt.Println("No task lists found.")
		return nil
	}
	for _, c := range found {
		fmt.Printf("%-8s %4d items  %s  %s\n", humanize.Bytes(uint64(c.Size)), c.ChecklistItems, dim("("+c.Reason+")"), c.Path)
	}
	fmt.Printf("\n%d candidates. Import with: %s\n", len(found), cyan("taskhive import-all <files>"))
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	guard := pathguard.New(cfg.PathOptions())

	failed := 0
	for _, p := range args {
		canonical, err := guard.Validate(p)
		if err != nil {
			failed++
			fmt.Printf("%s %s: %s\n", red("✗"), p, pathguard.ReasonOf(err).Message())
			continue
		}
		fmt.Printf("%s %s\n", green("✓"), canonical)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d paths rejected", failed, len(args))
	}
	return nil
}

func asBatchError(err error) (*pathguard.BatchError, bool) {
	var be *pathguard.BatchError
	ok := errors.As(err, &be)
	return be, ok
}
