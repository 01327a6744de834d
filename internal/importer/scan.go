package importer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/masterlist"
	"github.com/imkarma/taskhive/internal/pathguard"
)

// Scan defaults.
const (
	DefaultScanDepth         = 3
	DefaultMinChecklistItems = 3
	sniffBytes               = 64 << 10
)

var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

var nameHints = []string{"task", "todo", "backlog", "checklist", "roadmap", "plan", "master"}

// ScanOptions tune Scan.
type ScanOptions struct {
	MaxDepth          int // directories below root to descend; zero means DefaultScanDepth
	MinChecklistItems int // content threshold for files without a name hint
}

// Candidate is a file that looks like a master task list.
type Candidate struct {
	Path           string `json:"path"`
	Size           int64  `json:"size"`
	ChecklistItems int    `json:"checklist_items"`
	Reason         string `json:"reason"` // "name" or "content"
}

// Scan walks root looking for files that look like master task lists.
// The result is advisory: every candidate still goes through the validator
// when it is imported. root itself must lie inside the allowed roots.
func (im *Importer) Scan(ctx context.Context, root string, opts ScanOptions) ([]Candidate, error) {
	return Scan(ctx, im.guard, root, opts)
}

// Scan is the standalone form of Importer.Scan.
func Scan(ctx context.Context, guard *pathguard.Validator, root string, opts ScanOptions) ([]Candidate, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultScanDepth
	}
	if opts.MinChecklistItems <= 0 {
		opts.MinChecklistItems = DefaultMinChecklistItems
	}

	abs, err := guard.ValidateDir(root)
	if err != nil {
		return nil, apperr.PathRejected("scan", string(pathguard.ReasonOf(err)), err)
	}

	var found []Candidate
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == abs {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				return filepath.SkipDir
			}
			if depth(abs, path) > opts.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !guard.AllowsExtension(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > guard.MaxFileSize() {
			return nil
		}

		items := countChecklist(path)
		reason := ""
		switch {
		case hasNameHint(d.Name()):
			reason = "name"
		case items >= opts.MinChecklistItems:
			reason = "content"
		default:
			return nil
		}
		found = append(found, Candidate{
			Path:           path,
			Size:           info.Size(),
			ChecklistItems: items,
			Reason:         reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func depth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func hasNameHint(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range nameHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// countChecklist counts checklist lines in the first 64 KiB of the file.
func countChecklist(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, sniffBytes))
	if err != nil {
		return 0
	}
	return masterlist.CountChecklistItems(string(head))
}
