// Package importer turns master task list files into backlog tasks.
//
// Every path goes through the validator before it is opened. Batch
// validation is all-or-nothing; once a batch is accepted, failures to
// create individual tasks are recorded per file and never stop the rest
// of the import.
package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/imkarma/taskhive/internal/apperr"
	"github.com/imkarma/taskhive/internal/logging"
	"github.com/imkarma/taskhive/internal/masterlist"
	"github.com/imkarma/taskhive/internal/pathguard"
	"github.com/imkarma/taskhive/internal/store"
	"github.com/imkarma/taskhive/internal/worker"
)

// DefaultTimeout bounds reading and parsing a single file.
const DefaultTimeout = 30 * time.Second

// Options tune a single import call.
type Options struct {
	DryRun         bool          // parse and count only
	Strict         bool          // fail a file that contains unrecognized lines
	SkipDuplicates bool          // skip files whose content was already imported into the scope
	Timeout        time.Duration // per file read+parse bound; zero means DefaultTimeout
}

// FileResult reports what happened to one file.
type FileResult struct {
	File              string   `json:"file"`
	ListName          string   `json:"list_name,omitempty"`
	ImportID          string   `json:"import_id,omitempty"`
	Found             int      `json:"found"`
	Created           int      `json:"created"`
	Success           bool     `json:"success"`
	Skipped           bool     `json:"skipped,omitempty"`
	DryRun            bool     `json:"dry_run,omitempty"`
	Error             string   `json:"error,omitempty"`
	Errors            []string `json:"errors,omitempty"`
	TaskIDs           []string `json:"task_ids,omitempty"`
	UnrecognizedLines []int    `json:"unrecognized_lines,omitempty"`
}

// Partial reports whether any task of the file could not be created.
func (r *FileResult) Partial() bool {
	return len(r.Errors) > 0
}

// Err returns a partial-import error if the file failed or any of its
// tasks could not be created.
func (r *FileResult) Err() error {
	switch {
	case !r.Success:
		return apperr.PartialImport("import file", fmt.Sprintf("%s: %s", r.File, r.Error))
	case r.Partial():
		return apperr.PartialImport("import file", fmt.Sprintf("%s: %d of %d tasks failed", r.File, len(r.Errors), r.Found))
	}
	return nil
}

// BatchResult aggregates an ImportMany call.
type BatchResult struct {
	Files        []FileResult `json:"files"`
	TotalCreated int          `json:"total_created"`
}

// Failed reports whether any file failed or had per-task errors.
func (b *BatchResult) Failed() bool {
	for _, f := range b.Files {
		if !f.Success || f.Partial() {
			return true
		}
	}
	return false
}

// Err returns a partial-import error naming how many files did not import
// cleanly, or nil.
func (b *BatchResult) Err() error {
	failed := 0
	for i := range b.Files {
		if b.Files[i].Err() != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return apperr.PartialImport("import files", fmt.Sprintf("%d of %d files did not import cleanly", failed, len(b.Files)))
}

// Importer runs the validate → read → parse → flatten → persist pipeline.
type Importer struct {
	store         *store.Store
	guard         *pathguard.Validator
	log           *slog.Logger
	fallbackPhase string
	workers       int
	now           func() time.Time
	read          func(path string, max int64) ([]byte, error)
	insert        func(ctx context.Context, t *store.Task) error
}

// Config configures an Importer.
type Config struct {
	Store         *store.Store
	Guard         *pathguard.Validator
	Logger        *slog.Logger
	FallbackPhase string // empty means masterlist.FallbackPhase
	Workers       int    // files read and parsed concurrently; below 1 means 1
}

// New creates an importer.
func New(c Config) *Importer {
	workers := c.Workers
	if workers < 1 {
		workers = 1
	}
	return &Importer{
		store:         c.Store,
		guard:         c.Guard,
		log:           logging.OrDefault(c.Logger),
		fallbackPhase: c.FallbackPhase,
		workers:       workers,
		now:           func() time.Time { return time.Now().UTC() },
		read:          readLimited,
		insert:        c.Store.InsertTask,
	}
}

// Validator returns the path validator the importer uses.
func (im *Importer) Validator() *pathguard.Validator {
	return im.guard
}

// prepared is a file that has been read, parsed and flattened.
type prepared struct {
	path   string
	hash   string
	list   *masterlist.FlatList
	strict *masterlist.ParseError
}

// ImportOne imports a single file into scope. Scope and path problems are
// returned as errors; everything after validation is reported in the result.
func (im *Importer) ImportOne(ctx context.Context, scope store.OwnerScope, path string, opts Options) (*FileResult, error) {
	if err := im.store.CheckScope(ctx, scope); err != nil {
		return nil, err
	}
	canonical, err := im.guard.Validate(path)
	if err != nil {
		im.log.Warn("import rejected", "path", path, "reason", pathguard.ReasonOf(err))
		return nil, apperr.PathRejected("import file", string(pathguard.ReasonOf(err)), err)
	}

	p, err := im.prepare(ctx, canonical, opts)
	res := im.persist(ctx, scope, canonical, p, err, opts)
	return &res, nil
}

// ImportMany imports files in the given order. All paths are validated
// first; if any is rejected nothing is read. Files are read and parsed
// concurrently but persisted one after another in input order.
func (im *Importer) ImportMany(ctx context.Context, scope store.OwnerScope, paths []string, opts Options) (*BatchResult, error) {
	if len(paths) == 0 {
		return nil, apperr.InvalidInput("import files", "no files given")
	}
	if err := im.store.CheckScope(ctx, scope); err != nil {
		return nil, err
	}
	canonical, err := im.guard.ValidateAll(paths)
	if err != nil {
		var be *pathguard.BatchError
		if errors.As(err, &be) && len(be.Failures) > 0 {
			im.log.Warn("batch import rejected", "rejected", len(be.Failures), "first", be.Failures[0].Path, "reason", be.Failures[0].Reason)
			return nil, apperr.PathRejected("import files", string(be.Failures[0].Reason), err)
		}
		return nil, apperr.PathRejected("import files", string(pathguard.ReasonInvalidPath), err)
	}

	type prep struct {
		p   *prepared
		err error
	}
	pool := worker.NewPool(im.workers, func(ctx context.Context, path string) (prep, error) {
		p, err := im.prepare(ctx, path, opts)
		return prep{p: p, err: err}, nil
	})
	results := pool.Run(ctx, canonical)

	batch := &BatchResult{Files: make([]FileResult, 0, len(canonical))}
	for i, r := range results {
		prepErr := r.Value.err
		if r.Error != nil {
			prepErr = r.Error
		}
		fr := im.persist(ctx, scope, canonical[i], r.Value.p, prepErr, opts)
		batch.TotalCreated += fr.Created
		batch.Files = append(batch.Files, fr)
	}

	im.log.Info("batch import finished", "files", len(batch.Files), "created", batch.TotalCreated)
	return batch, nil
}

// prepare reads, hashes, parses and flattens one validated file within the
// configured timeout.
func (im *Importer) prepare(ctx context.Context, path string, opts Options) (*prepared, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type out struct {
		p   *prepared
		err error
	}
	done := make(chan out, 1)
	go func() {
		data, err := im.read(path, im.guard.MaxFileSize())
		if err != nil {
			done <- out{err: err}
			return
		}
		sum := sha256.Sum256(data)
		p := &prepared{path: path, hash: hex.EncodeToString(sum[:])}

		var doc *masterlist.Document
		if opts.Strict {
			var perr error
			doc, perr = masterlist.ParseStrict(string(data))
			errors.As(perr, &p.strict)
		} else {
			doc = masterlist.Parse(string(data))
		}
		p.list = masterlist.FlattenWithFallback(doc, path, im.fallbackPhase)
		done <- out{p: p}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("read %s: %w", path, ctx.Err())
	case o := <-done:
		return o.p, o.err
	}
}

// persist writes the tasks of one prepared file and builds its result.
func (im *Importer) persist(ctx context.Context, scope store.OwnerScope, path string, p *prepared, prepErr error, opts Options) FileResult {
	res := FileResult{File: path, DryRun: opts.DryRun}
	log := im.log.With("path", path)

	if prepErr != nil {
		res.Error = prepErr.Error()
		log.Warn("import failed", "err", prepErr)
		return res
	}

	res.ListName = p.list.Name
	res.Found = p.list.Count()

	if p.strict != nil {
		res.UnrecognizedLines = p.strict.Lines
		res.Error = p.strict.Error()
		log.Warn("strict parse failed", "lines", len(p.strict.Lines))
		return res
	}

	if opts.SkipDuplicates {
		dup, err := im.store.ContentHashImported(ctx, scope, p.hash)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		if dup {
			res.Skipped = true
			res.Success = true
			log.Info("skipping already imported file")
			return res
		}
	}

	if opts.DryRun || res.Found == 0 {
		res.Success = true
		if res.Found == 0 {
			log.Info("nothing to import")
		}
		return res
	}

	first, err := im.store.ReservePositions(ctx, scope, res.Found)
	if err != nil {
		res.Error = err.Error()
		log.Error("reserve positions failed", "err", err)
		return res
	}

	res.ImportID = uuid.NewString()
	importedAt := im.now()
	pos := first
	for _, cat := range p.list.Categories {
		for _, tmpl := range cat.Tasks {
			task := &store.Task{
				Scope:       scope,
				Title:       tmpl.Title,
				Description: tmpl.Description,
				Priority:    store.Priority(tmpl.Priority),
				Category:    cat.Name,
				Phase:       cat.Phase,
				Tags:        tmpl.Tags,
				Position:    pos,
				Provenance: &store.Provenance{
					ListName:    p.list.Name,
					SourceFile:  path,
					Category:    cat.Name,
					ImportID:    res.ImportID,
					ContentHash: p.hash,
					ImportedAt:  importedAt,
				},
			}
			pos++
			if err := im.insert(ctx, task); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%q: %v", tmpl.Title, err))
				log.Error("create task failed", "title", tmpl.Title, "err", err)
				continue
			}
			res.Created++
			res.TaskIDs = append(res.TaskIDs, task.ID)
		}
	}

	res.Success = res.Created > 0
	if !res.Success {
		res.Error = "no tasks could be created"
	}
	log.Info("file imported", "list", p.list.Name, "created", res.Created, "failed", len(res.Errors))
	return res
}

// readLimited reads at most max bytes and fails if the file is larger, in
// case it grew after validation.
func readLimited(path string, max int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("read %s: file exceeds %d bytes", path, max)
	}
	return data, nil
}
