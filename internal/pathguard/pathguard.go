// Package pathguard decides whether a file-system path may be read by the
// importer. Containment in an allowed root is checked lexically before the
// filesystem is touched, so a rejected path never reveals whether a file
// outside the sandbox exists.
package pathguard

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Reason is a stable, machine-readable rejection category.
type Reason string

const (
	ReasonInvalidPath       Reason = "invalid_path"
	ReasonOutsideRoots      Reason = "outside_allowed_directories"
	ReasonNotFound          Reason = "not_found"
	ReasonNotAFile          Reason = "not_a_file"
	ReasonExtensionRejected Reason = "extension_not_allowed"
	ReasonTooLarge          Reason = "file_too_large"
	ReasonStatFailed        Reason = "stat_failed"
)

// Message returns the human-readable form of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonInvalidPath:
		return "invalid path"
	case ReasonOutsideRoots:
		return "outside allowed directories"
	case ReasonNotFound:
		return "does not exist"
	case ReasonNotAFile:
		return "not a regular file"
	case ReasonExtensionRejected:
		return "file extension not allowed"
	case ReasonTooLarge:
		return "file too large"
	default:
		return "cannot access path"
	}
}

const DefaultMaxFileSize int64 = 10 << 20 // 10 MiB

// DefaultExtensions is the allowlist used when none is configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// RejectError describes why a single path was rejected.
type RejectError struct {
	Path   string
	Reason Reason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("path rejected: %s", e.Reason.Message())
}

// PathFailure is one entry of a rejected batch.
type PathFailure struct {
	Path   string `json:"path"`
	Reason Reason `json:"reason"`
}

// BatchError is returned by ValidateAll when any path fails.
type BatchError struct {
	Failures []PathFailure
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%d of the requested paths were rejected", len(e.Failures))
}

// Options configures a Validator.
type Options struct {
	AllowedRoots      []string
	AllowedExtensions []string
	EnforceExtension  bool
	MaxFileSize       int64
}

// Validator checks paths against a set of allowed roots.
type Validator struct {
	roots         []string // absolute, cleaned
	resolvedRoots []string // roots with symlinks resolved
	extensions    map[string]bool
	enforceExt    bool
	maxSize       int64

	stat     func(string) (fs.FileInfo, error)
	evalLink func(string) (string, error)
}

// New creates a Validator. Roots that cannot be made absolute are skipped;
// with no usable roots every path is rejected.
func New(opts Options) *Validator {
	v := &Validator{
		extensions: make(map[string]bool),
		enforceExt: opts.EnforceExtension,
		maxSize:    opts.MaxFileSize,
		stat:       os.Stat,
		evalLink:   filepath.EvalSymlinks,
	}
	if v.maxSize <= 0 {
		v.maxSize = DefaultMaxFileSize
	}

	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		v.extensions[ext] = true
	}

	for _, root := range opts.AllowedRoots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		v.roots = append(v.roots, abs)
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			v.resolvedRoots = append(v.resolvedRoots, resolved)
		} else {
			v.resolvedRoots = append(v.resolvedRoots, abs)
		}
	}
	return v
}

// Roots returns the absolute allowed roots.
func (v *Validator) Roots() []string {
	out := make([]string, len(v.roots))
	copy(out, v.roots)
	return out
}

// MaxFileSize returns the size limit in bytes.
func (v *Validator) MaxFileSize() int64 { return v.maxSize }

// Validate returns the canonical path of rawPath or a *RejectError.
// The steps run in a fixed order: shape, lexical normalization, containment,
// then filesystem checks.
func (v *Validator) Validate(rawPath string) (string, error) {
	if strings.TrimSpace(rawPath) == "" || strings.ContainsRune(rawPath, 0) {
		return "", &RejectError{Path: rawPath, Reason: ReasonInvalidPath}
	}

	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", &RejectError{Path: rawPath, Reason: ReasonInvalidPath}
	}

	// No filesystem access above this line.
	if !containedIn(abs, v.roots) {
		return "", &RejectError{Path: rawPath, Reason: ReasonOutsideRoots}
	}

	info, err := v.stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &RejectError{Path: rawPath, Reason: ReasonNotFound}
		}
		return "", &RejectError{Path: rawPath, Reason: ReasonStatFailed}
	}
	if !info.Mode().IsRegular() {
		return "", &RejectError{Path: rawPath, Reason: ReasonNotAFile}
	}

	canonical, err := v.evalLink(abs)
	if err != nil {
		return "", &RejectError{Path: rawPath, Reason: ReasonStatFailed}
	}
	if canonical != abs && !containedIn(canonical, v.resolvedRoots) {
		return "", &RejectError{Path: rawPath, Reason: ReasonOutsideRoots}
	}

	if v.enforceExt && !v.extensions[strings.ToLower(filepath.Ext(canonical))] {
		return "", &RejectError{Path: rawPath, Reason: ReasonExtensionRejected}
	}

	if info.Size() > v.maxSize {
		return "", &RejectError{Path: rawPath, Reason: ReasonTooLarge}
	}

	return canonical, nil
}

// ValidateAll validates every path. It is all-or-nothing: if any path is
// rejected, no canonical paths are returned and the *BatchError lists each
// failure.
func (v *Validator) ValidateAll(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, &BatchError{Failures: []PathFailure{{Reason: ReasonInvalidPath}}}
	}

	canonical := make([]string, 0, len(paths))
	var failures []PathFailure
	for _, p := range paths {
		c, err := v.Validate(p)
		if err != nil {
			failures = append(failures, PathFailure{Path: p, Reason: ReasonOf(err)})
			continue
		}
		canonical = append(canonical, c)
	}
	if len(failures) > 0 {
		return nil, &BatchError{Failures: failures}
	}
	return canonical, nil
}

// ValidateDir checks that dir is an existing directory inside the allowed
// roots. Used by the scan helper; the same containment-first order applies.
func (v *Validator) ValidateDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" || strings.ContainsRune(dir, 0) {
		return "", &RejectError{Path: dir, Reason: ReasonInvalidPath}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &RejectError{Path: dir, Reason: ReasonInvalidPath}
	}
	if !containedIn(abs, v.roots) {
		return "", &RejectError{Path: dir, Reason: ReasonOutsideRoots}
	}
	info, err := v.stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &RejectError{Path: dir, Reason: ReasonNotFound}
		}
		return "", &RejectError{Path: dir, Reason: ReasonStatFailed}
	}
	if !info.IsDir() {
		return "", &RejectError{Path: dir, Reason: ReasonInvalidPath}
	}
	return abs, nil
}

// AllowsExtension reports whether name has an allowlisted extension.
func (v *Validator) AllowsExtension(name string) bool {
	return v.extensions[strings.ToLower(filepath.Ext(name))]
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) Reason {
	if re, ok := err.(*RejectError); ok {
		return re.Reason
	}
	return ReasonStatFailed
}

// containedIn reports whether target lies inside (or equals) one of roots.
func containedIn(target string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(root, target)
		if err != nil {
			continue
		}
		if filepath.IsAbs(rel) {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}
