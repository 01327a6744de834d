// Package apperr defines the error taxonomy shared by the import pipeline,
// the claim ledger and the transports in front of them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to map it to a response.
type Kind string

const (
	KindInvalidInput         Kind = "invalid_input"
	KindPathRejected         Kind = "path_rejected"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindPartialImportFailure Kind = "partial_import_failure"
	KindInternalStore        Kind = "internal_store_error"
)

// Error is a classified error. Reason is a stable machine-readable string
// (a path rejection reason, a missing entity name); Holder is set for
// KindConflict.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Holder string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Kind == KindConflict && e.Holder != "" {
		msg += fmt.Sprintf(" (claimed by %s)", e.Holder)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.ErrConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Reason == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidInput  = &Error{Kind: KindInvalidInput}
	ErrPathRejected  = &Error{Kind: KindPathRejected}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrPartialImport = &Error{Kind: KindPartialImportFailure}
	ErrInternalStore = &Error{Kind: KindInternalStore}
)

func InvalidInput(op, reason string) error {
	return &Error{Kind: KindInvalidInput, Op: op, Reason: reason}
}

func PathRejected(op, reason string, err error) error {
	return &Error{Kind: KindPathRejected, Op: op, Reason: reason, Err: err}
}

func NotFound(op, what string) error {
	return &Error{Kind: KindNotFound, Op: op, Reason: what}
}

func Conflict(op, holder string) error {
	return &Error{Kind: KindConflict, Op: op, Holder: holder}
}

// PartialImport reports an accepted import in which some files or tasks
// could not be created.
func PartialImport(op, reason string) error {
	return &Error{Kind: KindPartialImportFailure, Op: op, Reason: reason}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternalStore, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternalStore for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalStore
}

// HolderOf returns the claim holder carried by a conflict error.
func HolderOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindConflict {
		return e.Holder
	}
	return ""
}

// ReasonOf returns the Reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
