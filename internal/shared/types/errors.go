package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers and tests can distinguish
// best-effort soft failures from ones that abort a run.
type ErrorKind string

const (
	// KindSoft covers transient, ignorable failures: probe refusals,
	// missing executable paths, missing tab metadata. Logged, treated as
	// empty/false, never propagated past the call site.
	KindSoft ErrorKind = "soft"
	// KindStep is a capture adapter failing; contributes zero assets.
	KindStep ErrorKind = "step"
	// KindPersistence is an asset insert or verification mismatch;
	// logged loudly, non-fatal to the run.
	KindPersistence ErrorKind = "persistence"
	// KindFatal aborts the capture run and propagates to the caller.
	KindFatal ErrorKind = "fatal"
)

// ClassifiedError pairs an error with its handling classification
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// SoftError wraps err as a soft failure
func SoftError(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindSoft, Err: err}
}

// FatalError wraps err as a run-aborting failure
func FatalError(err error) *ClassifiedError {
	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// KindOf returns the classification of err, defaulting to fatal for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindFatal
}
