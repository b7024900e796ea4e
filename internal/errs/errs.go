// Package errs provides error handling for ScrapeForge.
//
// It re-exports github.com/cockroachdb/errors (stack traces, wrapping,
// errors.Is-compatible matching) and defines the sentinel errors that make
// up the engine's failure taxonomy.
package errs

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	WithHint    = crdb.WithHint
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Sentinel errors for the engine's failure taxonomy. Wrap these with
// errs.Wrap to add context while preserving the type; match with errs.Is.
var (
	// ErrCapacity indicates a session or browser ceiling was reached.
	// Rejected at call time, no retry.
	ErrCapacity = New("capacity limit reached")

	// ErrNotFound indicates an unknown or expired session or job id.
	ErrNotFound = New("not found")

	// ErrRule indicates a cleaning or validation rule referenced an unknown
	// operation or validator. Recorded per record, never aborts a batch.
	ErrRule = New("invalid rule")

	// ErrPipeline indicates a failure outside the per-record loop. Aborts
	// the batch, marks the job failed, and surfaces to the caller.
	ErrPipeline = New("pipeline failure")

	// ErrExport indicates an asynchronous export failure. Captured into the
	// job's status, never thrown into the submitter's call stack.
	ErrExport = New("export failure")

	// ErrInvalidRequest indicates a malformed request at the tool surface.
	ErrInvalidRequest = New("invalid request")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsCapacity checks if an error is or wraps ErrCapacity.
func IsCapacity(err error) bool {
	return err != nil && Is(err, ErrCapacity)
}
