// Package errs provides the unified error type used across all of minfold.
//
// Every subsystem (database, source tree, filestore, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing driver-specific packages.
//
// Usage:
//
//	// In a driver — wrap native errors:
//	return errs.Wrap(errs.ErrKindConnectionFailed, "ping failed", pgErr)
//
//	// In the orchestrator — attach the failing step to a fatal error:
//	return errs.WrapStep(errs.StepConnect, errs.ErrKindConnectionFailed, "cannot reach schema source", err)
//
//	// In a caller — check error kind:
//	if errs.IsConnectionFailed(err) { ... }
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, MySQL, MinIO, the Go parser, …) map their native
// errors to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows, no file, no table
	ErrKindConnectionFailed         // cannot reach or authenticate to the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL or storage operation error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindParseFailed              // source file is not syntactically valid Go
	ErrKindWriteFailed              // rendering or writing an artifact failed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindParseFailed:
		return "parse_failed"
	case ErrKindWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Step identifies which stage of a synchronization run produced a fatal
// error. Connectivity failures and schema-analysis failures must be
// distinguishable to the operator, so fatal errors always carry a Step.
type Step string

const (
	StepConnect  Step = "connect"
	StepSchema   Step = "schema-analysis"
	StepSource   Step = "source-load"
	StepRegistry Step = "registry"
)

// Error is the single error type returned by all minfold subsystems.
// Drivers produce it; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Step    Step // empty for non-fatal errors
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	prefix := string(e.Step)
	if prefix != "" {
		prefix += ": "
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s] %s: %v", prefix, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s] %s", prefix, e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WrapStep creates a fatal *Error that names the run step it aborted.
func WrapStep(step Step, kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Step: step, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing file, unknown table, …).
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsParseFailed reports whether err was caused by unparseable Go source.
func IsParseFailed(err error) bool {
	return kindOf(err) == ErrKindParseFailed
}

// IsWriteFailed reports whether err was caused by a failed artifact write.
func IsWriteFailed(err error) bool {
	return kindOf(err) == ErrKindWriteFailed
}

// StepOf extracts the failing step from err, or "" if none is recorded.
func StepOf(err error) Step {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
