// Package ojerr centralises the error taxonomy from spec.md §7, following
// the teacher's small-sentinel + context-carrying *Error idiom
// (orchestrator.ErrServiceAlreadyRunning and friends) rather than a
// hierarchy of custom error types per package.
package ojerr

import (
	"errors"
	"fmt"
)

// Kind is one leaf of the taxonomy in spec.md §7.
type Kind string

const (
	Validation          Kind = "validation"
	NotFound            Kind = "not_found"
	RunbookLoad         Kind = "runbook_load"
	InvalidRunDirective Kind = "invalid_run_directive"
	Spawn               Kind = "spawn"
	Shell               Kind = "shell"
	CircuitBreaker      Kind = "circuit_breaker"
	MigrationTooNew     Kind = "migration_too_new"
)

// Error carries a Kind plus context, following the teacher's pattern of
// wrapping a cause with %w while keeping a machine-readable discriminator
// for callers (the listener maps Kind to a response error code).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is supports errors.Is(err, ojerr.NotFound) style checks by comparing Kind
// when the target is itself an *Error (its Cause is not compared), or by a
// kind sentinel via KindOf below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Sentinel errors for the common not-found/ambiguous-prefix cases, mirrors
// the teacher's package-level `var Err... = errors.New(...)` style for the
// most frequently checked cases.
var (
	ErrAmbiguousPrefix = errors.New("ambiguous id prefix")
	ErrNotFound        = errors.New("not found")
)

// RuntimeErrorKinds are the §4.5 RuntimeError variants, each mapped onto an
// ojerr.Kind so internal/runtime doesn't need its own parallel taxonomy.
const (
	JobNotFound       = NotFound
	StepNotFound      = NotFound
	RunbookLoadError  = RunbookLoad
	AgentNotFound     = NotFound
	ShellError        = Shell
)
