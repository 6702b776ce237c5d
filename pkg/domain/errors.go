package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by forge matches exactly one of these
// through errors.Is, or none for internal failures.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrValidation       = errors.New("validation failed")
	ErrInsufficientData = errors.New("insufficient data")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ErrComponentNotFound is returned when a slug or id is unregistered or archived.
var ErrComponentNotFound = fmt.Errorf("component %w", ErrNotFound)

// ErrVersionNotFound is returned when a sequence or version id is absent.
var ErrVersionNotFound = fmt.Errorf("version %w", ErrNotFound)

// ErrBranchNotFound is returned when a branch name is unknown for a component.
var ErrBranchNotFound = fmt.Errorf("branch %w", ErrNotFound)

// ErrStaleParent is returned when a commit was based on an outdated head.
// Callers may retry with the current head as the expected parent.
var ErrStaleParent = fmt.Errorf("stale parent: %w", ErrConflict)

// ErrBranchExists is returned when creating a branch whose name is taken.
var ErrBranchExists = fmt.Errorf("branch exists: %w", ErrConflict)

// ErrComponentExists is returned when registering a slug twice.
var ErrComponentExists = fmt.Errorf("component exists: %w", ErrConflict)

// ErrMergeConflict is matched by every *MergeConflictError.
var ErrMergeConflict = fmt.Errorf("merge %w", ErrConflict)

// ErrMissingVariable is returned when a placeholder has neither a value nor a default.
var ErrMissingVariable = fmt.Errorf("missing variable: %w", ErrValidation)

// ErrTokenBudgetExceeded is returned when budget enforcement is requested and
// the rendered output is over the limit.
var ErrTokenBudgetExceeded = fmt.Errorf("token budget exceeded: %w", ErrValidation)

// MergeConflictError carries the structured outcome of a failed merge.
// Conflicts is empty for the manual strategy, which defers with the full diff.
type MergeConflictError struct {
	Strategy  MergeStrategy
	Conflicts []Conflict
	Changes   DocumentDiff
}

func (e *MergeConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return fmt.Sprintf("merge conflict: %s strategy requires resolution of %d change(s)", e.Strategy, len(e.Changes.Sections)+len(e.Changes.Variables))
	}
	keys := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		keys = append(keys, c.Key())
	}
	return fmt.Sprintf("merge conflict: %d conflicting key(s): %s", len(keys), strings.Join(keys, ", "))
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Unavailable marks an adapter failure so it is never mistaken for a
// missing record.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// ErrorKind names the taxonomy bucket of an error.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindConflict         ErrorKind = "conflict"
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindInsufficientData ErrorKind = "insufficient_data"
	ErrorKindStoreUnavailable ErrorKind = "store_unavailable"
	ErrorKindInternal         ErrorKind = "internal"
)

// KindOf maps err to its taxonomy kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindNone
	case errors.Is(err, ErrStoreUnavailable):
		return ErrorKindStoreUnavailable
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrConflict):
		return ErrorKindConflict
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrInsufficientData):
		return ErrorKindInsufficientData
	default:
		return ErrorKindInternal
	}
}
