package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks input rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a duplicate name or URL that needs a user decision.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks an id that is not present in the collection.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DuplicateURLError is returned when a prospective insert matches an
// existing bookmark. The caller decides to skip or add anyway.
type DuplicateURLError struct {
	ExistingID    string
	ExistingTitle string
	ExistingURL   string
}

func (e *DuplicateURLError) Error() string {
	return fmt.Sprintf("duplicate of bookmark %s (%s)", e.ExistingID, e.ExistingURL)
}

func (e *DuplicateURLError) Is(target error) bool {
	return target == ErrConflict
}

// DuplicateGroupError is returned when a group name is already taken.
type DuplicateGroupError struct {
	ExistingID string
	Name       string
}

func (e *DuplicateGroupError) Error() string {
	return fmt.Sprintf("group %q already exists", e.Name)
}

func (e *DuplicateGroupError) Is(target error) bool {
	return target == ErrConflict
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// BatchError aggregates the per-item failures of a multi-item operation.
// Items not listed in Failures succeeded and stay committed.
type BatchError struct {
	Op       string
	Total    int
	Failures map[string]error
}

func (e *BatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 3 {
		ids = append(ids[:3], "...")
	}
	return fmt.Sprintf("%s: %d of %d failed (%s)", e.Op, len(e.Failures), e.Total, strings.Join(ids, ", "))
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// FailedCount returns the number of failed items.
func (e *BatchError) FailedCount() int {
	return len(e.Failures)
}

// NewBatchError returns nil when nothing failed.
func NewBatchError(op string, total int, failures map[string]error) error {
	if len(failures) == 0 {
		return nil
	}
	return &BatchError{Op: op, Total: total, Failures: failures}
}
