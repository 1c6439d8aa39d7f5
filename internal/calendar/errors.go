package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when an entity id is not in the current snapshot.
	ErrNotFound = errors.New("calendar: entity not found")

	// ErrUnknownProvider is returned for provider ids outside the configured set.
	ErrUnknownProvider = errors.New("calendar: unknown provider")
)

// Code classifies why a proposed slot or time range was refused locally.
type Code string

const (
	CodeConflict        Code = "conflict"
	CodeLocked          Code = "locked"
	CodeLunch           Code = "lunch"
	CodeHoliday         Code = "holiday"
	CodeOutsideHours    Code = "outside_hours"
	CodeInvalidTime     Code = "invalid_time"
	CodeInvalidRange    Code = "invalid_range"
	CodeUnknownProvider Code = "unknown_provider"
	CodeMissingField    Code = "missing_field"
	CodeInvalidOption   Code = "invalid_option"
	CodeMoveInFlight    Code = "move_in_flight"
)

// ValidationError is a local refusal: no network call was made and grid
// state is untouched.
type ValidationError struct {
	Code     Code
	Reason   string
	Conflict Entity
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Code, e.Reason)
}

// NewValidationError builds a ValidationError without a conflicting entity.
func NewValidationError(code Code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// MutationFailure is a remote rejection of create/reschedule/delete. The
// grid keeps its last fetched snapshot, so no rollback is needed.
type MutationFailure struct {
	Op     string
	Reason string
	Err    error
}

func (e *MutationFailure) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return e.Op + " failed"
}

func (e *MutationFailure) Unwrap() error { return e.Err }

// FetchFailure is a failed refresh. The grid keeps showing its last good
// snapshot and the next poll retries.
type FetchFailure struct {
	At  time.Time
	Err error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed at %s: %v", e.At.Format(time.RFC3339), e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// AsValidation unwraps a ValidationError from err.
func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}

// AsMutation unwraps a MutationFailure from err.
func AsMutation(err error) (*MutationFailure, bool) {
	var m *MutationFailure
	ok := errors.As(err, &m)
	return m, ok
}
