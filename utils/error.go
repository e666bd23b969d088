package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorAmbiguousScope is returned when a series member is deleted without an
// explicit scope while other live members of the same series still exist.
var ErrorAmbiguousScope = errors.New("deletion scope is required for a series member")

// ValidationError reports a rejected input field.
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

func NewValidationError(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConflictError reports an operation rejected because of the record's current
// state, e.g. paying a transaction that is already Paid. CurrentState carries
// the state observed at rejection time so callers can report it.
type ConflictError struct {
	CurrentState string
	Reason       string
}

func (e *ConflictError) Error() string {
	if e.CurrentState == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (current state: %s)", e.Reason, e.CurrentState)
}

func NewConflictError(currentState string, reason string) error {
	return &ConflictError{CurrentState: currentState, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
