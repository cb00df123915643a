package core

import (
	"errors"
	"fmt"
)

// Classification sentinels. Every typed ledger error matches exactly one of them with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrReference  = errors.New("reference error")
	ErrConflict   = errors.New("conflict error")
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrMissingAccount     = errors.New("missing account")
	ErrMissingDestination = errors.New("transfer requires a destination account")
	ErrMissingCategory    = errors.New("non-income transaction requires a category")
)

// ValidationError reports a malformed payload.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed on %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ReferenceError reports a reference to an entity that does not exist.
type ReferenceError struct {
	Kind  EntityKind
	ID    string
	Field string
}

func (e *ReferenceError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %q does not exist", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s references unknown %s %q", e.Field, e.Kind, e.ID)
}

func (e *ReferenceError) Is(target error) bool { return target == ErrReference }

// ConflictError reports a delete rejected because transactions still reference the entity.
type ConflictError struct {
	Kind       EntityKind
	ID         string
	References int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot delete %s %q: referenced by %d transaction(s)", e.Kind, e.ID, e.References)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Invalid wraps err as a validation failure on field.
func Invalid(field string, err error) error {
	return invalid(field, err)
}
