package service

import (
	"errors"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// FieldErrors maps request fields to user-facing messages.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, message string) {
	if f == nil {
		return
	}
	f[field] = append(f[field], message)
}

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// ConflictError is a uniqueness violation attached to the offending fields.
type ConflictError struct {
	Fields FieldErrors
}

func (c *ConflictError) Error() string {
	return "project conflict"
}

func (c *ConflictError) Unwrap() error {
	return ErrConflict
}

// ForbiddenError is a denial that names the offending field.
type ForbiddenError struct {
	Fields FieldErrors
}

func (f *ForbiddenError) Error() string {
	return "forbidden"
}

func (f *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// Domain sentinel errors.
var (
	ErrNotFound               = errors.New("project not found")
	ErrConflict               = errors.New("project conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrAuthenticationRequired = errors.New("authentication required")
)

const (
	msgNameTaken = "You already have a project with this name."
	msgNotMember = "You are not a member of this project."
)

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrProjectNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrProjectNameTaken):
		return &ConflictError{Fields: FieldErrors{"name": {msgNameTaken}}}
	default:
		return err
	}
}
