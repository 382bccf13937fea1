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
	return "invitation conflict"
}

func (c *ConflictError) Unwrap() error {
	return ErrConflict
}

// Domain sentinel errors.
var (
	// ErrNotFound covers unknown, accepted and expired tokens on every path
	// except Resolve, plus unknown projects and invitation ids.
	ErrNotFound = errors.New("invitation not found")
	// ErrInvitationInvalid is reported by Resolve for unknown or already accepted tokens.
	ErrInvitationInvalid = errors.New("invitation is invalid")
	// ErrInvitationExpired is reported by Resolve for pending invitations past their expiry.
	ErrInvitationExpired      = errors.New("invitation has expired")
	ErrNoPendingInvitation    = errors.New("no pending invitation in session")
	ErrConflict               = errors.New("invitation conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrAuthenticationRequired = errors.New("authentication required")
)

const (
	msgAlreadyInvited = "An invitation has already been sent to this email address."
	msgAlreadyMember  = "This user is already a member of the project."
)

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrProjectNotFound), errors.Is(err, persistence.ErrInvitationNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrInvitationPending):
		return &ConflictError{Fields: FieldErrors{"email": {msgAlreadyInvited}}}
	default:
		return err
	}
}
