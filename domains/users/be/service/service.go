package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/domains/users/be/repo"
	platformauth "github.com/zenGate-Global/palmyra-projects/platform/go/auth"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
)

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

// Domain sentinel errors.
var (
	ErrNotFound = errors.New("user not found")
	ErrConflict = errors.New("user conflict")
)

// RoleAssigner grants roles to users.
type RoleAssigner interface {
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) error
}

// Service keeps the local account of every authenticated subject. It is the
// identity.Directory used by principal resolution.
type Service interface {
	identity.Directory
	FindByEmail(ctx context.Context, email string) (identity.Account, error)
	// GrantSuperAdmin assigns the global Super Admin role to the account with email.
	GrantSuperAdmin(ctx context.Context, email string) (identity.Account, error)
}

type service struct {
	repo  repo.Repository
	roles RoleAssigner
}

// New constructs a users Service instance backed by the provided repository.
func New(r repo.Repository, roles RoleAssigner) Service {
	if r == nil {
		panic("users repository is required")
	}
	if roles == nil {
		panic("role assigner is required")
	}
	return &service{repo: r, roles: roles}
}

func (s *service) Ensure(ctx context.Context, creds platformauth.Credentials) (identity.Account, error) {
	fieldErrors := FieldErrors{}

	subject := strings.TrimSpace(creds.Subject)
	if subject == "" {
		fieldErrors.add("sub", "subject is required")
	}
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if email == "" {
		fieldErrors.add("email", "email is required")
	} else if !strings.Contains(email, "@") {
		fieldErrors.add("email", "email must contain '@'")
	}

	if len(fieldErrors) > 0 {
		return identity.Account{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.Ensure(ctx, persistence.EnsureUserParams{
		Subject: subject,
		Email:   email,
		Name:    displayName(creds.Name, email),
	})
	if err != nil {
		return identity.Account{}, mapPersistenceError(err)
	}
	return mapAccount(record), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (identity.Account, error) {
	if id == uuid.Nil {
		return identity.Account{}, ErrNotFound
	}

	record, err := s.repo.Get(ctx, id)
	if err != nil {
		return identity.Account{}, mapPersistenceError(err)
	}
	return mapAccount(record), nil
}

func (s *service) MarkEmailVerified(ctx context.Context, id uuid.UUID) (bool, error) {
	first, err := s.repo.MarkEmailVerified(ctx, id)
	if err != nil {
		return false, mapPersistenceError(err)
	}
	return first, nil
}

func (s *service) FindByEmail(ctx context.Context, email string) (identity.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return identity.Account{}, &ValidationError{Fields: FieldErrors{"email": {"email is required"}}}
	}

	record, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return identity.Account{}, mapPersistenceError(err)
	}
	return mapAccount(record), nil
}

func (s *service) GrantSuperAdmin(ctx context.Context, email string) (identity.Account, error) {
	account, err := s.FindByEmail(ctx, email)
	if err != nil {
		return identity.Account{}, err
	}

	if err := s.roles.AssignRole(ctx, account.ID, rbac.RoleSuperAdmin, nil); err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return identity.Account{}, fmt.Errorf("global roles are not seeded: %w", err)
		}
		return identity.Account{}, fmt.Errorf("assign super admin: %w", err)
	}
	return account, nil
}

// displayName falls back to the local part of the email when the token has no name.
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func mapAccount(u persistence.User) identity.Account {
	return identity.Account{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		CurrentProjectID: u.CurrentProjectID,
		EmailVerified:    u.EmailVerifiedAt != nil,
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrUserNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrUserConflict):
		return ErrConflict
	default:
		return err
	}
}
