package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/domains/documents/be/repo"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	maxTitleLength = 255
	maxBodyLength  = 100_000
)

// FieldErrors maps request fields to user-facing messages.
type FieldErrors map[string][]string

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

var (
	ErrNotFound               = errors.New("document not found")
	ErrForbidden              = errors.New("forbidden")
	ErrAuthenticationRequired = errors.New("authentication required")
)

// Document is the domain view of project-owned content.
type Document struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Title     string
	Body      string
	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListOptions controls pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps a page of documents with pagination metadata.
type ListResult struct {
	Documents  []Document
	Page       int
	PageSize   int
	TotalItems int
}

// CreateInput is the payload of a new document. ProjectID is only needed
// under an unscoped scope; otherwise the scope's project is stamped.
type CreateInput struct {
	ProjectID *uuid.UUID
	Title     string
	Body      string
}

// UpdateInput carries the fields to change.
type UpdateInput struct {
	Title *string
	Body  *string
}

// Authorizer answers authorization questions.
type Authorizer interface {
	Authorize(ctx context.Context, p identity.Principal, action rbac.Action, r rbac.Resource) (rbac.Decision, error)
}

// Service defines the business operations for documents. Callers pass the
// scope explicitly; handlers derive it with tenant.ResolveScope.
type Service interface {
	List(ctx context.Context, p identity.Principal, scope tenant.Scope, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, p identity.Principal, scope tenant.Scope, input CreateInput) (Document, error)
	Get(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID) (Document, error)
	Update(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID, input UpdateInput) (Document, error)
	Delete(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID) error
}

type service struct {
	repo  repo.Repository
	authz Authorizer
}

// New constructs a documents Service.
func New(r repo.Repository, authz Authorizer) Service {
	if r == nil {
		panic("documents repository is required")
	}
	if authz == nil {
		panic("authorizer is required")
	}
	return &service{repo: r, authz: authz}
}

func (s *service) List(ctx context.Context, p identity.Principal, scope tenant.Scope, opts ListOptions) (ListResult, error) {
	if err := s.checkScope(ctx, p, scope, rbac.ActionViewContent); err != nil {
		return ListResult{}, err
	}

	page := max(opts.Page, 1)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	records, total, err := s.repo.List(ctx, scope, pageSize, (page-1)*pageSize)
	if err != nil {
		return ListResult{}, err
	}

	docs := make([]Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, Document(record))
	}
	return ListResult{Documents: docs, Page: page, PageSize: pageSize, TotalItems: total}, nil
}

func (s *service) Create(ctx context.Context, p identity.Principal, scope tenant.Scope, input CreateInput) (Document, error) {
	if p.ID == uuid.Nil {
		return Document{}, ErrAuthenticationRequired
	}
	if err := scope.Validate(); err != nil {
		return Document{}, err
	}

	fields := FieldErrors{}
	title := validateTitle(fields, input.Title)
	validateBody(fields, input.Body)

	projectID, scoped := scope.ProjectID()
	switch {
	case input.ProjectID != nil && scoped && *input.ProjectID != projectID:
		fields["projectId"] = append(fields["projectId"], "projectId must match the active project")
	case input.ProjectID != nil:
		projectID = *input.ProjectID
	case !scoped:
		fields["projectId"] = append(fields["projectId"], "projectId is required")
	}
	if len(fields) > 0 {
		return Document{}, &ValidationError{Fields: fields}
	}

	if err := s.require(ctx, p, rbac.ActionCreateContent, projectID); err != nil {
		return Document{}, err
	}

	record, err := s.repo.Create(ctx, scope, persistence.Document{
		ProjectID: projectID,
		Title:     title,
		Body:      input.Body,
		CreatedBy: p.ID,
	})
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}
	return Document(record), nil
}

func (s *service) Get(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID) (Document, error) {
	record, err := s.load(ctx, p, scope, id, rbac.ActionViewContent)
	if err != nil {
		return Document{}, err
	}
	return Document(record), nil
}

func (s *service) Update(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID, input UpdateInput) (Document, error) {
	fields := FieldErrors{}
	update := persistence.DocumentUpdate{}
	if input.Title != nil {
		title := validateTitle(fields, *input.Title)
		update.Title = &title
	}
	if input.Body != nil {
		validateBody(fields, *input.Body)
		update.Body = input.Body
	}
	if update.Title == nil && update.Body == nil {
		fields["payload"] = append(fields["payload"], "at least one field must be provided")
	}
	if len(fields) > 0 {
		return Document{}, &ValidationError{Fields: fields}
	}

	if _, err := s.load(ctx, p, scope, id, rbac.ActionEditContent); err != nil {
		return Document{}, err
	}
	record, err := s.repo.Update(ctx, scope, id, update)
	if err != nil {
		return Document{}, mapPersistenceError(err)
	}
	return Document(record), nil
}

func (s *service) Delete(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID) error {
	if _, err := s.load(ctx, p, scope, id, rbac.ActionDeleteContent); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, scope, id); err != nil {
		return mapPersistenceError(err)
	}
	return nil
}

// load reads a document visible under scope and requires action on its project.
func (s *service) load(ctx context.Context, p identity.Principal, scope tenant.Scope, id uuid.UUID, action rbac.Action) (persistence.Document, error) {
	if p.ID == uuid.Nil {
		return persistence.Document{}, ErrAuthenticationRequired
	}
	record, err := s.repo.Get(ctx, scope, id)
	if err != nil {
		return persistence.Document{}, mapPersistenceError(err)
	}
	if err := s.require(ctx, p, action, record.ProjectID); err != nil {
		return persistence.Document{}, err
	}
	return record, nil
}

// checkScope authorizes a collection read. Unscoped reads are reserved for super admins.
func (s *service) checkScope(ctx context.Context, p identity.Principal, scope tenant.Scope, action rbac.Action) error {
	if p.ID == uuid.Nil {
		return ErrAuthenticationRequired
	}
	if err := scope.Validate(); err != nil {
		return err
	}
	if projectID, ok := scope.ProjectID(); ok {
		return s.require(ctx, p, action, projectID)
	}
	if !p.SuperAdmin {
		return fmt.Errorf("%w: unscoped access requires super admin", ErrForbidden)
	}
	return nil
}

func (s *service) require(ctx context.Context, p identity.Principal, action rbac.Action, projectID uuid.UUID) error {
	decision, err := s.authz.Authorize(ctx, p, action, rbac.Document(projectID))
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return nil
}

func validateTitle(fields FieldErrors, raw string) string {
	title := strings.TrimSpace(raw)
	switch {
	case title == "":
		fields["title"] = append(fields["title"], "title is required")
	case utf8.RuneCountInString(title) > maxTitleLength:
		fields["title"] = append(fields["title"], fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	return title
}

func validateBody(fields FieldErrors, body string) {
	if len(body) > maxBodyLength {
		fields["body"] = append(fields["body"], fmt.Sprintf("body must be at most %d bytes", maxBodyLength))
	}
}

func mapPersistenceError(err error) error {
	switch {
	case errors.Is(err, persistence.ErrDocumentNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrScopeMismatch):
		return &ValidationError{Fields: FieldErrors{"projectId": {"projectId must match the active project"}}}
	default:
		return err
	}
}
