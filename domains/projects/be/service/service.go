package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/domains/projects/be/repo"
	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-projects/platform/go/rbac"
	"github.com/zenGate-Global/palmyra-projects/platform/go/securerand"
	"github.com/zenGate-Global/palmyra-projects/platform/go/tenant"
)

const (
	defaultPageSize = 12
	maxPageSize     = 100

	maxNameLength        = 255
	maxDescriptionLength = 1000

	slugAttempts = 3
)

// Project is the domain view of a project.
type Project struct {
	ID          uuid.UUID
	Name        string
	Slug        string
	Description *string
	OwnerID     uuid.UUID
	MemberCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Member is a project member and the roles held in the project.
type Member struct {
	UserID   uuid.UUID
	Email    string
	Name     string
	JoinedAt time.Time
	Roles    []string
}

// PendingInvitation is an invitation still awaiting its invitee.
type PendingInvitation struct {
	ID        uuid.UUID
	Email     string
	Role      string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Details is the full view of one project.
type Details struct {
	Project            Project
	Owner              *Member
	Members            []Member
	PendingInvitations []PendingInvitation
	CanManage          bool
}

// ListOptions controls pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// ListResult wraps a page of projects with pagination metadata.
type ListResult struct {
	Projects   []Project
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// CreateInput is the payload of a new project.
type CreateInput struct {
	Name        string
	Description *string
}

// UpdateInput carries the fields to change.
type UpdateInput struct {
	Name        *string
	Description *string
}

// Navigation is the context shown around every page of the application.
type Navigation struct {
	Principal      identity.Principal
	CurrentProject *Project
	Projects       []Project
	Permissions    []string
}

// RoleProvisioner materializes the role catalog for a project.
type RoleProvisioner interface {
	CreateRolesForProject(ctx context.Context, projectID uuid.UUID) error
}

// Authorizer answers authorization questions and grants roles.
type Authorizer interface {
	Authorize(ctx context.Context, p identity.Principal, action rbac.Action, r rbac.Resource) (rbac.Decision, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) error
	PermissionsFor(ctx context.Context, userID, projectID uuid.UUID) ([]string, error)
}

// Service defines the business operations for the projects domain.
type Service interface {
	List(ctx context.Context, p identity.Principal, opts ListOptions) (ListResult, error)
	Create(ctx context.Context, p identity.Principal, input CreateInput) (Project, error)
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (Details, error)
	Update(ctx context.Context, p identity.Principal, id uuid.UUID, input UpdateInput) (Project, error)
	Delete(ctx context.Context, p identity.Principal, id uuid.UUID) error
	Switch(ctx context.Context, p identity.Principal, id uuid.UUID) (Project, error)
	Navigation(ctx context.Context, p identity.Principal) (Navigation, error)
	OnEmailVerified(ctx context.Context, p identity.Principal) error
}

// Config carries optional collaborators. Zero values use the defaults.
type Config struct {
	Now    func() time.Time
	Suffix func() (string, error)
}

type service struct {
	repo   repo.Repository
	roles  RoleProvisioner
	authz  Authorizer
	logger *zap.Logger
	now    func() time.Time
	suffix func() (string, error)
}

// New constructs a projects Service.
func New(r repo.Repository, roles RoleProvisioner, authz Authorizer, logger *zap.Logger, cfg Config) Service {
	if r == nil {
		panic("projects repository is required")
	}
	if roles == nil {
		panic("role provisioner is required")
	}
	if authz == nil {
		panic("authorizer is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Suffix == nil {
		cfg.Suffix = securerand.Suffix
	}
	return &service{repo: r, roles: roles, authz: authz, logger: logger, now: cfg.Now, suffix: cfg.Suffix}
}

func (s *service) List(ctx context.Context, p identity.Principal, opts ListOptions) (ListResult, error) {
	if p.ID == uuid.Nil {
		return ListResult{}, ErrAuthenticationRequired
	}

	page := max(opts.Page, 1)
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	records, total, err := s.repo.ListProjects(ctx, persistence.ProjectFilter{
		ViewerID: p.ID,
		All:      p.SuperAdmin,
		Limit:    pageSize,
		Offset:   (page - 1) * pageSize,
	})
	if err != nil {
		return ListResult{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return ListResult{
		Projects:   mapSummaries(records),
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

func (s *service) Create(ctx context.Context, p identity.Principal, input CreateInput) (Project, error) {
	if p.ID == uuid.Nil {
		return Project{}, ErrAuthenticationRequired
	}

	fieldErrors := FieldErrors{}
	name := validateName(fieldErrors, &input.Name)
	description := validateDescription(fieldErrors, input.Description)
	if len(fieldErrors) > 0 {
		return Project{}, &ValidationError{Fields: fieldErrors}
	}

	var created persistence.Project
	for attempt := 1; ; attempt++ {
		suffix, err := s.suffix()
		if err != nil {
			return Project{}, fmt.Errorf("generate slug suffix: %w", err)
		}

		err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			created, err = s.repo.CreateProject(ctx, persistence.Project{
				Name:        name,
				Slug:        tenant.BuildSlug(name, suffix),
				Description: description,
				OwnerID:     p.ID,
			})
			if err != nil {
				return err
			}
			if err := s.roles.CreateRolesForProject(ctx, created.ID); err != nil {
				return fmt.Errorf("create project roles: %w", err)
			}
			if _, err := s.repo.AddMember(ctx, created.ID, p.ID); err != nil {
				return fmt.Errorf("add owner membership: %w", err)
			}
			if err := s.authz.AssignRole(ctx, p.ID, rbac.RoleOwner, &created.ID); err != nil {
				return fmt.Errorf("assign owner role: %w", err)
			}
			return s.repo.SetCurrentProject(ctx, p.ID, &created.ID)
		})
		if errors.Is(err, persistence.ErrProjectSlugTaken) && attempt < slugAttempts {
			continue
		}
		if err != nil {
			return Project{}, mapPersistenceError(err)
		}
		break
	}

	s.logger.Info("project created",
		zap.String("project_id", created.ID.String()),
		zap.String("owner_id", p.ID.String()),
		zap.String("slug", created.Slug),
	)

	out := mapProject(created)
	out.MemberCount = 1
	return out, nil
}

func (s *service) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (Details, error) {
	record, err := s.authorize(ctx, p, rbac.ActionView, id)
	if err != nil {
		return Details{}, err
	}

	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return Details{}, err
	}
	invitations, err := s.repo.ListPendingInvitations(ctx, id, s.now())
	if err != nil {
		return Details{}, err
	}
	manage, err := s.authz.Authorize(ctx, p, rbac.ActionManageInvitations, rbac.Project(record.ID, record.OwnerID))
	if err != nil {
		return Details{}, err
	}

	details := Details{
		Project:            mapProject(record),
		Members:            make([]Member, 0, len(members)),
		PendingInvitations: make([]PendingInvitation, 0, len(invitations)),
		CanManage:          manage.Allowed,
	}
	for _, m := range members {
		member := Member(m)
		details.Members = append(details.Members, member)
		if m.UserID == record.OwnerID {
			owner := member
			details.Owner = &owner
		}
	}
	details.Project.MemberCount = len(details.Members)
	for _, inv := range invitations {
		details.PendingInvitations = append(details.PendingInvitations, PendingInvitation{
			ID:        inv.ID,
			Email:     inv.Email,
			Role:      inv.Role,
			ExpiresAt: inv.ExpiresAt,
			CreatedAt: inv.CreatedAt,
		})
	}
	return details, nil
}

func (s *service) Update(ctx context.Context, p identity.Principal, id uuid.UUID, input UpdateInput) (Project, error) {
	if _, err := s.authorize(ctx, p, rbac.ActionUpdate, id); err != nil {
		return Project{}, err
	}

	fieldErrors := FieldErrors{}
	update := persistence.ProjectUpdate{}
	if input.Name != nil {
		name := validateName(fieldErrors, input.Name)
		update.Name = &name
	}
	if input.Description != nil {
		description := strings.TrimSpace(*input.Description)
		if utf8.RuneCountInString(description) > maxDescriptionLength {
			fieldErrors.add("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
		}
		update.Description = &description
	}
	if update.Name == nil && update.Description == nil {
		fieldErrors.add("payload", "at least one field must be provided")
	}
	if len(fieldErrors) > 0 {
		return Project{}, &ValidationError{Fields: fieldErrors}
	}

	record, err := s.repo.UpdateProject(ctx, id, update)
	if err != nil {
		return Project{}, mapPersistenceError(err)
	}
	return mapProject(record), nil
}

func (s *service) Delete(ctx context.Context, p identity.Principal, id uuid.UUID) error {
	if _, err := s.authorize(ctx, p, rbac.ActionDelete, id); err != nil {
		return err
	}

	var repointed int64
	err := s.repo.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.SoftDeleteProject(ctx, id); err != nil {
			return err
		}
		var err error
		repointed, err = s.repo.RepointCurrentProject(ctx, id)
		return err
	})
	if err != nil {
		return mapPersistenceError(err)
	}

	s.logger.Info("project deleted",
		zap.String("project_id", id.String()),
		zap.String("actor_id", p.ID.String()),
		zap.Int64("repointed_users", repointed),
	)
	return nil
}

func (s *service) Switch(ctx context.Context, p identity.Principal, id uuid.UUID) (Project, error) {
	if p.ID == uuid.Nil {
		return Project{}, ErrAuthenticationRequired
	}

	record, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return Project{}, mapPersistenceError(err)
	}

	decision, err := s.authz.Authorize(ctx, p, rbac.ActionSwitch, rbac.Project(record.ID, record.OwnerID))
	if err != nil {
		return Project{}, err
	}
	if !decision.Allowed {
		return Project{}, &ForbiddenError{Fields: FieldErrors{"projectId": {msgNotMember}}}
	}

	if err := s.repo.SetCurrentProject(ctx, p.ID, &record.ID); err != nil {
		return Project{}, err
	}
	return mapProject(record), nil
}

func (s *service) Navigation(ctx context.Context, p identity.Principal) (Navigation, error) {
	if p.ID == uuid.Nil {
		return Navigation{}, ErrAuthenticationRequired
	}

	records, _, err := s.repo.ListProjects(ctx, persistence.ProjectFilter{ViewerID: p.ID, All: p.SuperAdmin})
	if err != nil {
		return Navigation{}, err
	}
	nav := Navigation{Principal: p, Projects: mapSummaries(records), Permissions: []string{}}

	if p.CurrentProjectID == nil {
		return nav, nil
	}

	current, err := s.repo.GetProject(ctx, *p.CurrentProjectID)
	if errors.Is(err, persistence.ErrProjectNotFound) {
		return nav, nil
	}
	if err != nil {
		return Navigation{}, err
	}
	currentProject := mapProject(current)
	nav.CurrentProject = &currentProject

	perms, err := s.authz.PermissionsFor(ctx, p.ID, current.ID)
	if err != nil {
		return Navigation{}, err
	}
	if perms != nil {
		nav.Permissions = perms
	}
	return nav, nil
}

// OnEmailVerified creates the user's first project when they have none.
func (s *service) OnEmailVerified(ctx context.Context, p identity.Principal) error {
	has, err := s.repo.HasAnyProject(ctx, p.ID)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	_, err = s.Create(ctx, p, CreateInput{Name: DefaultProjectName(p)})
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		// A concurrent verification created it first.
		return nil
	}
	return err
}

// DefaultProjectName names the project created on email verification.
func DefaultProjectName(p identity.Principal) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	if name == "" {
		return "My Project"
	}
	return name + "'s Project"
}

// authorize loads the project and requires action on it.
func (s *service) authorize(ctx context.Context, p identity.Principal, action rbac.Action, id uuid.UUID) (persistence.Project, error) {
	if p.ID == uuid.Nil {
		return persistence.Project{}, ErrAuthenticationRequired
	}
	if id == uuid.Nil {
		return persistence.Project{}, ErrNotFound
	}

	record, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return persistence.Project{}, mapPersistenceError(err)
	}

	decision, err := s.authz.Authorize(ctx, p, action, rbac.Project(record.ID, record.OwnerID))
	if err != nil {
		return persistence.Project{}, err
	}
	if !decision.Allowed {
		return persistence.Project{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return record, nil
}

func validateName(fieldErrors FieldErrors, raw *string) string {
	name := strings.TrimSpace(*raw)
	switch {
	case name == "":
		fieldErrors.add("name", "name is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		fieldErrors.add("name", fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name
}

func validateDescription(fieldErrors FieldErrors, raw *string) *string {
	if raw == nil {
		return nil
	}
	description := strings.TrimSpace(*raw)
	if description == "" {
		return nil
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		fieldErrors.add("description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	return &description
}

func mapProject(record persistence.Project) Project {
	return Project{
		ID:          record.ID,
		Name:        record.Name,
		Slug:        record.Slug,
		Description: record.Description,
		OwnerID:     record.OwnerID,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func mapSummaries(records []persistence.ProjectSummary) []Project {
	out := make([]Project, 0, len(records))
	for _, r := range records {
		p := mapProject(r.Project)
		p.MemberCount = r.MemberCount
		out = append(out, p)
	}
	return out
}
