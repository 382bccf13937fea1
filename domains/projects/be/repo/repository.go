package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// Repository defines the persistence operations required by the projects service.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateProject(ctx context.Context, p persistence.Project) (persistence.Project, error)
	GetProject(ctx context.Context, id uuid.UUID) (persistence.Project, error)
	UpdateProject(ctx context.Context, id uuid.UUID, u persistence.ProjectUpdate) (persistence.Project, error)
	SoftDeleteProject(ctx context.Context, id uuid.UUID) error
	ListProjects(ctx context.Context, f persistence.ProjectFilter) ([]persistence.ProjectSummary, int, error)
	HasAnyProject(ctx context.Context, userID uuid.UUID) (bool, error)

	AddMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	ListMembers(ctx context.Context, projectID uuid.UUID) ([]persistence.Member, error)
	ListPendingInvitations(ctx context.Context, projectID uuid.UUID, now time.Time) ([]persistence.Invitation, error)

	SetCurrentProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) error
	RepointCurrentProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type postgresRepository struct {
	tx          *persistence.TxRunner
	projects    *persistence.ProjectStore
	users       *persistence.UserStore
	invitations *persistence.InvitationStore
}

// NewPostgresRepository constructs a repository backed by the shared persistence layer.
func NewPostgresRepository(tx *persistence.TxRunner, projects *persistence.ProjectStore, users *persistence.UserStore, invitations *persistence.InvitationStore) Repository {
	if tx == nil {
		panic("tx runner is required")
	}
	if projects == nil {
		panic("project store is required")
	}
	if users == nil {
		panic("user store is required")
	}
	if invitations == nil {
		panic("invitation store is required")
	}
	return &postgresRepository{tx: tx, projects: projects, users: users, invitations: invitations}
}

func (r *postgresRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.tx.WithinTx(ctx, fn)
}

func (r *postgresRepository) CreateProject(ctx context.Context, p persistence.Project) (persistence.Project, error) {
	return r.projects.CreateProject(ctx, p)
}

func (r *postgresRepository) GetProject(ctx context.Context, id uuid.UUID) (persistence.Project, error) {
	return r.projects.GetProject(ctx, id)
}

func (r *postgresRepository) UpdateProject(ctx context.Context, id uuid.UUID, u persistence.ProjectUpdate) (persistence.Project, error) {
	return r.projects.UpdateProject(ctx, id, u)
}

func (r *postgresRepository) SoftDeleteProject(ctx context.Context, id uuid.UUID) error {
	return r.projects.SoftDeleteProject(ctx, id)
}

func (r *postgresRepository) ListProjects(ctx context.Context, f persistence.ProjectFilter) ([]persistence.ProjectSummary, int, error) {
	return r.projects.ListProjects(ctx, f)
}

func (r *postgresRepository) HasAnyProject(ctx context.Context, userID uuid.UUID) (bool, error) {
	return r.projects.HasAnyProject(ctx, userID)
}

func (r *postgresRepository) AddMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	return r.projects.AddMember(ctx, projectID, userID)
}

func (r *postgresRepository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]persistence.Member, error) {
	return r.projects.ListMembers(ctx, projectID)
}

func (r *postgresRepository) ListPendingInvitations(ctx context.Context, projectID uuid.UUID, now time.Time) ([]persistence.Invitation, error) {
	return r.invitations.ListPendingInvitations(ctx, projectID, now)
}

func (r *postgresRepository) SetCurrentProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) error {
	return r.users.SetCurrentProject(ctx, userID, projectID)
}

func (r *postgresRepository) RepointCurrentProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	return r.users.RepointCurrentProject(ctx, projectID)
}
