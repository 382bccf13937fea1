package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// Repository defines the persistence operations required by the invitations service.
type Repository interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	GetProject(ctx context.Context, id uuid.UUID) (persistence.Project, error)
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	AddMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)

	FindUserByEmail(ctx context.Context, email string) (persistence.User, error)
	SetCurrentProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) error

	PurgeExpiredPending(ctx context.Context, projectID uuid.UUID, email string, now time.Time) (int64, error)
	CreateInvitation(ctx context.Context, inv persistence.Invitation) (persistence.Invitation, error)
	FindInvitationByToken(ctx context.Context, token string) (persistence.InvitationDetails, error)
	LockPendingInvitation(ctx context.Context, token string, now time.Time) (persistence.Invitation, error)
	MarkInvitationAccepted(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteInvitation(ctx context.Context, projectID, id uuid.UUID) error
	RefreshInvitation(ctx context.Context, projectID, id uuid.UUID, token string, expiresAt time.Time) (persistence.Invitation, error)
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

func (r *postgresRepository) GetProject(ctx context.Context, id uuid.UUID) (persistence.Project, error) {
	return r.projects.GetProject(ctx, id)
}

func (r *postgresRepository) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	return r.projects.IsMember(ctx, projectID, userID)
}

func (r *postgresRepository) AddMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	return r.projects.AddMember(ctx, projectID, userID)
}

func (r *postgresRepository) FindUserByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.users.FindUserByEmail(ctx, email)
}

func (r *postgresRepository) SetCurrentProject(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) error {
	return r.users.SetCurrentProject(ctx, userID, projectID)
}

func (r *postgresRepository) PurgeExpiredPending(ctx context.Context, projectID uuid.UUID, email string, now time.Time) (int64, error) {
	return r.invitations.PurgeExpiredPending(ctx, projectID, email, now)
}

func (r *postgresRepository) CreateInvitation(ctx context.Context, inv persistence.Invitation) (persistence.Invitation, error) {
	return r.invitations.CreateInvitation(ctx, inv)
}

func (r *postgresRepository) FindInvitationByToken(ctx context.Context, token string) (persistence.InvitationDetails, error) {
	return r.invitations.FindInvitationByToken(ctx, token)
}

func (r *postgresRepository) LockPendingInvitation(ctx context.Context, token string, now time.Time) (persistence.Invitation, error) {
	return r.invitations.LockPendingInvitation(ctx, token, now)
}

func (r *postgresRepository) MarkInvitationAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.invitations.MarkInvitationAccepted(ctx, id, at)
}

func (r *postgresRepository) DeleteInvitation(ctx context.Context, projectID, id uuid.UUID) error {
	return r.invitations.DeleteInvitation(ctx, projectID, id)
}

func (r *postgresRepository) RefreshInvitation(ctx context.Context, projectID, id uuid.UUID, token string, expiresAt time.Time) (persistence.Invitation, error) {
	return r.invitations.RefreshInvitation(ctx, projectID, id, token, expiresAt)
}
