package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const InvitationsTable = "invitations"

// Invitation represents a row in the invitations table.
type Invitation struct {
	ID         uuid.UUID  `db:"id"`
	ProjectID  uuid.UUID  `db:"project_id"`
	InvitedBy  uuid.UUID  `db:"invited_by"`
	Email      string     `db:"email"`
	Role       string     `db:"role"`
	Token      string     `db:"token"`
	ExpiresAt  time.Time  `db:"expires_at"`
	AcceptedAt *time.Time `db:"accepted_at"`
	CreatedAt  time.Time  `db:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
}

// InvitationDetails joins an invitation with the names shown to the invitee.
type InvitationDetails struct {
	Invitation
	ProjectName string
	InviterName string
}

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationPending means an unaccepted invitation already exists for the (project, email) pair.
	ErrInvitationPending    = errors.New("pending invitation already exists")
	ErrInvitationTokenTaken = errors.New("invitation token collision")
)

const invitationColumns = `i.id, i.project_id, i.invited_by, i.email, i.role, i.token, i.expires_at, i.accepted_at, i.created_at, i.updated_at`

// InvitationStore exposes persistence helpers for the invitations table.
type InvitationStore struct {
	db DBTX
}

// NewInvitationStore returns a store bound to db; migrations must have run.
func NewInvitationStore(db DBTX) (*InvitationStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &InvitationStore{db: db}, nil
}

// PurgeExpiredPending deletes unaccepted invitations for the pair whose expiry is at or before now.
func (s *InvitationStore) PurgeExpiredPending(ctx context.Context, projectID uuid.UUID, email string, now time.Time) (int64, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s
        WHERE project_id = $1 AND LOWER(email) = LOWER($2) AND accepted_at IS NULL AND expires_at <= $3
    `, InvitationsTable), projectID, strings.TrimSpace(email), now)
	if err != nil {
		return 0, fmt.Errorf("purge expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreateInvitation inserts inv. The pending-email unique index rejects a
// second unaccepted invitation for the same pair.
func (s *InvitationStore) CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s AS i (id, project_id, invited_by, email, role, token, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING %s
    `, InvitationsTable, invitationColumns),
		inv.ID, inv.ProjectID, inv.InvitedBy, strings.ToLower(strings.TrimSpace(inv.Email)), inv.Role, inv.Token, inv.ExpiresAt)

	out, err := scanInvitation(row)
	if err != nil {
		switch violatedConstraint(err) {
		case "invitations_pending_email_key":
			return Invitation{}, ErrInvitationPending
		case "invitations_token_key":
			return Invitation{}, ErrInvitationTokenTaken
		}
		return Invitation{}, err
	}
	return out, nil
}

// GetInvitation returns an invitation that belongs to projectID.
func (s *InvitationStore) GetInvitation(ctx context.Context, projectID, id uuid.UUID) (Invitation, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s i WHERE i.id = $1 AND i.project_id = $2
    `, invitationColumns, InvitationsTable), id, projectID)
	return scanInvitation(row)
}

// FindInvitationByToken returns the invitation for token in any state, as
// long as its project is not deleted.
func (s *InvitationStore) FindInvitationByToken(ctx context.Context, token string) (InvitationDetails, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT %s, p.name, u.name
        FROM %s i
        JOIN %s p ON p.id = i.project_id AND p.deleted_at IS NULL
        JOIN %s u ON u.id = i.invited_by
        WHERE i.token = $1
    `, invitationColumns, InvitationsTable, ProjectsTable, UsersTable), token)

	var d InvitationDetails
	if err := row.Scan(&d.ID, &d.ProjectID, &d.InvitedBy, &d.Email, &d.Role, &d.Token, &d.ExpiresAt, &d.AcceptedAt,
		&d.CreatedAt, &d.UpdatedAt, &d.ProjectName, &d.InviterName); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InvitationDetails{}, ErrInvitationNotFound
		}
		return InvitationDetails{}, err
	}
	return d, nil
}

// LockPendingInvitation selects the pending invitation for token FOR UPDATE.
// Unknown, accepted and expired tokens all yield ErrInvitationNotFound.
func (s *InvitationStore) LockPendingInvitation(ctx context.Context, token string, now time.Time) (Invitation, error) {
	if !InTx(ctx) {
		return Invitation{}, errors.New("lock pending invitation requires a transaction")
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s i
        JOIN %s p ON p.id = i.project_id AND p.deleted_at IS NULL
        WHERE i.token = $1 AND i.accepted_at IS NULL AND i.expires_at > $2
        FOR UPDATE OF i
    `, invitationColumns, InvitationsTable, ProjectsTable), token, now)
	return scanInvitation(row)
}

// MarkInvitationAccepted stamps accepted_at on a still-unaccepted invitation.
func (s *InvitationStore) MarkInvitationAccepted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET accepted_at = $2, updated_at = NOW() WHERE id = $1 AND accepted_at IS NULL
    `, InvitationsTable), id, at)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// DeleteInvitation removes an invitation of projectID permanently.
func (s *InvitationStore) DeleteInvitation(ctx context.Context, projectID, id uuid.UUID) error {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        DELETE FROM %s WHERE id = $1 AND project_id = $2
    `, InvitationsTable), id, projectID)
	if err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// RefreshInvitation replaces the token and expiry, leaving role, email and
// acceptance untouched. An accepted row stays accepted.
func (s *InvitationStore) RefreshInvitation(ctx context.Context, projectID, id uuid.UUID, token string, expiresAt time.Time) (Invitation, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s AS i SET token = $3, expires_at = $4, updated_at = NOW()
        WHERE i.id = $1 AND i.project_id = $2
        RETURNING %s
    `, InvitationsTable, invitationColumns), id, projectID, token, expiresAt)

	out, err := scanInvitation(row)
	if err != nil {
		if violatedConstraint(err) == "invitations_token_key" {
			return Invitation{}, ErrInvitationTokenTaken
		}
		return Invitation{}, err
	}
	return out, nil
}

// ListPendingInvitations returns unaccepted, unexpired invitations of projectID, newest first.
func (s *InvitationStore) ListPendingInvitations(ctx context.Context, projectID uuid.UUID, now time.Time) ([]Invitation, error) {
	rows, err := conn(ctx, s.db).Query(ctx, fmt.Sprintf(`
        SELECT %s FROM %s i
        WHERE i.project_id = $1 AND i.accepted_at IS NULL AND i.expires_at > $2
        ORDER BY i.created_at DESC
    `, invitationColumns, InvitationsTable), projectID, now)
	if err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvitation(row pgx.Row) (Invitation, error) {
	var inv Invitation
	if err := row.Scan(&inv.ID, &inv.ProjectID, &inv.InvitedBy, &inv.Email, &inv.Role, &inv.Token, &inv.ExpiresAt,
		&inv.AcceptedAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invitation{}, ErrInvitationNotFound
		}
		return Invitation{}, err
	}
	return inv, nil
}
