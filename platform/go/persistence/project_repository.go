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

const (
	ProjectsTable       = "projects"
	ProjectMembersTable = "project_members"
)

// Project represents a row in the projects table.
type Project struct {
	ID          uuid.UUID  `db:"id"`
	Name        string     `db:"name"`
	Slug        string     `db:"slug"`
	Description *string    `db:"description"`
	OwnerID     uuid.UUID  `db:"owner_id"`
	DeletedAt   *time.Time `db:"deleted_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// ProjectSummary is a listing row.
type ProjectSummary struct {
	Project
	MemberCount int
}

// Member is a project member with the names of roles scoped to the project.
type Member struct {
	UserID   uuid.UUID
	Email    string
	Name     string
	JoinedAt time.Time
	Roles    []string
}

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrProjectNameTaken = errors.New("project name already used by owner")
	ErrProjectSlugTaken = errors.New("project slug already exists")
)

const projectColumns = `p.id, p.name, p.slug, p.description, p.owner_id, p.deleted_at, p.created_at, p.updated_at`

// ProjectStore exposes persistence helpers for projects and their members.
type ProjectStore struct {
	db DBTX
}

// NewProjectStore returns a store bound to db; migrations must have run.
func NewProjectStore(db DBTX) (*ProjectStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &ProjectStore{db: db}, nil
}

// CreateProject inserts a project row.
func (s *ProjectStore) CreateProject(ctx context.Context, p Project) (Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s AS p (id, name, slug, description, owner_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING %s
    `, ProjectsTable, projectColumns), p.ID, strings.TrimSpace(p.Name), p.Slug, p.Description, p.OwnerID)

	out, err := scanProject(row)
	if err != nil {
		switch violatedConstraint(err) {
		case "projects_slug_key":
			return Project{}, ErrProjectSlugTaken
		case "projects_owner_name_key":
			return Project{}, ErrProjectNameTaken
		}
		return Project{}, err
	}
	return out, nil
}

// GetProject returns a non-deleted project.
func (s *ProjectStore) GetProject(ctx context.Context, id uuid.UUID) (Project, error) {
	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT %s FROM %s p WHERE p.id = $1 AND p.deleted_at IS NULL
    `, projectColumns, ProjectsTable), id)
	return scanProject(row)
}

// ProjectUpdate carries optional column changes.
type ProjectUpdate struct {
	Name        *string
	Description *string
}

// UpdateProject applies the non-nil fields of u. An empty description clears it.
func (s *ProjectStore) UpdateProject(ctx context.Context, id uuid.UUID, u ProjectUpdate) (Project, error) {
	var name *string
	if u.Name != nil {
		trimmed := strings.TrimSpace(*u.Name)
		name = &trimmed
	}

	row := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s AS p
        SET name = COALESCE($2, p.name),
            description = CASE WHEN $3::text IS NULL THEN p.description ELSE NULLIF($3::text, '') END,
            updated_at = NOW()
        WHERE p.id = $1 AND p.deleted_at IS NULL
        RETURNING %s
    `, ProjectsTable, projectColumns), id, name, u.Description)

	out, err := scanProject(row)
	if err != nil {
		if violatedConstraint(err) == "projects_owner_name_key" {
			return Project{}, ErrProjectNameTaken
		}
		return Project{}, err
	}
	return out, nil
}

// SoftDeleteProject stamps deleted_at; the row is retained.
func (s *ProjectStore) SoftDeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        UPDATE %s SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL
    `, ProjectsTable), id)
	if err != nil {
		return fmt.Errorf("soft delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// AddMember inserts a membership and reports whether it was new.
func (s *ProjectStore) AddMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	tag, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (project_id, user_id) VALUES ($1, $2)
        ON CONFLICT (project_id, user_id) DO NOTHING
    `, ProjectMembersTable), projectID, userID)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// IsMember reports whether userID has a membership row in projectID.
func (s *ProjectStore) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (SELECT 1 FROM %s WHERE project_id = $1 AND user_id = $2)
    `, ProjectMembersTable), projectID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// ListMembers returns members ordered by join time with their project-scoped role names.
func (s *ProjectStore) ListMembers(ctx context.Context, projectID uuid.UUID) ([]Member, error) {
	rows, err := conn(ctx, s.db).Query(ctx, fmt.Sprintf(`
        SELECT u.id, u.email, u.name, pm.joined_at,
               COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.id IS NOT NULL), '{}')
        FROM %s pm
        JOIN %s u ON u.id = pm.user_id
        LEFT JOIN %s ur ON ur.user_id = u.id
        LEFT JOIN %s r ON r.id = ur.role_id AND r.project_id = pm.project_id
        WHERE pm.project_id = $1
        GROUP BY u.id, u.email, u.name, pm.joined_at
        ORDER BY pm.joined_at ASC
    `, ProjectMembersTable, UsersTable, UserRolesTable, RolesTable), projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.JoinedAt, &m.Roles); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ProjectFilter selects the projects visible to a viewer.
type ProjectFilter struct {
	ViewerID uuid.UUID
	// All lists every non-deleted project instead of those the viewer owns or belongs to.
	All    bool
	Limit  int
	Offset int
}

// ListProjects returns non-deleted projects visible under f, the viewer's
// own projects first and then newest first, plus the total count. A zero
// Limit returns every row.
func (s *ProjectStore) ListProjects(ctx context.Context, f ProjectFilter) ([]ProjectSummary, int, error) {
	where := "WHERE p.deleted_at IS NULL"
	var countArgs []any
	if !f.All {
		where += fmt.Sprintf(` AND (p.owner_id = $1 OR EXISTS (
            SELECT 1 FROM %s vm WHERE vm.project_id = p.id AND vm.user_id = $1))`, ProjectMembersTable)
		countArgs = append(countArgs, f.ViewerID)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s p %s`, ProjectsTable, where)
	if err := conn(ctx, s.db).QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	page := ""
	if f.Limit > 0 {
		page = fmt.Sprintf("LIMIT %d OFFSET %d", f.Limit, max(f.Offset, 0))
	}

	rows, err := conn(ctx, s.db).Query(ctx, fmt.Sprintf(`
        SELECT %s,
               (SELECT COUNT(*) FROM %s m WHERE m.project_id = p.id) AS member_count
        FROM %s p
        %s
        ORDER BY (p.owner_id = $1) DESC, p.created_at DESC, p.id
        %s
    `, projectColumns, ProjectMembersTable, ProjectsTable, where, page), f.ViewerID)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []ProjectSummary
	for rows.Next() {
		var ps ProjectSummary
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.Slug, &ps.Description, &ps.OwnerID, &ps.DeletedAt,
			&ps.CreatedAt, &ps.UpdatedAt, &ps.MemberCount); err != nil {
			return nil, 0, err
		}
		projects = append(projects, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return projects, total, nil
}

// HasAnyProject reports whether userID owns or belongs to a non-deleted project.
func (s *ProjectStore) HasAnyProject(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (
            SELECT 1 FROM %s p
            WHERE p.deleted_at IS NULL
              AND (p.owner_id = $1 OR EXISTS (SELECT 1 FROM %s m WHERE m.project_id = p.id AND m.user_id = $1))
        )
    `, ProjectsTable, ProjectMembersTable), userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check projects: %w", err)
	}
	return exists, nil
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Description, &p.OwnerID, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrProjectNotFound
		}
		return Project{}, err
	}
	return p, nil
}
