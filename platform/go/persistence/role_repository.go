package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	RolesTable           = "roles"
	PermissionsTable     = "permissions"
	RolePermissionsTable = "role_permissions"
	UserRolesTable       = "user_roles"
)

// Role is a named permission bundle. A nil ProjectID marks a global role.
type Role struct {
	ID        uuid.UUID  `db:"id"`
	Name      string     `db:"name"`
	ProjectID *uuid.UUID `db:"project_id"`
}

// ErrRoleNotFound indicates no role exists for the (name, project) pair.
var ErrRoleNotFound = errors.New("role not found")

// RoleStore persists roles, permissions and their assignments.
type RoleStore struct {
	db DBTX
}

// NewRoleStore returns a store bound to db; migrations must have run.
func NewRoleStore(db DBTX) (*RoleStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &RoleStore{db: db}, nil
}

// EnsurePermissions creates any missing permission names.
func (s *RoleStore) EnsurePermissions(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(names))
	for i := range names {
		ids[i] = uuid.New()
	}

	_, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, name)
        SELECT * FROM UNNEST($1::uuid[], $2::text[])
        ON CONFLICT (name) DO NOTHING
    `, PermissionsTable), ids, names)
	if err != nil {
		return fmt.Errorf("ensure permissions: %w", err)
	}
	return nil
}

// FindOrCreateRole returns the role for (name, projectID), creating it when
// missing. Concurrent callers converge on the same row.
func (s *RoleStore) FindOrCreateRole(ctx context.Context, name string, projectID *uuid.UUID) (Role, error) {
	conflictTarget := "(name, project_id) WHERE project_id IS NOT NULL"
	if projectID == nil {
		conflictTarget = "(name) WHERE project_id IS NULL"
	}

	if _, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, name, project_id) VALUES ($1, $2, $3)
        ON CONFLICT %s DO NOTHING
    `, RolesTable, conflictTarget), uuid.New(), name, projectID); err != nil {
		return Role{}, fmt.Errorf("insert role %q: %w", name, err)
	}

	return s.FindRole(ctx, name, projectID)
}

// FindRole looks a role up by its (name, project) identity.
func (s *RoleStore) FindRole(ctx context.Context, name string, projectID *uuid.UUID) (Role, error) {
	var r Role
	err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT id, name, project_id FROM %s WHERE name = $1 AND project_id IS NOT DISTINCT FROM $2
    `, RolesTable), name, projectID).Scan(&r.ID, &r.Name, &r.ProjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, err
	}
	return r, nil
}

// ReplaceRolePermissions makes names the exact permission set of roleID.
// The role row is locked for the duration of the caller's transaction so
// concurrent replacements serialize.
func (s *RoleStore) ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, names []string) error {
	if !InTx(ctx) {
		return errors.New("replace role permissions requires a transaction")
	}
	db := conn(ctx, s.db)

	var locked uuid.UUID
	if err := db.QueryRow(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = $1 FOR UPDATE`, RolesTable), roleID).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lock role: %w", err)
	}

	if err := s.EnsurePermissions(ctx, names); err != nil {
		return err
	}

	if _, err := db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE role_id = $1`, RolePermissionsTable), roleID); err != nil {
		return fmt.Errorf("clear role permissions: %w", err)
	}

	if _, err := db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (role_id, permission_id)
        SELECT $1, p.id FROM %s p WHERE p.name = ANY($2::text[])
        ON CONFLICT DO NOTHING
    `, RolePermissionsTable, PermissionsTable), roleID, names); err != nil {
		return fmt.Errorf("insert role permissions: %w", err)
	}
	return nil
}

// RolePermissions lists the permission names bound to roleID, sorted.
func (s *RoleStore) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	return s.queryNames(ctx, fmt.Sprintf(`
        SELECT p.name FROM %s rp JOIN %s p ON p.id = rp.permission_id
        WHERE rp.role_id = $1 ORDER BY p.name
    `, RolePermissionsTable, PermissionsTable), roleID)
}

// ListProjectRoles returns the roles scoped to projectID ordered by name.
func (s *RoleStore) ListProjectRoles(ctx context.Context, projectID uuid.UUID) ([]Role, error) {
	rows, err := conn(ctx, s.db).Query(ctx, fmt.Sprintf(`
        SELECT id, name, project_id FROM %s WHERE project_id = $1 ORDER BY name
    `, RolesTable), projectID)
	if err != nil {
		return nil, fmt.Errorf("list project roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.ProjectID); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// AssignRole grants roleID to userID; repeated grants are no-ops.
func (s *RoleStore) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if _, err := conn(ctx, s.db).Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (user_id, role_id) VALUES ($1, $2)
        ON CONFLICT (user_id, role_id) DO NOTHING
    `, UserRolesTable), userID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// UserHasRole reports whether userID holds a role named name scoped to
// projectID or global. A nil projectID matches global roles only.
func (s *RoleStore) UserHasRole(ctx context.Context, userID uuid.UUID, name string, projectID *uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (
            SELECT 1 FROM %s ur JOIN %s r ON r.id = ur.role_id
            WHERE ur.user_id = $1 AND r.name = $2 AND (r.project_id = $3::uuid OR r.project_id IS NULL)
        )
    `, UserRolesTable, RolesTable), userID, name, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return exists, nil
}

// UserHasPermission reports whether any role of userID scoped to projectID
// or global carries permission.
func (s *RoleStore) UserHasPermission(ctx context.Context, userID uuid.UUID, permission string, projectID *uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, s.db).QueryRow(ctx, fmt.Sprintf(`
        SELECT EXISTS (
            SELECT 1 FROM %s ur
            JOIN %s r ON r.id = ur.role_id
            JOIN %s rp ON rp.role_id = r.id
            JOIN %s p ON p.id = rp.permission_id
            WHERE ur.user_id = $1 AND p.name = $2 AND (r.project_id = $3::uuid OR r.project_id IS NULL)
        )
    `, UserRolesTable, RolesTable, RolePermissionsTable, PermissionsTable), userID, permission, projectID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check permission: %w", err)
	}
	return exists, nil
}

// UserPermissions lists the distinct permission names userID holds in
// projectID, including global grants.
func (s *RoleStore) UserPermissions(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) ([]string, error) {
	return s.queryNames(ctx, fmt.Sprintf(`
        SELECT DISTINCT p.name FROM %s ur
        JOIN %s r ON r.id = ur.role_id
        JOIN %s rp ON rp.role_id = r.id
        JOIN %s p ON p.id = rp.permission_id
        WHERE ur.user_id = $1 AND (r.project_id = $2::uuid OR r.project_id IS NULL)
        ORDER BY p.name
    `, UserRolesTable, RolesTable, RolePermissionsTable, PermissionsTable), userID, projectID)
}

func (s *RoleStore) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := conn(ctx, s.db).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
