package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-projects/platform/go/persistence"
)

// ErrRoleNotFound is returned when a role does not exist for the requested scope.
var ErrRoleNotFound = errors.New("role not found")

// RoleRepository is the persistence surface the registry and engine need.
type RoleRepository interface {
	EnsurePermissions(ctx context.Context, names []string) error
	FindOrCreateRole(ctx context.Context, name string, projectID *uuid.UUID) (persistence.Role, error)
	FindRole(ctx context.Context, name string, projectID *uuid.UUID) (persistence.Role, error)
	ReplaceRolePermissions(ctx context.Context, roleID uuid.UUID, names []string) error
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	UserHasRole(ctx context.Context, userID uuid.UUID, name string, projectID *uuid.UUID) (bool, error)
	UserHasPermission(ctx context.Context, userID uuid.UUID, permission string, projectID *uuid.UUID) (bool, error)
	UserPermissions(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) ([]string, error)
}

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Registry materializes the role catalog.
type Registry struct {
	roles  RoleRepository
	tx     TxRunner
	cache  *RoleCache
	logger *zap.Logger
}

// NewRegistry builds a Registry. cache may be nil.
func NewRegistry(roles RoleRepository, tx TxRunner, cache *RoleCache, logger *zap.Logger) *Registry {
	if roles == nil {
		panic("rbac registry requires role repository")
	}
	if tx == nil {
		panic("rbac registry requires tx runner")
	}
	if logger == nil {
		panic("rbac registry requires logger")
	}
	return &Registry{roles: roles, tx: tx, cache: cache, logger: logger}
}

// CreateRolesForProject ensures the four catalog roles exist for projectID
// and resets each role's permissions to the catalog. Custom permission edits
// are discarded. Safe to call repeatedly and concurrently.
func (r *Registry) CreateRolesForProject(ctx context.Context, projectID uuid.UUID) error {
	if projectID == uuid.Nil {
		return ErrMissingProject
	}

	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, def := range catalog {
			role, err := r.roles.FindOrCreateRole(ctx, def.Name, &projectID)
			if err != nil {
				return fmt.Errorf("ensure role %q: %w", def.Name, err)
			}
			if err := r.roles.ReplaceRolePermissions(ctx, role.ID, def.Permissions); err != nil {
				return fmt.Errorf("sync permissions of %q: %w", def.Name, err)
			}
		}
		return nil
	})
}

// SeedGlobal creates every catalog and platform permission plus the global
// Super Admin role holding the platform permissions.
func (r *Registry) SeedGlobal(ctx context.Context) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.roles.EnsurePermissions(ctx, append(GlobalPermissions(), ProjectPermissions()...)); err != nil {
			return err
		}

		role, err := r.roles.FindOrCreateRole(ctx, RoleSuperAdmin, nil)
		if err != nil {
			return fmt.Errorf("ensure super admin role: %w", err)
		}
		if err := r.roles.ReplaceRolePermissions(ctx, role.ID, GlobalPermissions()); err != nil {
			return fmt.Errorf("sync super admin permissions: %w", err)
		}

		r.logger.Info("global roles seeded", zap.String("role_id", role.ID.String()))
		return nil
	})
}

// RoleID resolves the id of role name scoped to projectID, or of the global
// role when projectID is nil. Lookups inside a transaction bypass the cache
// so uncommitted roles are never cached.
func (r *Registry) RoleID(ctx context.Context, name string, projectID *uuid.UUID) (uuid.UUID, error) {
	inTx := persistence.InTx(ctx)
	if !inTx {
		if id, ok := r.cache.get(name, projectID); ok {
			return id, nil
		}
	}

	role, err := r.roles.FindRole(ctx, name, projectID)
	if err != nil {
		if errors.Is(err, persistence.ErrRoleNotFound) {
			return uuid.Nil, ErrRoleNotFound
		}
		return uuid.Nil, fmt.Errorf("find role: %w", err)
	}

	if !inTx {
		r.cache.set(name, projectID, role.ID)
	}
	return role.ID, nil
}
