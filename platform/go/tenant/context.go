package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
)

var (
	// ErrNoActiveProject is returned when a scoped read is attempted for a
	// principal that has no active project.
	ErrNoActiveProject = errors.New("no active project")
	// ErrScopeRequired flags a repository call made with the zero Scope.
	ErrScopeRequired = errors.New("project scope is required")
)

type ctxKey string

const activeProjectKey ctxKey = "PALMYRA_ACTIVE_PROJECT"

// WithActiveProject returns a derived context whose active project is id.
// Callers validate membership before setting it.
func WithActiveProject(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, activeProjectKey, id)
}

// ActiveProject returns the project set on ctx, if any.
func ActiveProject(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(activeProjectKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Scope is the explicit filter handed to project-owned repositories. It is
// either bound to one project or deliberately unscoped; the zero value is
// neither and is rejected.
type Scope struct {
	projectID uuid.UUID
	unscoped  bool
}

// Scoped restricts reads to rows of projectID and stamps it on writes.
func Scoped(projectID uuid.UUID) Scope {
	return Scope{projectID: projectID}
}

// Unscoped disables project filtering for a single call.
func Unscoped() Scope {
	return Scope{unscoped: true}
}

// ProjectID returns the bound project; ok is false for Unscoped.
func (s Scope) ProjectID() (uuid.UUID, bool) {
	if s.unscoped || s.projectID == uuid.Nil {
		return uuid.Nil, false
	}
	return s.projectID, true
}

// IsUnscoped reports whether the scope bypasses project filtering.
func (s Scope) IsUnscoped() bool {
	return s.unscoped
}

// Validate rejects the zero Scope.
func (s Scope) Validate() error {
	if !s.unscoped && s.projectID == uuid.Nil {
		return ErrScopeRequired
	}
	return nil
}

func (s Scope) String() string {
	if s.unscoped {
		return "unscoped"
	}
	if s.projectID == uuid.Nil {
		return "invalid"
	}
	return "project:" + s.projectID.String()
}

// ResolveScope derives the repository scope for the request on ctx.
// Background work without a principal and super admins see every project;
// everyone else is bound to the active project.
func ResolveScope(ctx context.Context) (Scope, error) {
	principal, ok := identity.FromContext(ctx)
	if !ok {
		return Unscoped(), nil
	}
	if principal.SuperAdmin {
		return Unscoped(), nil
	}

	id, ok := ActiveProject(ctx)
	if !ok {
		return Scope{}, ErrNoActiveProject
	}
	return Scoped(id), nil
}
