package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
)

var (
	// ErrMissingProject flags a project-scoped check made without a project id.
	ErrMissingProject = errors.New("rbac: project id is required")
	// ErrNoPolicy flags an (action, resource type) pair with no registered policy.
	ErrNoPolicy = errors.New("rbac: no policy registered")
	// ErrForbidden is returned by Require when a decision denies access.
	ErrForbidden = errors.New("forbidden")
)

// Action is something a principal attempts on a resource.
type Action string

const (
	ActionView              Action = "view"
	ActionUpdate            Action = "update"
	ActionDelete            Action = "delete"
	ActionSwitch            Action = "switch"
	ActionManageInvitations Action = "manage-invitations"
	ActionViewContent       Action = "view-content"
	ActionCreateContent     Action = "create-content"
	ActionEditContent       Action = "edit-content"
	ActionDeleteContent     Action = "delete-content"
)

// ResourceType names the kind of resource a policy governs.
type ResourceType string

const (
	ResourceProject  ResourceType = "project"
	ResourceDocument ResourceType = "document"
)

// Resource is the target of a decision. Every resource lives in a project.
type Resource struct {
	Type      ResourceType
	ProjectID uuid.UUID
	// OwnerID is the project owner when known; uuid.Nil otherwise.
	OwnerID uuid.UUID
}

// Project describes a project resource.
func Project(projectID, ownerID uuid.UUID) Resource {
	return Resource{Type: ResourceProject, ProjectID: projectID, OwnerID: ownerID}
}

// Document describes project-owned content.
func Document(projectID uuid.UUID) Resource {
	return Resource{Type: ResourceDocument, ProjectID: projectID}
}

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  string
}

func (d Decision) outcome() string {
	if d.Allowed {
		return "allow"
	}
	return "deny"
}

// MembershipChecker answers whether a user belongs to a project.
type MembershipChecker interface {
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
}

// DecisionRecorder observes every decision.
type DecisionRecorder interface {
	RecordDecision(action, resource, outcome string)
}

type policyKey struct {
	action   Action
	resource ResourceType
}

type policyFunc func(ctx context.Context, e *Engine, p identity.Principal, r Resource) (Decision, error)

// Engine evaluates authorization decisions.
type Engine struct {
	roles    RoleRepository
	registry *Registry
	members  MembershipChecker
	recorder DecisionRecorder
	policies map[policyKey]policyFunc
}

// NewEngine builds an Engine. recorder may be nil.
func NewEngine(roles RoleRepository, registry *Registry, members MembershipChecker, recorder DecisionRecorder) *Engine {
	if roles == nil {
		panic("rbac engine requires role repository")
	}
	if registry == nil {
		panic("rbac engine requires registry")
	}
	if members == nil {
		panic("rbac engine requires membership checker")
	}

	e := &Engine{roles: roles, registry: registry, members: members, recorder: recorder}
	e.policies = map[policyKey]policyFunc{
		{ActionView, ResourceProject}:              ownerOrMember,
		{ActionSwitch, ResourceProject}:            ownerOrMember,
		{ActionUpdate, ResourceProject}:            ownerOnly,
		{ActionDelete, ResourceProject}:            ownerOnly,
		{ActionManageInvitations, ResourceProject}: invitationManager,
		{ActionViewContent, ResourceDocument}:      requirePermission(PermViewContent),
		{ActionCreateContent, ResourceDocument}:    requirePermission(PermCreateContent),
		{ActionEditContent, ResourceDocument}:      requirePermission(PermEditContent),
		{ActionDeleteContent, ResourceDocument}:    requirePermission(PermDeleteContent),
	}
	return e
}

// Authorize is the single entry point for authorization decisions. Super
// admins are allowed before any policy runs. A denial is reported through
// the Decision, never as an error; errors mean the check itself could not run
// or was called incorrectly.
func (e *Engine) Authorize(ctx context.Context, p identity.Principal, action Action, r Resource) (Decision, error) {
	superAdmin, err := e.IsSuperAdmin(ctx, p)
	if err != nil {
		return Decision{}, err
	}
	if superAdmin {
		return e.record(action, r, Decision{Allowed: true, Reason: "super admin"}), nil
	}

	if r.ProjectID == uuid.Nil {
		return Decision{}, ErrMissingProject
	}
	if p.ID == uuid.Nil {
		return e.record(action, r, Decision{Reason: "unauthenticated"}), nil
	}

	policy, ok := e.policies[policyKey{action, r.Type}]
	if !ok {
		return Decision{}, fmt.Errorf("%w for %s on %s", ErrNoPolicy, action, r.Type)
	}

	d, err := policy(ctx, e, p, r)
	if err != nil {
		return Decision{}, fmt.Errorf("evaluate %s on %s: %w", action, r.Type, err)
	}
	return e.record(action, r, d), nil
}

// Require is Authorize that turns a denial into ErrForbidden.
func (e *Engine) Require(ctx context.Context, p identity.Principal, action Action, r Resource) error {
	d, err := e.Authorize(ctx, p, action, r)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
	}
	return nil
}

func (e *Engine) record(action Action, r Resource, d Decision) Decision {
	if e.recorder != nil {
		e.recorder.RecordDecision(string(action), string(r.Type), d.outcome())
	}
	return d
}

// HasRole reports whether userID holds roleName scoped to projectID or
// globally. A nil projectID matches global roles only.
func (e *Engine) HasRole(ctx context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) (bool, error) {
	return e.roles.UserHasRole(ctx, userID, roleName, projectID)
}

// HasPermission reports whether userID holds permission through any role
// scoped to projectID or globally.
func (e *Engine) HasPermission(ctx context.Context, userID uuid.UUID, permission string, projectID *uuid.UUID) (bool, error) {
	return e.roles.UserHasPermission(ctx, userID, permission, projectID)
}

// IsSuperAdminUser reports whether userID holds the global Super Admin role.
func (e *Engine) IsSuperAdminUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	return e.HasRole(ctx, userID, RoleSuperAdmin, nil)
}

// IsSuperAdmin reports whether p is a super admin, trusting the flag set when
// the principal was resolved.
func (e *Engine) IsSuperAdmin(ctx context.Context, p identity.Principal) (bool, error) {
	if p.SuperAdmin {
		return true, nil
	}
	if p.ID == uuid.Nil {
		return false, nil
	}
	return e.IsSuperAdminUser(ctx, p.ID)
}

// AssignRole grants roleName scoped to projectID to userID. The role must
// already exist; nil projectID assigns the global role.
func (e *Engine) AssignRole(ctx context.Context, userID uuid.UUID, roleName string, projectID *uuid.UUID) error {
	roleID, err := e.registry.RoleID(ctx, roleName, projectID)
	if err != nil {
		return err
	}
	return e.roles.AssignRole(ctx, userID, roleID)
}

// PermissionsFor lists the permissions userID holds in projectID.
func (e *Engine) PermissionsFor(ctx context.Context, userID, projectID uuid.UUID) ([]string, error) {
	if projectID == uuid.Nil {
		return nil, ErrMissingProject
	}
	return e.roles.UserPermissions(ctx, userID, &projectID)
}

func ownerOrMember(ctx context.Context, e *Engine, p identity.Principal, r Resource) (Decision, error) {
	if r.OwnerID == p.ID {
		return Decision{Allowed: true, Reason: "owner"}, nil
	}
	member, err := e.members.IsMember(ctx, r.ProjectID, p.ID)
	if err != nil {
		return Decision{}, err
	}
	if member {
		return Decision{Allowed: true, Reason: "member"}, nil
	}
	return Decision{Reason: "not a member"}, nil
}

func ownerOnly(_ context.Context, _ *Engine, p identity.Principal, r Resource) (Decision, error) {
	if r.OwnerID == p.ID {
		return Decision{Allowed: true, Reason: "owner"}, nil
	}
	return Decision{Reason: "not the owner"}, nil
}

func invitationManager(ctx context.Context, e *Engine, p identity.Principal, r Resource) (Decision, error) {
	if r.OwnerID == p.ID {
		return Decision{Allowed: true, Reason: "owner"}, nil
	}
	for _, role := range []string{RoleOwner, RoleAdmin} {
		ok, err := e.HasRole(ctx, p.ID, role, &r.ProjectID)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Allowed: true, Reason: "role " + role}, nil
		}
	}
	return Decision{Reason: "requires Owner or Admin"}, nil
}

func requirePermission(permission string) policyFunc {
	return func(ctx context.Context, e *Engine, p identity.Principal, r Resource) (Decision, error) {
		ok, err := e.HasPermission(ctx, p.ID, permission, &r.ProjectID)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Allowed: true, Reason: "permission " + permission}, nil
		}
		return Decision{Reason: "missing permission " + permission}, nil
	}
}
