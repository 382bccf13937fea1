// Package rbac holds the project-scoped role catalog, materializes it per
// project, and evaluates authorization decisions.
package rbac

import "slices"

const (
	RoleOwner      = "Owner"
	RoleAdmin      = "Admin"
	RoleEditor     = "Editor"
	RoleViewer     = "Viewer"
	RoleSuperAdmin = "Super Admin"
)

const (
	PermViewProject   = "view project"
	PermUpdateProject = "update project"
	PermDeleteProject = "delete project"
	PermInviteMembers = "invite members"
	PermRemoveMembers = "remove members"
	PermManageRoles   = "manage roles"
	PermViewContent   = "view content"
	PermCreateContent = "create content"
	PermEditContent   = "edit content"
	PermDeleteContent = "delete content"

	PermAccessAdminPanel  = "access admin panel"
	PermManageUsers       = "manage users"
	PermManageAllProjects = "manage all projects"
)

// RoleDefinition is one catalog entry.
type RoleDefinition struct {
	Name        string
	Permissions []string
}

var catalog = []RoleDefinition{
	{Name: RoleOwner, Permissions: []string{
		PermViewProject, PermUpdateProject, PermDeleteProject,
		PermInviteMembers, PermRemoveMembers, PermManageRoles,
		PermViewContent, PermCreateContent, PermEditContent, PermDeleteContent,
	}},
	{Name: RoleAdmin, Permissions: []string{
		PermViewProject, PermUpdateProject,
		PermInviteMembers, PermRemoveMembers,
		PermViewContent, PermCreateContent, PermEditContent, PermDeleteContent,
	}},
	{Name: RoleEditor, Permissions: []string{
		PermViewProject,
		PermViewContent, PermCreateContent, PermEditContent,
	}},
	{Name: RoleViewer, Permissions: []string{
		PermViewProject,
		PermViewContent,
	}},
}

var globalPermissions = []string{PermAccessAdminPanel, PermManageUsers, PermManageAllProjects}

// Catalog returns a copy of the project-scoped role catalog in catalog order.
func Catalog() []RoleDefinition {
	out := make([]RoleDefinition, len(catalog))
	for i, def := range catalog {
		out[i] = RoleDefinition{Name: def.Name, Permissions: slices.Clone(def.Permissions)}
	}
	return out
}

// AssignableRoleNames returns the four catalog role names in order.
func AssignableRoleNames() []string {
	names := make([]string, len(catalog))
	for i, def := range catalog {
		names[i] = def.Name
	}
	return names
}

// InvitableRoleNames returns the roles an invitation may grant. Ownership
// cannot be granted by invitation.
func InvitableRoleNames() []string {
	return slices.DeleteFunc(AssignableRoleNames(), func(name string) bool { return name == RoleOwner })
}

// IsInvitable reports whether name is one of InvitableRoleNames.
func IsInvitable(name string) bool {
	return slices.Contains(InvitableRoleNames(), name)
}

// ProjectPermissions lists every permission used by the catalog.
func ProjectPermissions() []string {
	return slices.Clone(catalog[0].Permissions)
}

// GlobalPermissions lists the platform permissions held by Super Admin.
func GlobalPermissions() []string {
	return slices.Clone(globalPermissions)
}
