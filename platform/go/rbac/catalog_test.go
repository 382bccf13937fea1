package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{RoleOwner, RoleAdmin, RoleEditor, RoleViewer}, AssignableRoleNames())
	require.Equal(t, []string{RoleAdmin, RoleEditor, RoleViewer}, InvitableRoleNames())
	require.False(t, IsInvitable(RoleOwner))
	require.False(t, IsInvitable(RoleSuperAdmin))
	require.True(t, IsInvitable(RoleViewer))
}

func TestCatalogIsACopy(t *testing.T) {
	t.Parallel()

	c := Catalog()
	c[0].Permissions[0] = "tampered"
	require.Equal(t, PermViewProject, Catalog()[0].Permissions[0])
}

func TestCatalogPermissions(t *testing.T) {
	t.Parallel()

	byName := map[string][]string{}
	for _, def := range Catalog() {
		byName[def.Name] = def.Permissions
	}

	require.ElementsMatch(t, []string{PermViewProject, PermViewContent}, byName[RoleViewer])
	require.ElementsMatch(t, []string{PermViewProject, PermViewContent, PermCreateContent, PermEditContent}, byName[RoleEditor])
	require.NotContains(t, byName[RoleAdmin], PermDeleteProject)
	require.NotContains(t, byName[RoleAdmin], PermManageRoles)
	require.Contains(t, byName[RoleOwner], PermDeleteProject)
	require.Len(t, ProjectPermissions(), 10)
	require.Len(t, GlobalPermissions(), 3)
}
