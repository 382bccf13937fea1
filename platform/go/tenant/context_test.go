package tenant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-projects/platform/go/identity"
)

func TestActiveProjectRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := ActiveProject(context.Background())
	require.False(t, ok)

	id := uuid.New()
	ctx := WithActiveProject(context.Background(), id)
	got, ok := ActiveProject(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)

	other := uuid.New()
	got, _ = ActiveProject(WithActiveProject(ctx, other))
	require.Equal(t, other, got)
}

func TestScopeValidate(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Scope{}.Validate(), ErrScopeRequired)
	require.NoError(t, Unscoped().Validate())

	id := uuid.New()
	scope := Scoped(id)
	require.NoError(t, scope.Validate())
	got, ok := scope.ProjectID()
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = Unscoped().ProjectID()
	require.False(t, ok)
	require.True(t, Unscoped().IsUnscoped())
}

func TestResolveScope(t *testing.T) {
	t.Parallel()

	projectID := uuid.New()

	t.Run("no principal sees everything", func(t *testing.T) {
		t.Parallel()
		scope, err := ResolveScope(context.Background())
		require.NoError(t, err)
		require.True(t, scope.IsUnscoped())
	})

	t.Run("super admin sees everything", func(t *testing.T) {
		t.Parallel()
		ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: uuid.New(), SuperAdmin: true})
		ctx = WithActiveProject(ctx, projectID)
		scope, err := ResolveScope(ctx)
		require.NoError(t, err)
		require.True(t, scope.IsUnscoped())
	})

	t.Run("member is bound to active project", func(t *testing.T) {
		t.Parallel()
		ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: uuid.New()})
		ctx = WithActiveProject(ctx, projectID)
		scope, err := ResolveScope(ctx)
		require.NoError(t, err)
		got, ok := scope.ProjectID()
		require.True(t, ok)
		require.Equal(t, projectID, got)
	})

	t.Run("member without active project fails", func(t *testing.T) {
		t.Parallel()
		ctx := identity.WithPrincipal(context.Background(), identity.Principal{ID: uuid.New()})
		_, err := ResolveScope(ctx)
		require.ErrorIs(t, err, ErrNoActiveProject)
	})
}
