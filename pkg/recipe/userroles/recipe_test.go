package userroles_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabsession/internal/coretest"
	"github.com/aussiebroadwan/tabsession/pkg/recipe/userroles"
	"github.com/aussiebroadwan/tabsession/pkg/session"
)

func newBackend(t *testing.T, cfg userroles.Config) (*coretest.Backend, *userroles.Recipe) {
	t.Helper()
	core := coretest.Start(t)
	cfg.Now = core.Clock.Now
	b := coretest.NewBackend(t, core, session.Config{}, userroles.Init(cfg))
	return b, b.App.Recipe(userroles.RecipeID).(*userroles.Recipe)
}

func TestRoleManagement(t *testing.T) {
	t.Parallel()

	_, r := newBackend(t, userroles.Config{})
	fns := r.Functions()
	ctx := context.Background()

	created, err := fns.CreateNewRoleOrAddPermissions(ctx, "admin", []string{"read", "write"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = fns.CreateNewRoleOrAddPermissions(ctx, "admin", []string{"delete"})
	require.NoError(t, err)
	require.False(t, created)

	perms, err := fns.GetPermissionsForRole(ctx, "admin")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"read", "write", "delete"}, perms)

	_, err = fns.CreateNewRoleOrAddPermissions(ctx, "viewer", []string{"read"})
	require.NoError(t, err)

	roles, err := fns.GetRolesThatHavePermission(ctx, "read")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin", "viewer"}, roles)

	require.NoError(t, fns.RemovePermissionsFromRole(ctx, "admin", []string{"delete"}))
	perms, err = fns.GetPermissionsForRole(ctx, "admin")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"read", "write"}, perms)

	_, err = fns.GetPermissionsForRole(ctx, "ghost")
	require.ErrorIs(t, err, userroles.ErrUnknownRole)
	require.ErrorIs(t, fns.RemovePermissionsFromRole(ctx, "ghost", nil), userroles.ErrUnknownRole)

	all, err := fns.GetAllRoles(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin", "viewer"}, all)

	existed, err := fns.DeleteRole(ctx, "viewer")
	require.NoError(t, err)
	require.True(t, existed)
	existed, err = fns.DeleteRole(ctx, "viewer")
	require.NoError(t, err)
	require.False(t, existed)
}

func TestUserRoles(t *testing.T) {
	t.Parallel()

	_, r := newBackend(t, userroles.Config{})
	fns := r.Functions()
	ctx := context.Background()

	_, err := fns.AddRoleToUser(ctx, "public", "alice", "admin")
	require.ErrorIs(t, err, userroles.ErrUnknownRole)

	_, err = fns.CreateNewRoleOrAddPermissions(ctx, "admin", nil)
	require.NoError(t, err)

	had, err := fns.AddRoleToUser(ctx, "public", "alice", "admin")
	require.NoError(t, err)
	require.False(t, had)
	had, err = fns.AddRoleToUser(ctx, "public", "alice", "admin")
	require.NoError(t, err)
	require.True(t, had)

	roles, err := fns.GetRolesForUser(ctx, "public", "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"admin"}, roles)

	// Role assignments are per tenant.
	roles, err = fns.GetRolesForUser(ctx, "other", "alice")
	require.NoError(t, err)
	require.Empty(t, roles)

	users, err := fns.GetUsersThatHaveRole(ctx, "public", "admin")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, users)

	_, err = fns.GetUsersThatHaveRole(ctx, "public", "ghost")
	require.ErrorIs(t, err, userroles.ErrUnknownRole)

	had, err = fns.RemoveUserRole(ctx, "public", "alice", "admin")
	require.NoError(t, err)
	require.True(t, had)
	had, err = fns.RemoveUserRole(ctx, "public", "alice", "admin")
	require.NoError(t, err)
	require.False(t, had)
}

func TestRoleClaims(t *testing.T) {
	t.Parallel()

	b, r := newBackend(t, userroles.Config{})
	fns := r.Functions()
	ctx := context.Background()

	_, err := fns.CreateNewRoleOrAddPermissions(ctx, "admin", []string{"write", "read"})
	require.NoError(t, err)
	_, err = fns.CreateNewRoleOrAddPermissions(ctx, "viewer", []string{"read"})
	require.NoError(t, err)
	_, err = fns.AddRoleToUser(ctx, "public", "alice", "admin")
	require.NoError(t, err)
	_, err = fns.AddRoleToUser(ctx, "public", "alice", "viewer")
	require.NoError(t, err)

	tk := b.CreateSession(t, "alice", nil)
	resp := b.Call(t, http.MethodGet, "/me", tk, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	payload := resp.Body["payload"].(map[string]any)

	roles, ok := r.RoleClaim().Value(payload)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"admin", "viewer"}, roles)

	perms, ok := r.PermissionClaim().Value(payload)
	require.True(t, ok)
	require.Equal(t, []string{"read", "write"}, perms, "permissions are deduplicated and sorted")

	require.True(t, r.RoleClaim().Includes("admin").Validate(payload).IsValid)
	require.False(t, r.PermissionClaim().Includes("delete").Validate(payload).IsValid)

	// A session of a user without roles carries empty claims.
	tk = b.CreateSession(t, "bob", nil)
	resp = b.Call(t, http.MethodGet, "/me", tk, nil)
	payload = resp.Body["payload"].(map[string]any)
	res := r.RoleClaim().Includes("admin").Validate(payload)
	require.False(t, res.IsValid)
}

func TestSkipAddingClaims(t *testing.T) {
	t.Parallel()

	b, r := newBackend(t, userroles.Config{
		SkipAddingRolesToAccessToken:       true,
		SkipAddingPermissionsToAccessToken: true,
	})

	tk := b.CreateSession(t, "alice", nil)
	resp := b.Call(t, http.MethodGet, "/me", tk, nil)
	payload := resp.Body["payload"].(map[string]any)
	_, ok := payload[userroles.RoleClaimKey]
	require.False(t, ok)
	_, ok = payload[userroles.PermissionClaimKey]
	require.False(t, ok)
	require.Empty(t, r.Routes())
}

func TestFunctionOverride(t *testing.T) {
	t.Parallel()

	core := coretest.Start(t)
	b := coretest.NewBackend(t, core, session.Config{}, userroles.Init(userroles.Config{
		Override: userroles.Overrides{
			Functions: func(original userroles.RecipeInterface) userroles.RecipeInterface {
				original.GetRolesForUser = func(ctx context.Context, tenantID, userID string) ([]string, error) {
					return []string{"everyone"}, nil
				}
				original.GetPermissionsForRole = func(ctx context.Context, role string) ([]string, error) {
					return []string{"ping"}, nil
				}
				return original
			},
		},
	}))
	r := b.App.Recipe(userroles.RecipeID).(*userroles.Recipe)

	tk := b.CreateSession(t, "alice", nil)
	resp := b.Call(t, http.MethodGet, "/me", tk, nil)
	payload := resp.Body["payload"].(map[string]any)

	roles, _ := r.RoleClaim().Value(payload)
	require.Equal(t, []string{"everyone"}, roles)
	perms, _ := r.PermissionClaim().Value(payload)
	require.Equal(t, []string{"ping"}, perms)
}
