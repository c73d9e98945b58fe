// Package userroles manages roles and permissions at the core and adds them
// to new sessions as the st-role and st-perm claims.
package userroles

import (
	"context"
	"errors"
	"slices"

	"github.com/aussiebroadwan/tabsession/pkg/claims"
	"github.com/aussiebroadwan/tabsession/pkg/override"
	"github.com/aussiebroadwan/tabsession/pkg/plugin"
	"github.com/aussiebroadwan/tabsession/pkg/sdk"
)

// RecipeID is the id plugins key user roles overrides under.
const RecipeID = "userroles"

// Claim keys.
const (
	RoleClaimKey       = "st-role"
	PermissionClaimKey = "st-perm"
)

// ErrUnknownRole is returned by operations naming a role the core does not
// know.
var ErrUnknownRole = errors.New("userroles: unknown role")

// Overrides are the user's layers, applied after every plugin layer.
type Overrides struct {
	Functions override.Layer[RecipeInterface]
}

// Config configures the recipe.
type Config struct {
	SkipAddingRolesToAccessToken       bool
	SkipAddingPermissionsToAccessToken bool
	// DefaultMaxAgeInSeconds bounds how long role and permission values are
	// trusted by validators. Defaults to 300.
	DefaultMaxAgeInSeconds int64

	Override Overrides
	Now      claims.Clock
}

// RecipeInterface is the recipe's overridable implementation.
type RecipeInterface struct {
	AddRoleToUser                 func(ctx context.Context, tenantID, userID, role string) (alreadyHad bool, err error)
	RemoveUserRole                func(ctx context.Context, tenantID, userID, role string) (had bool, err error)
	GetRolesForUser               func(ctx context.Context, tenantID, userID string) ([]string, error)
	GetUsersThatHaveRole          func(ctx context.Context, tenantID, role string) ([]string, error)
	CreateNewRoleOrAddPermissions func(ctx context.Context, role string, permissions []string) (created bool, err error)
	GetPermissionsForRole         func(ctx context.Context, role string) ([]string, error)
	// RemovePermissionsFromRole removes every permission when permissions
	// is empty.
	RemovePermissionsFromRole  func(ctx context.Context, role string, permissions []string) error
	GetRolesThatHavePermission func(ctx context.Context, permission string) ([]string, error)
	DeleteRole                 func(ctx context.Context, role string) (existed bool, err error)
	GetAllRoles                func(ctx context.Context) ([]string, error)
}

// Recipe is the user roles recipe of one application.
type Recipe struct {
	impl            *RecipeInterface
	roleClaim       *claims.PrimitiveArrayClaim[string]
	permissionClaim *claims.PrimitiveArrayClaim[string]
}

// Init returns the recipe's init func.
func Init(cfg Config) sdk.RecipeInitFunc {
	return func(app *sdk.App) (sdk.Recipe, error) {
		return New(app, cfg)
	}
}

// New builds the recipe and queues its claim registration for post-init.
func New(app *sdk.App, cfg Config) (*Recipe, error) {
	if cfg.DefaultMaxAgeInSeconds == 0 {
		cfg.DefaultMaxAgeInSeconds = 300
	}

	fb := override.New(makeRecipeImplementation(app.Querier()))
	for _, l := range append(plugin.LayersOf[Overrides](app.PluginOverrides(RecipeID)), cfg.Override) {
		fb.Override(l.Functions)
	}
	r := &Recipe{impl: fb.Build()}

	r.roleClaim = claims.NewPrimitiveArrayClaim(claims.ArrayConfig[string]{
		Key:                    RoleClaimKey,
		Fetch:                  r.fetchRoles,
		DefaultMaxAgeInSeconds: cfg.DefaultMaxAgeInSeconds,
		Now:                    cfg.Now,
	})
	r.permissionClaim = claims.NewPrimitiveArrayClaim(claims.ArrayConfig[string]{
		Key:                    PermissionClaimKey,
		Fetch:                  r.fetchPermissions,
		DefaultMaxAgeInSeconds: cfg.DefaultMaxAgeInSeconds,
		Now:                    cfg.Now,
	})

	err := app.AddPostInitCallback(func() error {
		s := app.Session()
		if s == nil {
			return plugin.NewConfigError("userroles: the session recipe is required")
		}
		if !cfg.SkipAddingRolesToAccessToken {
			if err := s.AddClaimFromOtherRecipe(r.roleClaim); err != nil {
				return err
			}
		}
		if !cfg.SkipAddingPermissionsToAccessToken {
			if err := s.AddClaimFromOtherRecipe(r.permissionClaim); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recipe) ID() string { return RecipeID }

// Routes is empty; roles are managed from the backend only.
func (r *Recipe) Routes() []plugin.RouteHandler { return nil }

// Functions returns the composed RecipeInterface.
func (r *Recipe) Functions() *RecipeInterface { return r.impl }

// RoleClaim is the st-role claim. Build validators from it, e.g.
// RoleClaim().Includes("admin").
func (r *Recipe) RoleClaim() *claims.PrimitiveArrayClaim[string] { return r.roleClaim }

// PermissionClaim is the st-perm claim.
func (r *Recipe) PermissionClaim() *claims.PrimitiveArrayClaim[string] { return r.permissionClaim }

func (r *Recipe) fetchRoles(ctx context.Context, userID, _, tenantID string, _ claims.Payload) ([]string, bool, error) {
	roles, err := r.impl.GetRolesForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, false, err
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, true, nil
}

// fetchPermissions is the sorted union of the permissions of every role the
// user has.
func (r *Recipe) fetchPermissions(ctx context.Context, userID, _, tenantID string, _ claims.Payload) ([]string, bool, error) {
	roles, err := r.impl.GetRolesForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, false, err
	}
	seen := make(map[string]struct{})
	perms := []string{}
	for _, role := range roles {
		ps, err := r.impl.GetPermissionsForRole(ctx, role)
		if errors.Is(err, ErrUnknownRole) {
			// Deleted between the two calls.
			continue
		}
		if err != nil {
			return nil, false, err
		}
		for _, p := range ps {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				perms = append(perms, p)
			}
		}
	}
	slices.Sort(perms)
	return perms, true, nil
}
