package userroles

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/querier"
)

type coreStatus struct {
	Status string `json:"status"`
}

// check maps a core status to an error.
func (c coreStatus) check(op string) error {
	switch c.Status {
	case "OK":
		return nil
	case "UNKNOWN_ROLE_ERROR":
		return ErrUnknownRole
	default:
		return fmt.Errorf("userroles: %s: unexpected status %q", op, c.Status)
	}
}

func makeRecipeImplementation(q querier.Querier) func(self *RecipeInterface) RecipeInterface {
	return func(self *RecipeInterface) RecipeInterface {
		return RecipeInterface{
			AddRoleToUser: func(ctx context.Context, tenantID, userID, role string) (bool, error) {
				var resp struct {
					coreStatus
					DidUserAlreadyHaveRole bool `json:"didUserAlreadyHaveRole"`
				}
				err := q.SendPutRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/role"), map[string]any{
					"userId": userID,
					"role":   role,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.DidUserAlreadyHaveRole, resp.check("add role to user")
			},

			RemoveUserRole: func(ctx context.Context, tenantID, userID, role string) (bool, error) {
				var resp struct {
					coreStatus
					DidUserHaveRole bool `json:"didUserHaveRole"`
				}
				err := q.SendPostRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/role/remove"), map[string]any{
					"userId": userID,
					"role":   role,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.DidUserHaveRole, resp.check("remove user role")
			},

			GetRolesForUser: func(ctx context.Context, tenantID, userID string) ([]string, error) {
				var resp struct {
					coreStatus
					Roles []string `json:"roles"`
				}
				err := q.SendGetRequest(ctx, querier.TenantPath(tenantID, "/recipe/user/roles"), url.Values{"userId": {userID}}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.Roles, resp.check("get roles for user")
			},

			GetUsersThatHaveRole: func(ctx context.Context, tenantID, role string) ([]string, error) {
				var resp struct {
					coreStatus
					Users []string `json:"users"`
				}
				err := q.SendGetRequest(ctx, querier.TenantPath(tenantID, "/recipe/role/users"), url.Values{"role": {role}}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.Users, resp.check("get users that have role")
			},

			CreateNewRoleOrAddPermissions: func(ctx context.Context, role string, permissions []string) (bool, error) {
				if permissions == nil {
					permissions = []string{}
				}
				var resp struct {
					coreStatus
					CreatedNewRole bool `json:"createdNewRole"`
				}
				err := q.SendPutRequest(ctx, "/recipe/role", map[string]any{
					"role":        role,
					"permissions": permissions,
				}, &resp)
				if err != nil {
					return false, err
				}
				return resp.CreatedNewRole, resp.check("create role")
			},

			GetPermissionsForRole: func(ctx context.Context, role string) ([]string, error) {
				var resp struct {
					coreStatus
					Permissions []string `json:"permissions"`
				}
				err := q.SendGetRequest(ctx, "/recipe/role/permissions", url.Values{"role": {role}}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.Permissions, resp.check("get permissions for role")
			},

			RemovePermissionsFromRole: func(ctx context.Context, role string, permissions []string) error {
				var resp coreStatus
				err := q.SendPostRequest(ctx, "/recipe/role/permissions/remove", map[string]any{
					"role":        role,
					"permissions": permissions,
				}, &resp)
				if err != nil {
					return err
				}
				return resp.check("remove permissions from role")
			},

			GetRolesThatHavePermission: func(ctx context.Context, permission string) ([]string, error) {
				var resp struct {
					coreStatus
					Roles []string `json:"roles"`
				}
				err := q.SendGetRequest(ctx, "/recipe/permission/roles", url.Values{"permission": {permission}}, &resp)
				if err != nil {
					return nil, err
				}
				return resp.Roles, resp.check("get roles that have permission")
			},

			DeleteRole: func(ctx context.Context, role string) (bool, error) {
				var resp struct {
					coreStatus
					DidRoleExist bool `json:"didRoleExist"`
				}
				err := q.SendPostRequest(ctx, "/recipe/role/remove", map[string]any{"role": role}, &resp)
				if err != nil {
					return false, err
				}
				return resp.DidRoleExist, resp.check("delete role")
			},

			GetAllRoles: func(ctx context.Context) ([]string, error) {
				var resp struct {
					coreStatus
					Roles []string `json:"roles"`
				}
				if err := q.SendGetRequest(ctx, "/recipe/roles", nil, &resp); err != nil {
					return nil, err
				}
				return resp.Roles, resp.check("get all roles")
			},
		}
	}
}
