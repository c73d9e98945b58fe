package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

type rolesRepo struct {
	q *queries
}

func (r *rolesRepo) CreateRole(ctx context.Context, role string, at time.Time) error {
	res, err := r.q.exec(ctx,
		`INSERT INTO roles (role, created_at) VALUES (?, ?) ON CONFLICT (role) DO NOTHING`,
		role, toMillis(at))
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrAlreadyExists)
}

func (r *rolesRepo) RoleExists(ctx context.Context, role string) (bool, error) {
	var n int
	if err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM roles WHERE role = ?`, role).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *rolesRepo) DeleteRole(ctx context.Context, role string) error {
	// Children first so this does not depend on foreign key enforcement.
	if _, err := r.q.exec(ctx, `DELETE FROM user_roles WHERE role = ?`, role); err != nil {
		return err
	}
	if _, err := r.q.exec(ctx, `DELETE FROM role_permissions WHERE role = ?`, role); err != nil {
		return err
	}
	res, err := r.q.exec(ctx, `DELETE FROM roles WHERE role = ?`, role)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]string, error) {
	return r.q.strings(ctx, `SELECT role FROM roles ORDER BY role`)
}

func (r *rolesRepo) AddPermissions(ctx context.Context, role string, permissions []string) error {
	for _, p := range permissions {
		_, err := r.q.exec(ctx, `INSERT INTO role_permissions (role, permission) VALUES (?, ?)
			ON CONFLICT (role, permission) DO NOTHING`, role, p)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *rolesRepo) RemovePermissions(ctx context.Context, role string, permissions []string) error {
	if len(permissions) == 0 {
		_, err := r.q.exec(ctx, `DELETE FROM role_permissions WHERE role = ?`, role)
		return err
	}
	_, err := r.q.exec(ctx,
		`DELETE FROM role_permissions WHERE role = ? AND permission IN (`+placeholders(len(permissions))+`)`,
		stringArgs([]any{role}, permissions)...)
	return err
}

func (r *rolesRepo) ListPermissions(ctx context.Context, role string) ([]string, error) {
	return r.q.strings(ctx,
		`SELECT permission FROM role_permissions WHERE role = ? ORDER BY permission`, role)
}

func (r *rolesRepo) ListRolesWithPermission(ctx context.Context, permission string) ([]string, error) {
	return r.q.strings(ctx,
		`SELECT role FROM role_permissions WHERE permission = ? ORDER BY role`, permission)
}

func (r *rolesRepo) AddUserRole(ctx context.Context, tenantID, userID, role string) error {
	res, err := r.q.exec(ctx, `INSERT INTO user_roles (tenant_id, user_id, role) VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, user_id, role) DO NOTHING`, tenantID, userID, role)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrAlreadyExists)
}

func (r *rolesRepo) RemoveUserRole(ctx context.Context, tenantID, userID, role string) error {
	res, err := r.q.exec(ctx,
		`DELETE FROM user_roles WHERE tenant_id = ? AND user_id = ? AND role = ?`,
		tenantID, userID, role)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *rolesRepo) ListUserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	return r.q.strings(ctx,
		`SELECT role FROM user_roles WHERE tenant_id = ? AND user_id = ? ORDER BY role`, tenantID, userID)
}

func (r *rolesRepo) ListUsersWithRole(ctx context.Context, tenantID, role string) ([]string, error) {
	return r.q.strings(ctx,
		`SELECT user_id FROM user_roles WHERE tenant_id = ? AND role = ? ORDER BY user_id`, tenantID, role)
}
