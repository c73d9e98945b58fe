package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabsession/internal/core/store"
)

var ErrUnknownRole = errors.New("unknown role")

// RolesService manages roles, their permissions and per-tenant user
// assignments.
type RolesService struct {
	Store store.Store
}

// CreateOrUpdateRole defines role if needed and adds permissions to it.
func (s *RolesService) CreateOrUpdateRole(ctx context.Context, role string, permissions []string) (created bool, err error) {
	if role == "" {
		return false, fmt.Errorf("%w: role is required", ErrBadRequest)
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		switch err := tx.Roles().CreateRole(ctx, role, time.Now()); {
		case err == nil:
			created = true
		case !errors.Is(err, store.ErrAlreadyExists):
			return err
		}
		return tx.Roles().AddPermissions(ctx, role, permissions)
	})
	return created, err
}

// DeleteRole reports whether the role existed.
func (s *RolesService) DeleteRole(ctx context.Context, role string) (bool, error) {
	var existed bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		err := tx.Roles().DeleteRole(ctx, role)
		switch {
		case err == nil:
			existed = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return nil
	})
	return existed, err
}

func (s *RolesService) ListRoles(ctx context.Context) ([]string, error) {
	return s.Store.Roles().ListRoles(ctx)
}

func (s *RolesService) GetPermissions(ctx context.Context, role string) ([]string, error) {
	if err := s.requireRole(ctx, s.Store, role); err != nil {
		return nil, err
	}
	return s.Store.Roles().ListPermissions(ctx, role)
}

// RemovePermissions removes the given permissions, or all of them when the
// list is empty.
func (s *RolesService) RemovePermissions(ctx context.Context, role string, permissions []string) error {
	if err := s.requireRole(ctx, s.Store, role); err != nil {
		return err
	}
	return s.Store.Roles().RemovePermissions(ctx, role, permissions)
}

func (s *RolesService) RolesWithPermission(ctx context.Context, permission string) ([]string, error) {
	return s.Store.Roles().ListRolesWithPermission(ctx, permission)
}

// AddRoleToUser reports whether the user already had the role.
func (s *RolesService) AddRoleToUser(ctx context.Context, tenantID, userID, role string) (alreadyHad bool, err error) {
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.requireRole(ctx, tx, role); err != nil {
			return err
		}
		err := tx.Roles().AddUserRole(ctx, tenantID, userID, role)
		if errors.Is(err, store.ErrAlreadyExists) {
			alreadyHad = true
			return nil
		}
		return err
	})
	return alreadyHad, err
}

// RemoveRoleFromUser reports whether the user had the role.
func (s *RolesService) RemoveRoleFromUser(ctx context.Context, tenantID, userID, role string) (had bool, err error) {
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.requireRole(ctx, tx, role); err != nil {
			return err
		}
		err := tx.Roles().RemoveUserRole(ctx, tenantID, userID, role)
		switch {
		case err == nil:
			had = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		return nil
	})
	return had, err
}

func (s *RolesService) UserRoles(ctx context.Context, tenantID, userID string) ([]string, error) {
	return s.Store.Roles().ListUserRoles(ctx, tenantID, userID)
}

func (s *RolesService) UsersWithRole(ctx context.Context, tenantID, role string) ([]string, error) {
	if err := s.requireRole(ctx, s.Store, role); err != nil {
		return nil, err
	}
	return s.Store.Roles().ListUsersWithRole(ctx, tenantID, role)
}

func (s *RolesService) requireRole(ctx context.Context, st store.Store, role string) error {
	ok, err := st.Roles().RoleExists(ctx, role)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownRole
	}
	return nil
}
