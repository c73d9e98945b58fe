package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabsession/internal/core/service"
)

const statusUnknownRole = "UNKNOWN_ROLE_ERROR"

type RolesHandler struct {
	RolesService *service.RolesService
}

// writeRolesError answers UNKNOWN_ROLE_ERROR for unknown roles.
func writeRolesError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrUnknownRole) {
		writeOK(w, statusResponse{Status: statusUnknownRole})
		return
	}
	writeError(w, r, err)
}

type roleRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// HandleCreateOrUpdate handles PUT /recipe/role.
func (h *RolesHandler) HandleCreateOrUpdate(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.RolesService.CreateOrUpdateRole(r.Context(), req.Role, req.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status         string `json:"status"`
		CreatedNewRole bool   `json:"createdNewRole"`
	}{StatusOK, created})
}

// HandleDelete handles POST /recipe/role/remove.
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	existed, err := h.RolesService.DeleteRole(r.Context(), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status       string `json:"status"`
		DidRoleExist bool   `json:"didRoleExist"`
	}{StatusOK, existed})
}

// HandleList handles GET /recipe/roles.
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	roles, err := h.RolesService.ListRoles(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, rolesResponse{Status: StatusOK, Roles: roles})
}

type rolesResponse struct {
	Status string   `json:"status"`
	Roles  []string `json:"roles"`
}

type permissionsResponse struct {
	Status      string   `json:"status"`
	Permissions []string `json:"permissions"`
}

// HandleGetPermissions handles GET /recipe/role/permissions?role=.
func (h *RolesHandler) HandleGetPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.RolesService.GetPermissions(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeRolesError(w, r, err)
		return
	}
	writeOK(w, permissionsResponse{Status: StatusOK, Permissions: perms})
}

// HandleRemovePermissions handles POST /recipe/role/permissions/remove.
func (h *RolesHandler) HandleRemovePermissions(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.RolesService.RemovePermissions(r.Context(), req.Role, req.Permissions); err != nil {
		writeRolesError(w, r, err)
		return
	}
	writeOK(w, statusResponse{Status: StatusOK})
}

// HandleRolesWithPermission handles GET /recipe/permission/roles?permission=.
func (h *RolesHandler) HandleRolesWithPermission(w http.ResponseWriter, r *http.Request) {
	roles, err := h.RolesService.RolesWithPermission(r.Context(), r.URL.Query().Get("permission"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, rolesResponse{Status: StatusOK, Roles: roles})
}

type userRoleRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// HandleAddUserRole handles PUT /{tenant}/recipe/user/role.
func (h *RolesHandler) HandleAddUserRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !decode(w, r, &req) {
		return
	}
	had, err := h.RolesService.AddRoleToUser(r.Context(), tenantID(r), req.UserID, req.Role)
	if err != nil {
		writeRolesError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status                 string `json:"status"`
		DidUserAlreadyHaveRole bool   `json:"didUserAlreadyHaveRole"`
	}{StatusOK, had})
}

// HandleRemoveUserRole handles POST /{tenant}/recipe/user/role/remove.
func (h *RolesHandler) HandleRemoveUserRole(w http.ResponseWriter, r *http.Request) {
	var req userRoleRequest
	if !decode(w, r, &req) {
		return
	}
	had, err := h.RolesService.RemoveRoleFromUser(r.Context(), tenantID(r), req.UserID, req.Role)
	if err != nil {
		writeRolesError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status          string `json:"status"`
		DidUserHaveRole bool   `json:"didUserHaveRole"`
	}{StatusOK, had})
}

// HandleUserRoles handles GET /{tenant}/recipe/user/roles?userId=.
func (h *RolesHandler) HandleUserRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.RolesService.UserRoles(r.Context(), tenantID(r), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, rolesResponse{Status: StatusOK, Roles: roles})
}

// HandleUsersWithRole handles GET /{tenant}/recipe/role/users?role=.
func (h *RolesHandler) HandleUsersWithRole(w http.ResponseWriter, r *http.Request) {
	users, err := h.RolesService.UsersWithRole(r.Context(), tenantID(r), r.URL.Query().Get("role"))
	if err != nil {
		writeRolesError(w, r, err)
		return
	}
	writeOK(w, struct {
		Status string   `json:"status"`
		Users  []string `json:"users"`
	}{StatusOK, users})
}
