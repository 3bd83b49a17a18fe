package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/auth"
	"covena.org/internal/directory"
)

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Permissions   []string `json:"permissions"`
	System        bool     `json:"system"`
	AssociationID string   `json:"association_id"`
}

type updateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r)
	case http.MethodPost:
		a.createRole(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleRoleResource routes /v1/roles/{id} and /v1/roles/{id}/permissions.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getRole(w, r, parts[0])
		case http.MethodPut:
			a.updateRole(w, r, parts[0])
		case http.MethodDelete:
			a.deleteRole(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		a.setRolePermissions(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// listRoles scopes to the current association unless the caller manages
// roles globally and asks for everything with ?scope=all.
func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermManageRoles, directory.PermViewMembers) {
		return
	}
	associationID := sc.CurrentAssociationID
	if r.URL.Query().Get("scope") == "all" && sc.HasPermission(directory.PermManageRoles) {
		associationID = ""
	}
	roles, err := a.directory.ListRoles(r.Context(), associationID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.directory.CreateRole(r.Context(), directory.Role{
		Name:          req.Name,
		Description:   req.Description,
		Permissions:   req.Permissions,
		System:        req.System,
		AssociationID: req.AssociationID,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.create", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
	})
	w.Header().Set("Location", "/v1/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles, directory.PermViewMembers) {
		return
	}
	role, err := a.directory.GetRole(r.Context(), roleID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.directory.UpdateRole(r.Context(), roleID, directory.RoleUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.update", map[string]any{
		"role_id": role.ID,
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	if err := a.directory.DeleteRole(r.Context(), roleID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.delete", map[string]any{
		"role_id": roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setRolePermissions(w http.ResponseWriter, r *http.Request, roleID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.directory.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.permissions.update", map[string]any{
		"role_id": roleID,
		"count":   len(req.Permissions),
	})
	w.WriteHeader(http.StatusNoContent)
}

func isAnyInvalidInput(err error) bool {
	return errors.Is(err, directory.ErrInvalidInput) || errors.Is(err, auth.ErrInvalidInput)
}

func isAnyConflict(err error) bool {
	return errors.Is(err, directory.ErrConflict) || errors.Is(err, auth.ErrConflict)
}

func isAnyNotFound(err error) bool {
	return errors.Is(err, directory.ErrNotFound) || errors.Is(err, auth.ErrNotFound)
}
