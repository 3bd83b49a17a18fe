package httpapi

import (
	"net/http"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/auth"
	"covena.org/internal/directory"
)

type createUserRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	AssociationID string `json:"association_id"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, directory.PermManageUsers) {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.provisioner.CreateUserWithProfile(r.Context(), directory.CreateUserInput{
		Email:         req.Email,
		Password:      req.Password,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		AssociationID: req.AssociationID,
	})
	if err != nil {
		handleProvisionError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+result.Identity.ID)
	writeJSON(w, http.StatusCreated, result)
}

// handleUserResource routes DELETE /v1/users/{id} plus role assignment
// sub-resources under /v1/users/{id}/assignments.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.deleteUser(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "assignments":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assignRole(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "assignments":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeRoleAssignment(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request, identityID string) {
	if !a.ensurePermissions(w, r, directory.PermManageUsers) {
		return
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.ID == identityID {
		writeError(w, r, http.StatusBadRequest, "cannot delete own account")
		return
	}
	if err := a.provisioner.DeleteUser(r.Context(), identityID); err != nil {
		handleProvisionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, identityID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var assignedBy string
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		assignedBy = identity.ID
	}
	assignment, err := a.directory.AssignRole(r.Context(), identityID, req.RoleID, assignedBy)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.assign", map[string]any{
		"identity_id": identityID,
		"role_id":     assignment.RoleID,
	})
	writeJSON(w, http.StatusCreated, assignment)
}

func (a *API) removeRoleAssignment(w http.ResponseWriter, r *http.Request, identityID, roleID string) {
	if !a.ensurePermissions(w, r, directory.PermManageRoles) {
		return
	}
	if err := a.directory.RemoveRoleAssignment(r.Context(), identityID, roleID); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.role.unassign", map[string]any{
		"identity_id": identityID,
		"role_id":     roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleProvisionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isAnyInvalidInput(err):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case isAnyConflict(err):
		writeError(w, r, http.StatusConflict, err.Error())
	case isAnyNotFound(err):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
