package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/directory"
)

type createAssociationRequest struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

type updateAssociationRequest struct {
	Name         *string `json:"name"`
	Abbreviation *string `json:"abbreviation"`
	Street       *string `json:"street"`
	City         *string `json:"city"`
	State        *string `json:"state"`
	Zip          *string `json:"zip"`
	ContactEmail *string `json:"contact_email"`
	ContactPhone *string `json:"contact_phone"`
}

func (a *API) handleAssociationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listAssociations(w, r)
	case http.MethodPost:
		a.createAssociation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAssociationResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/associations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getAssociation(w, r, id)
	case http.MethodPut:
		a.updateAssociation(w, r, id)
	case http.MethodDelete:
		a.deleteAssociation(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// listAssociations requires only an authenticated, ready session: every
// member may see the associations they could belong to by name.
func (a *API) listAssociations(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireReadySession(w, r); !ok {
		return
	}
	associations, err := a.directory.ListAssociations(r.Context())
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": associations})
}

func (a *API) createAssociation(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermissions(w, r, directory.PermManageAssociations) {
		return
	}
	var req createAssociationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assoc, err := a.directory.CreateAssociation(r.Context(), directory.Association{
		Name:         req.Name,
		Abbreviation: req.Abbreviation,
		Street:       req.Street,
		City:         req.City,
		State:        req.State,
		Zip:          req.Zip,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.association.create", map[string]any{
		"association_id": assoc.ID,
		"name":           assoc.Name,
	})
	w.Header().Set("Location", "/v1/associations/"+assoc.ID)
	writeJSON(w, http.StatusCreated, assoc)
}

func (a *API) getAssociation(w http.ResponseWriter, r *http.Request, id string) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !sc.IsMember(id) && !sc.HasPermission(directory.PermManageAssociations) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return
	}
	assoc, err := a.directory.GetAssociation(r.Context(), id)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assoc)
}

func (a *API) updateAssociation(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensurePermissions(w, r, directory.PermManageAssociations) {
		return
	}
	var req updateAssociationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	assoc, err := a.directory.UpdateAssociation(r.Context(), id, directory.AssociationUpdate{
		Name:         req.Name,
		Abbreviation: req.Abbreviation,
		Street:       req.Street,
		City:         req.City,
		State:        req.State,
		Zip:          req.Zip,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	})
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.association.update", map[string]any{
		"association_id": assoc.ID,
	})
	writeJSON(w, http.StatusOK, assoc)
}

func (a *API) deleteAssociation(w http.ResponseWriter, r *http.Request, id string) {
	if !a.ensurePermissions(w, r, directory.PermManageAssociations) {
		return
	}
	if err := a.directory.DeleteAssociation(r.Context(), id); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "directory.association.delete", map[string]any{
		"association_id": id,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
