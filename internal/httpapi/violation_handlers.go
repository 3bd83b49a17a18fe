package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/directory"
	"covena.org/internal/violation"
)

type reportViolationRequest struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateViolationRequest struct {
	Category    *string `json:"category"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (a *API) handleViolationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listViolations(w, r)
	case http.MethodPost:
		a.reportViolation(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleViolationResource routes /v1/violations/{id} and
// /v1/violations/{id}/{resolve|dismiss|reopen|start}.
func (a *API) handleViolationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/violations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			a.getViolation(w, r, parts[0])
		case http.MethodPut:
			a.updateViolation(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
		}
	case 2:
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transitionViolation(w, r, parts[0], parts[1])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listViolations(w http.ResponseWriter, r *http.Request) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermViewViolations, directory.PermManageViolations) {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := parsePositiveInt(r.URL.Query().Get("offset"), 0, 0, 1<<30)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	items, err := a.violations.List(r.Context(), sc.CurrentAssociationID, violation.ListFilter{
		Status:   strings.TrimSpace(r.URL.Query().Get("status")),
		Category: strings.TrimSpace(strings.ToLower(r.URL.Query().Get("category"))),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		handleViolationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":          items,
		"association_id": sc.CurrentAssociationID,
	})
}

func (a *API) reportViolation(w http.ResponseWriter, r *http.Request) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermViewViolations, directory.PermManageViolations) {
		return
	}
	var req reportViolationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.violations.Report(r.Context(), sc.CurrentAssociationID, sc.Profile.ID, req.Category, req.Title, req.Description)
	if err != nil {
		handleViolationError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "violation.report", map[string]any{
		"violation_id":   v.ID,
		"association_id": v.AssociationID,
		"category":       v.Category,
	})
	w.Header().Set("Location", "/v1/violations/"+v.ID)
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) getViolation(w http.ResponseWriter, r *http.Request, id string) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermViewViolations, directory.PermManageViolations) {
		return
	}
	v, err := a.violations.Get(r.Context(), sc.CurrentAssociationID, id)
	if err != nil {
		handleViolationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) updateViolation(w http.ResponseWriter, r *http.Request, id string) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermManageViolations) {
		return
	}
	var req updateViolationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.violations.Update(r.Context(), sc.CurrentAssociationID, id, violation.Update{
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		handleViolationError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "violation.update", map[string]any{
		"violation_id": v.ID,
	})
	writeJSON(w, http.StatusOK, v)
}

func (a *API) transitionViolation(w http.ResponseWriter, r *http.Request, id, action string) {
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	if !a.ensurePermissions(w, r, directory.PermManageViolations) {
		return
	}
	var (
		v   violation.Violation
		err error
	)
	switch action {
	case "start":
		v, err = a.violations.Start(r.Context(), sc.CurrentAssociationID, id)
	case "resolve":
		v, err = a.violations.Resolve(r.Context(), sc.CurrentAssociationID, id, sc.Profile.ID)
	case "dismiss":
		v, err = a.violations.Dismiss(r.Context(), sc.CurrentAssociationID, id, sc.Profile.ID)
	case "reopen":
		v, err = a.violations.Reopen(r.Context(), sc.CurrentAssociationID, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if err != nil {
		handleViolationError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "violation."+action, map[string]any{
		"violation_id": v.ID,
		"status":       v.Status,
	})
	writeJSON(w, http.StatusOK, v)
}

func handleViolationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, violation.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, violation.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, violation.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
