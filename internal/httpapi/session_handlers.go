package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/session"
)

type sessionResponse struct {
	*session.Context
	Permissions []string `json:"permissions"`
}

type switchAssociationRequest struct {
	AssociationID string `json:"association_id"`
}

// handleSession returns the resolved session context. Absent-data states
// (profile_missing, tenant_missing) are 200 responses with the state set,
// not errors.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Context: sc, Permissions: sc.Permissions()})
}

func (a *API) handleSessionAssociation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	sc, ok := a.requireReadySession(w, r)
	if !ok {
		return
	}
	var req switchAssociationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	associationID := strings.TrimSpace(req.AssociationID)
	if associationID == "" {
		writeError(w, r, http.StatusBadRequest, "association_id is required")
		return
	}
	if err := a.switcher.Switch(r.Context(), sc, associationID); err != nil {
		switch {
		case errors.Is(err, session.ErrNotMember):
			writeError(w, r, http.StatusForbidden, "no membership in requested association")
		case errors.Is(err, session.ErrNotReady):
			writeError(w, r, http.StatusForbidden, "session is not ready")
		default:
			writeError(w, r, http.StatusInternalServerError, "association switch failed")
		}
		return
	}
	_ = audit.LogEvent(r.Context(), "session.association.switch", map[string]any{
		"association_id": associationID,
	})
	writeJSON(w, http.StatusOK, sessionResponse{Context: sc, Permissions: sc.Permissions()})
}
