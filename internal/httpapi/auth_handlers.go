package httpapi

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"covena.org/internal/audit"
	"covena.org/internal/auth"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	TokenPair auth.TokenPair `json:"tokens"`
	Identity  auth.Identity  `json:"identity"`
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(req.Email)); err != nil {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	identity, err := a.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"identity_id": identity.ID,
		"email":       identity.Email,
	})
	writeJSON(w, http.StatusCreated, identity)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, identity, err := a.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.signin", map[string]any{
		"identity_id": identity.ID,
	})
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, Identity: identity})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	pair, identity, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{TokenPair: pair, Identity: identity})
}

// handleSignOut revokes refresh tokens and clears the persisted
// association pointer unconditionally.
func (a *API) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.auth.SignOut(r.Context(), identity.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "sign-out failed")
		return
	}
	if sc, ok := SessionFromContext(r.Context()); ok {
		a.switcher.SignOut(r.Context(), sc)
	}
	_ = audit.LogEvent(r.Context(), "auth.signout", map[string]any{
		"identity_id": identity.ID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
