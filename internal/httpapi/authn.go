package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"covena.org/internal/auth"
	"covena.org/internal/session"
)

const (
	authHeader        = "Authorization"
	bearer            = "Bearer "
	associationHeader = "X-Association-ID"
)

var publicPaths = []string{
	"/v1/auth/signup",
	"/v1/auth/signin",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

type sessionContextKey struct{}

// ContextWithSession attaches the resolved session context.
func ContextWithSession(ctx context.Context, sc *session.Context) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sc)
}

// SessionFromContext returns the resolved session context, if any.
func SessionFromContext(ctx context.Context) (*session.Context, bool) {
	if ctx == nil {
		return nil, false
	}
	sc, ok := ctx.Value(sessionContextKey{}).(*session.Context)
	return sc, ok && sc != nil
}

// withAuth verifies the bearer token, resolves the session context, and
// applies a per-request association override from the X-Association-ID
// header. The override gets the same membership validation as a switch
// but is never persisted.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.auth.GetSession(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		sc := a.resolver.Resolve(r.Context(), &identity)

		if override := strings.TrimSpace(r.Header.Get(associationHeader)); override != "" {
			if !sc.IsMember(override) {
				writeError(w, r, http.StatusForbidden, "no membership in requested association")
				return
			}
			scoped := *sc
			scoped.CurrentAssociationID = override
			sc = &scoped
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		ctx = ContextWithSession(ctx, sc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions writes 401/403 and returns false unless the session
// holds at least one of the given permissions.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, permissions ...string) bool {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !sc.HasAnyPermission(permissions...) {
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

// requireReadySession returns the session context or writes the
// appropriate error for non-ready states.
func (a *API) requireReadySession(w http.ResponseWriter, r *http.Request) (*session.Context, bool) {
	sc, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if sc.State != session.StateReady {
		writeError(w, r, http.StatusForbidden, "session is not ready: "+string(sc.State))
		return nil, false
	}
	return sc, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
