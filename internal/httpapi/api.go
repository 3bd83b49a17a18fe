// Package httpapi exposes the REST surface: authentication, session
// resolution and association switching, association and violation CRUD,
// privileged user provisioning, and role management.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"covena.org/internal/auth"
	"covena.org/internal/diag"
	"covena.org/internal/directory"
	"covena.org/internal/obs"
	"covena.org/internal/session"
	"covena.org/internal/violation"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the services the API fronts.
type Deps struct {
	Auth        *auth.Service
	Directory   *directory.Service
	Provisioner *directory.Provisioner
	Violations  *violation.Service
	Resolver    *session.Resolver
	Switcher    *session.Switcher
	Sink        diag.Sink
	ReadyProbe  ReadyProbe
	Version     string
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	auth        *auth.Service
	directory   *directory.Service
	provisioner *directory.Provisioner
	violations  *violation.Service
	resolver    *session.Resolver
	switcher    *session.Switcher
	sink        diag.Sink
	readyProbe  ReadyProbe
	version     string

	rateBurst  int
	ratePerSec int
}

func New(deps Deps) *API {
	a := &API{
		mux:         http.NewServeMux(),
		auth:        deps.Auth,
		directory:   deps.Directory,
		provisioner: deps.Provisioner,
		violations:  deps.Violations,
		resolver:    deps.Resolver,
		switcher:    deps.Switcher,
		sink:        deps.Sink,
		readyProbe:  deps.ReadyProbe,
		version:     deps.Version,
		rateBurst:   50,
		ratePerSec:  25,
	}
	if a.sink == nil {
		a.sink = diag.Discard
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignUp)
	a.mux.HandleFunc("/v1/auth/signin", a.handleSignIn)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/signout", a.handleSignOut)

	// session
	a.mux.HandleFunc("/v1/session", a.handleSession)
	a.mux.HandleFunc("/v1/session/association", a.handleSessionAssociation)

	// directory + violations
	a.mux.HandleFunc("/v1/associations", a.handleAssociationsCollection)
	a.mux.HandleFunc("/v1/associations/", a.handleAssociationResource)
	a.mux.HandleFunc("/v1/violations", a.handleViolationsCollection)
	a.mux.HandleFunc("/v1/violations/", a.handleViolationResource)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = LoggingJSON(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = RequestID(h)
	return h
}
