// Package httpapi is the HTTP surface over the role registry, the
// membership ledger and the authorization resolver.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vendara.org/internal/authz"
	"vendara.org/internal/directory"
	"vendara.org/internal/membership"
	"vendara.org/internal/obs"
	"vendara.org/internal/rbac"
	"vendara.org/internal/session"
)

// ReadyProbe pings the backing database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API wires handlers, middleware and collaborators.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	resolver *authz.Resolver
	registry *rbac.Registry
	ledger   *membership.Ledger
	orgs     directory.Store
	bridge   *IdentityBridge

	rateBurst  int
	ratePerSec int
}

// New constructs the API. A nil bridge disables authentication, which is
// only acceptable in tests.
func New(rp ReadyProbe, version string, resolver *authz.Resolver, registry *rbac.Registry, ledger *membership.Ledger, orgs directory.Store, bridge *IdentityBridge) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		resolver:   resolver,
		registry:   registry,
		ledger:     ledger,
		orgs:       orgs,
		bridge:     bridge,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/me/context", a.handleMeContext)
	a.mux.HandleFunc("/v1/me/permissions/check", a.handlePermissionCheck)

	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	a.mux.HandleFunc("/v1/memberships", a.handleMemberships)
	a.mux.HandleFunc("/v1/memberships/", a.handleMembershipTransition)

	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withIdentity(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "vendara-authz",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "vendara-authz",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error":      msg,
		"request_id": requestIDFrom(r.Context()),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// handleDomainError maps the shared error taxonomy onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrNotFound),
		errors.Is(err, membership.ErrNotFound),
		errors.Is(err, directory.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrDuplicateRole),
		errors.Is(err, membership.ErrDuplicateMembership),
		errors.Is(err, directory.ErrDuplicate):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrImmutable),
		errors.Is(err, membership.ErrInvalidTransition):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, rbac.ErrInvalidInput),
		errors.Is(err, membership.ErrInvalidInput),
		errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, authz.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, "user does not have access to this organization")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
