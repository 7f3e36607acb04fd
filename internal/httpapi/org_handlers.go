package httpapi

import (
	"net/http"
	"strings"
	"time"

	"vendara.org/internal/audit"
	"vendara.org/internal/directory"
	"vendara.org/internal/ids"
)

type createOrganizationRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
	Type   string `json:"type"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createOrganization(w, r)
	case http.MethodGet:
		a.listOrganizations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "organizations", "create") {
		return
	}
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	now := time.Now().UTC()
	org := &directory.Organization{
		ID:        ids.New(),
		Name:      req.Name,
		Domain:    strings.TrimSpace(strings.ToLower(req.Domain)),
		Type:      strings.TrimSpace(req.Type),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.orgs.CreateOrganization(r.Context(), org); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "organization.created", map[string]any{
		"organization_id": org.ID,
		"name":            org.Name,
	})
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "organizations", "read") {
		return
	}
	orgs, err := a.orgs.ListOrganizations(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": orgs})
}

func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, "organizations", "read") {
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	org, err := a.orgs.FindOrganization(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, org)
}
