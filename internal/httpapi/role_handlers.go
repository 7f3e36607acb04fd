package httpapi

import (
	"net/http"
	"strings"

	"vendara.org/internal/audit"
	"vendara.org/internal/rbac"
)

type createRoleRequest struct {
	Name        string             `json:"name"`
	Scope       string             `json:"scope"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

type updateRoleRequest struct {
	DisplayName *string            `json:"display_name"`
	Description *string            `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRole(w, r)
	case http.MethodGet:
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "roles", "create") {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.registry.Create(r.Context(), req.Name, req.DisplayName, req.Description, rbac.Scope(req.Scope), req.Permissions)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
		"scope":   string(role.Scope),
	})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "roles", "read") {
		return
	}
	scope := rbac.Scope(strings.TrimSpace(r.URL.Query().Get("scope")))
	roles, err := a.registry.List(r.Context(), scope)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

// handleRoleResource routes /v1/roles/{scope}/{name} and the activation
// subresources /v1/roles/{scope}/{name}/activate|deactivate.
func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	scope := rbac.Scope(parts[0])
	name := parts[1]

	if len(parts) == 3 {
		a.setRoleActive(w, r, name, scope, parts[2])
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getRole(w, r, name, scope)
	case http.MethodPatch:
		a.updateRole(w, r, name, scope)
	case http.MethodDelete:
		a.deleteRole(w, r, name, scope)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request, name string, scope rbac.Scope) {
	if !a.ensurePermission(w, r, "roles", "read") {
		return
	}
	role, err := a.registry.Find(r.Context(), name, scope)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request, name string, scope rbac.Scope) {
	if !a.ensurePermission(w, r, "roles", "update") {
		return
	}
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.registry.Update(r.Context(), name, scope, rbac.RoleUpdate{
		DisplayName: req.DisplayName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{
		"role_id": role.ID,
		"name":    role.Name,
		"scope":   string(role.Scope),
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request, name string, scope rbac.Scope) {
	if !a.ensurePermission(w, r, "roles", "delete") {
		return
	}
	if err := a.registry.Delete(r.Context(), name, scope); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{
		"name":  name,
		"scope": string(scope),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

func (a *API) setRoleActive(w http.ResponseWriter, r *http.Request, name string, scope rbac.Scope, verb string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, "roles", "update") {
		return
	}
	var err error
	switch verb {
	case "activate":
		err = a.registry.Activate(r.Context(), name, scope)
	case "deactivate":
		err = a.registry.Deactivate(r.Context(), name, scope)
	default:
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role."+verb+"d", map[string]any{
		"name":  name,
		"scope": string(scope),
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": verb + "d"})
}
