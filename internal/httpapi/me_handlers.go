package httpapi

import "net/http"

// handleMe returns the resolved view of the calling user: identity,
// current context, effective role and the organizations they can switch to.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, sessionKey, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	current, err := a.resolver.BuildCurrentUser(r.Context(), identity, sessionKey)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

type switchContextRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (a *API) handleMeContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	identity, sessionKey, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req switchContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.OrganizationID == "" {
		writeError(w, r, http.StatusBadRequest, "organization_id is required")
		return
	}
	if err := a.resolver.SwitchContext(r.Context(), identity, req.OrganizationID, sessionKey); err != nil {
		handleDomainError(w, r, err)
		return
	}
	current, err := a.resolver.BuildCurrentUser(r.Context(), identity, sessionKey)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, current)
}

type permissionCheckRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

func (a *API) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, sessionKey, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req permissionCheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Resource == "" || req.Action == "" {
		writeError(w, r, http.StatusBadRequest, "resource and action are required")
		return
	}
	allowed, err := a.resolver.HasPermission(r.Context(), identity, sessionKey, req.Resource, req.Action)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resource": req.Resource,
		"action":   req.Action,
		"allowed":  allowed,
	})
}
