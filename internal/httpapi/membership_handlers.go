package httpapi

import (
	"net/http"
	"strings"

	"vendara.org/internal/audit"
	"vendara.org/internal/authz"
	"vendara.org/internal/ids"
	"vendara.org/internal/membership"
)

type refPayload struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (p refPayload) ref() membership.EntityRef {
	return membership.EntityRef{Type: membership.EntityType(p.Type), ID: p.ID}
}

type inviteRequest struct {
	Member  refPayload `json:"member"`
	Target  refPayload `json:"target"`
	RoleID  string     `json:"role_id"`
	Message string     `json:"message"`
}

type pairRequest struct {
	Member refPayload `json:"member"`
	Target refPayload `json:"target"`
}

type updateMembershipRoleRequest struct {
	Member refPayload `json:"member"`
	Target refPayload `json:"target"`
	RoleID string     `json:"role_id"`
}

func (a *API) handleMemberships(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.inviteMembership(w, r)
	case http.MethodGet:
		a.listMemberships(w, r)
	case http.MethodPut:
		a.updateMembershipRole(w, r)
	case http.MethodDelete:
		a.deleteMembership(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) inviteMembership(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	if !a.ensurePermission(w, r, "members", "invite") {
		return
	}
	var req inviteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !ids.IsValid(req.RoleID) {
		writeError(w, r, http.StatusBadRequest, "role_id is not a valid identifier")
		return
	}
	m, err := a.ledger.Invite(r.Context(), membership.InviteRequest{
		Member:    req.Member.ref(),
		Target:    req.Target.ref(),
		RoleID:    req.RoleID,
		InvitedBy: identity.ID,
		Message:   req.Message,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.invited", map[string]any{
		"membership_id": m.ID,
		"member":        m.Member,
		"target":        m.Target,
		"role_id":       m.RoleID,
	})
	writeJSON(w, http.StatusCreated, m)
}

// listMemberships serves both directions of the ledger: ?member_type=&member_id=
// lists everything a member belongs to, ?target_type=&target_id= lists everyone
// inside a target. active=true narrows the member direction to live rows.
func (a *API) listMemberships(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "members", "read") {
		return
	}
	q := r.URL.Query()
	memberType := strings.TrimSpace(q.Get("member_type"))
	memberID := strings.TrimSpace(q.Get("member_id"))
	targetType := strings.TrimSpace(q.Get("target_type"))
	targetID := strings.TrimSpace(q.Get("target_id"))

	switch {
	case memberID != "" && memberType != "":
		member := membership.EntityRef{Type: membership.EntityType(memberType), ID: memberID}
		var (
			out []*membership.Membership
			err error
		)
		if q.Get("active") == "true" {
			out, err = a.ledger.GetActiveByMember(r.Context(), member, membership.EntityType(targetType))
		} else {
			out, err = a.ledger.GetByMember(r.Context(), member, membership.EntityType(targetType))
		}
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memberships": out})
	case targetID != "" && targetType != "":
		target := membership.EntityRef{Type: membership.EntityType(targetType), ID: targetID}
		out, err := a.ledger.GetByTarget(r.Context(), target)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memberships": out})
	default:
		writeError(w, r, http.StatusBadRequest, "either member_type/member_id or target_type/target_id is required")
	}
}

func (a *API) updateMembershipRole(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "members", "update") {
		return
	}
	var req updateMembershipRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !ids.IsValid(req.RoleID) {
		writeError(w, r, http.StatusBadRequest, "role_id is not a valid identifier")
		return
	}
	m, err := a.ledger.UpdateRole(r.Context(), req.Member.ref(), req.Target.ref(), req.RoleID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.role_changed", map[string]any{
		"membership_id": m.ID,
		"role_id":       m.RoleID,
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) deleteMembership(w http.ResponseWriter, r *http.Request) {
	if !a.ensurePermission(w, r, "members", "remove") {
		return
	}
	var req pairRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.ledger.Delete(r.Context(), req.Member.ref(), req.Target.ref()); err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.deleted", map[string]any{
		"member": req.Member,
		"target": req.Target,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// handleMembershipTransition routes POST /v1/memberships/{verb} where verb is
// one of the lifecycle transitions.
func (a *API) handleMembershipTransition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	verb := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/memberships/"), "/")

	identity, _, ok := a.requireIdentity(w, r)
	if !ok {
		return
	}
	var req pairRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	member := req.Member.ref()
	target := req.Target.ref()

	switch verb {
	case "accept", "reject", "leave":
		// Users act on their own invitations and memberships without any
		// granted permission; acting on someone else is a managed change.
		if !a.isSelf(identity, member) && !a.ensurePermission(w, r, "members", "update") {
			return
		}
	case "approve", "suspend", "reactivate":
		if !a.ensurePermission(w, r, "members", "update") {
			return
		}
	default:
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	var (
		m   *membership.Membership
		err error
	)
	switch verb {
	case "accept":
		m, err = a.ledger.Accept(r.Context(), member, target)
	case "reject":
		m, err = a.ledger.Reject(r.Context(), member, target)
	case "approve":
		m, err = a.ledger.Approve(r.Context(), member, target, identity.ID)
	case "suspend":
		m, err = a.ledger.Suspend(r.Context(), member, target)
	case "reactivate":
		m, err = a.ledger.Reactivate(r.Context(), member, target)
	case "leave":
		m, err = a.ledger.Leave(r.Context(), member, target)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership."+verb, map[string]any{
		"membership_id": m.ID,
		"status":        string(m.Status),
	})
	writeJSON(w, http.StatusOK, m)
}

func (a *API) isSelf(identity authz.Identity, member membership.EntityRef) bool {
	return member.Type == membership.EntityUser && member.ID == identity.ID
}
