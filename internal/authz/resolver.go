package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vendara.org/internal/directory"
	"vendara.org/internal/membership"
	"vendara.org/internal/obs"
	"vendara.org/internal/rbac"
	"vendara.org/internal/session"
)

var (
	ErrAccessDenied = errors.New("authz: user does not have access to this organization")
	ErrInvalidInput = errors.New("authz: invalid input")
)

// Identity is the plain tuple handed over by the external auth bridge. The
// resolver never parses cookies or headers itself.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OrganizationAccess is one entry of a user's available organizations.
type OrganizationAccess struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Type   string `json:"type,omitempty"`
	Role   string `json:"role"`
}

// CurrentUser is the effective authorization payload. It is computed per
// request and never persisted.
type CurrentUser struct {
	Identity               Identity             `json:"identity"`
	Context                session.Context      `json:"current_context"`
	EffectiveRole          *rbac.Role           `json:"effective_role"`
	AvailableOrganizations []OrganizationAccess `json:"available_organizations"`
	// Degraded marks a payload that fell back to guest because resolution
	// failed mid-way, as opposed to a genuinely permissionless identity.
	Degraded bool `json:"-"`
}

// Resolver assembles effective authorization state from the role registry,
// the membership ledger, the session store and the organization directory.
type Resolver struct {
	roles    *rbac.Registry
	ledger   *membership.Ledger
	sessions session.Store
	orgs     directory.Store
	policy   BootstrapPolicy
	now      func() time.Time
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(roles *rbac.Registry, ledger *membership.Ledger, sessions session.Store, orgs directory.Store, policy BootstrapPolicy, opts ...ResolverOption) (*Resolver, error) {
	if roles == nil || ledger == nil || sessions == nil || orgs == nil {
		return nil, fmt.Errorf("%w: all collaborators are required", ErrInvalidInput)
	}
	r := &Resolver{
		roles:    roles,
		ledger:   ledger,
		sessions: sessions,
		orgs:     orgs,
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BuildCurrentUser resolves the effective authorization payload for an
// identity and session. Storage faults on this read path degrade to a
// guest payload instead of failing the request; the fault is logged and the
// payload is marked Degraded.
func (r *Resolver) BuildCurrentUser(ctx context.Context, identity Identity, sessionKey string) (*CurrentUser, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	isAdmin := r.policy.IsAdmin(identity.Email)

	current := &CurrentUser{Identity: identity, EffectiveRole: rbac.GuestRole()}

	// Session context read tolerates absence; an unknown key just means no
	// context has been selected yet.
	var sessCtx session.Context
	if sessionKey != "" {
		sess, err := r.sessions.GetSession(ctx, sessionKey)
		switch {
		case err == nil:
			sessCtx = sess.Context
		case errors.Is(err, session.ErrNotFound):
			// implicit empty context
		default:
			return r.degrade(current, "session read failed", err), nil
		}
	}

	adminRole := r.platformAdminRole(ctx, isAdmin)

	memberships, err := r.ledger.GetActiveByMember(ctx, membership.UserRef(identity.ID), membership.EntityOrganization)
	if err != nil {
		return r.degrade(current, "membership enumeration failed", err), nil
	}

	rolesByOrg := make(map[string]*rbac.Role, len(memberships))
	for _, m := range memberships {
		org, err := r.orgs.FindOrganization(ctx, m.Target.ID)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				continue
			}
			return r.degrade(current, "organization lookup failed", err), nil
		}
		role := adminRole
		if role == nil {
			role, err = r.roles.FindByID(ctx, m.RoleID)
			if errors.Is(err, rbac.ErrNotFound) {
				role = rbac.GuestRole()
			} else if err != nil {
				return r.degrade(current, "role lookup failed", err), nil
			}
		}
		rolesByOrg[org.ID] = role
		current.AvailableOrganizations = append(current.AvailableOrganizations, OrganizationAccess{
			ID:     org.ID,
			Name:   org.Name,
			Domain: org.Domain,
			Type:   org.Type,
			Role:   role.Name,
		})
	}

	// A stored context must always name an organization the identity
	// still actively belongs to. A selection that went stale (left or
	// suspended since it was written) is treated as absent rather than
	// returned, so the session repairs itself on the next resolution.
	repaired := false
	if !sessCtx.IsZero() {
		if _, ok := rolesByOrg[sessCtx.OrganizationID]; !ok {
			sessCtx = session.Context{}
			repaired = true
		}
	}

	// Default the context to the first membership's organization so a
	// fresh session stays consistent without an explicit switch. The
	// write is last-write-wins; concurrent first requests pick the same
	// organization from the same ordered membership list.
	if sessCtx.IsZero() && len(memberships) > 0 {
		sessCtx = session.Context{OrganizationID: memberships[0].Target.ID}
		repaired = true
	}
	if repaired && sessionKey != "" {
		if err := r.sessions.SetSession(ctx, sessionKey, sessCtx); err != nil {
			obs.Log(map[string]any{"level": "warn", "msg": "session context write failed", "error": err.Error()})
		}
	}
	current.Context = sessCtx

	switch {
	case adminRole != nil:
		current.EffectiveRole = adminRole
	case !sessCtx.IsZero():
		if role, ok := rolesByOrg[sessCtx.OrganizationID]; ok {
			current.EffectiveRole = role
		}
	}

	obs.CountResolution(resolutionOutcome(current))
	return current, nil
}

// SwitchContext repoints the session at another organization. It fails
// with ErrAccessDenied unless the identity holds an active membership for
// the target.
func (r *Resolver) SwitchContext(ctx context.Context, identity Identity, organizationID, sessionKey string) error {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" || strings.TrimSpace(sessionKey) == "" {
		return fmt.Errorf("%w: organization id and session key are required", ErrInvalidInput)
	}
	active, err := r.ledger.IsActiveMember(ctx, membership.UserRef(identity.ID), membership.OrgRef(organizationID))
	if err != nil {
		return err
	}
	if !active {
		return ErrAccessDenied
	}
	return r.sessions.SetSession(ctx, sessionKey, session.Context{OrganizationID: organizationID})
}

// HasPermission resolves the effective role and reads its permission map.
// The platform admin role short-circuits to true.
func (r *Resolver) HasPermission(ctx context.Context, identity Identity, sessionKey, resource, action string) (bool, error) {
	current, err := r.BuildCurrentUser(ctx, identity, sessionKey)
	if err != nil {
		return false, err
	}
	if current.EffectiveRole.Name == rbac.RolePlatformAdmin {
		return true, nil
	}
	return current.EffectiveRole.HasPermission(resource, action), nil
}

// BootstrapRole is the environment-heuristic-only role resolution used for
// a narrow bootstrap window before the ledger-backed path is wired in. It
// is non-authoritative and must never substitute for BuildCurrentUser.
func (r *Resolver) BootstrapRole(identity Identity) (*rbac.Role, bool) {
	if r.policy.IsAdmin(identity.Email) {
		return builtinByName(rbac.RolePlatformAdmin)
	}
	if r.policy.MatchesAutoRegisterDomain(identity.Email) {
		return builtinByName(rbac.RoleManager)
	}
	return nil, false
}

// platformAdminRole returns the forced admin role for allow-listed
// identities. The registry copy is preferred; before any records exist the
// static built-in definition serves, so the override works on an empty
// deployment.
func (r *Resolver) platformAdminRole(ctx context.Context, isAdmin bool) *rbac.Role {
	if !isAdmin {
		return nil
	}
	role, err := r.roles.Find(ctx, rbac.RolePlatformAdmin, rbac.ScopePlatform)
	if err == nil {
		return role
	}
	fallback, _ := builtinByName(rbac.RolePlatformAdmin)
	return fallback
}

func (r *Resolver) degrade(current *CurrentUser, msg string, err error) *CurrentUser {
	obs.Log(map[string]any{
		"level":    "error",
		"msg":      msg,
		"identity": current.Identity.ID,
		"error":    err.Error(),
	})
	obs.CountResolution("degraded")
	return &CurrentUser{
		Identity:      current.Identity,
		EffectiveRole: rbac.GuestRole(),
		Degraded:      true,
	}
}

func resolutionOutcome(current *CurrentUser) string {
	if current.EffectiveRole.Name == rbac.RoleGuest {
		return "guest"
	}
	return "resolved"
}

func builtinByName(name string) (*rbac.Role, bool) {
	for _, role := range rbac.BuiltinRoles() {
		if role.Name == name {
			out := role
			out.Permissions = role.Permissions.Clone()
			return &out, true
		}
	}
	return nil, false
}
