package authz

import (
	"context"
	"errors"
	"testing"

	"vendara.org/internal/directory"
	"vendara.org/internal/membership"
	"vendara.org/internal/rbac"
	"vendara.org/internal/store/memory"
)

type fixture struct {
	store    *memory.Store
	registry *rbac.Registry
	ledger   *membership.Ledger
	resolver *Resolver
}

func newFixture(t *testing.T, policy BootstrapPolicy) *fixture {
	t.Helper()
	store := memory.NewStore()
	registry, err := rbac.NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := registry.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	ledger, err := membership.NewLedger(store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	resolver, err := NewResolver(registry, ledger, store, store, policy)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return &fixture{store: store, registry: registry, ledger: ledger, resolver: resolver}
}

func (f *fixture) addOrg(t *testing.T, id, name string) {
	t.Helper()
	if err := f.store.CreateOrganization(context.Background(), &directory.Organization{ID: id, Name: name}); err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
}

func (f *fixture) addActiveMember(t *testing.T, userID, orgID, roleName string) {
	t.Helper()
	ctx := context.Background()
	role, err := f.registry.Find(ctx, roleName, rbac.ScopeOrganization)
	if err != nil {
		t.Fatalf("Find role %s: %v", roleName, err)
	}
	if _, err := f.ledger.Invite(ctx, membership.InviteRequest{
		Member: membership.UserRef(userID),
		Target: membership.OrgRef(orgID),
		RoleID: role.ID,
	}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := f.ledger.Accept(ctx, membership.UserRef(userID), membership.OrgRef(orgID)); err != nil {
		t.Fatalf("Accept: %v", err)
	}
}

func TestBuildCurrentUserResolvesMemberRole(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)

	current, err := f.resolver.BuildCurrentUser(context.Background(), Identity{ID: "u1", Email: "u1@acme.test"}, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.EffectiveRole.Name != rbac.RoleMember {
		t.Fatalf("expected member role, got %q", current.EffectiveRole.Name)
	}
	if current.Context.OrganizationID != "org-1" {
		t.Fatalf("expected defaulted context org-1, got %q", current.Context.OrganizationID)
	}
	if len(current.AvailableOrganizations) != 1 || current.AvailableOrganizations[0].ID != "org-1" {
		t.Fatalf("unexpected organizations: %+v", current.AvailableOrganizations)
	}
	if current.Degraded {
		t.Fatal("healthy resolution must not be degraded")
	}
}

func TestBuildCurrentUserGuestWithoutMemberships(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})

	current, err := f.resolver.BuildCurrentUser(context.Background(), Identity{ID: "nobody"}, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.EffectiveRole.Name != rbac.RoleGuest {
		t.Fatalf("expected guest, got %q", current.EffectiveRole.Name)
	}
	if !current.Context.IsZero() {
		t.Fatalf("expected empty context, got %+v", current.Context)
	}
	if len(current.AvailableOrganizations) != 0 {
		t.Fatalf("expected no organizations, got %+v", current.AvailableOrganizations)
	}
}

func TestBuildCurrentUserRequiresIdentity(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	if _, err := f.resolver.BuildCurrentUser(context.Background(), Identity{}, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAdminOverrideWorksWithZeroMemberships(t *testing.T) {
	policy := ParseBootstrapPolicy("root@vendara.test, ops@vendara.test", "")
	f := newFixture(t, policy)

	current, err := f.resolver.BuildCurrentUser(context.Background(), Identity{ID: "u9", Email: "Root@Vendara.Test"}, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.EffectiveRole.Name != rbac.RolePlatformAdmin {
		t.Fatalf("expected platform_admin, got %q", current.EffectiveRole.Name)
	}

	allowed, err := f.resolver.HasPermission(context.Background(), Identity{ID: "u9", Email: "root@vendara.test"}, "sess-1", "anything", "at-all")
	if err != nil || !allowed {
		t.Fatalf("platform admin must short-circuit to allow, got allowed=%v err=%v", allowed, err)
	}
}

func TestAdminOverrideOnEmptyRoleCatalog(t *testing.T) {
	// No EnsureBuiltins: the static definition must serve the override.
	store := memory.NewStore()
	registry, _ := rbac.NewRegistry(store)
	ledger, _ := membership.NewLedger(store)
	resolver, err := NewResolver(registry, ledger, store, store, ParseBootstrapPolicy("root@vendara.test", ""))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	current, err := resolver.BuildCurrentUser(context.Background(), Identity{ID: "u1", Email: "root@vendara.test"}, "")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.EffectiveRole.Name != rbac.RolePlatformAdmin {
		t.Fatalf("expected platform_admin fallback, got %q", current.EffectiveRole.Name)
	}
}

func TestContextDefaultingIsIdempotent(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addOrg(t, "org-2", "Globex")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)
	f.addActiveMember(t, "u1", "org-2", rbac.RoleManager)

	identity := Identity{ID: "u1"}
	first, err := f.resolver.BuildCurrentUser(context.Background(), identity, "sess-1")
	if err != nil {
		t.Fatalf("first BuildCurrentUser: %v", err)
	}
	second, err := f.resolver.BuildCurrentUser(context.Background(), identity, "sess-1")
	if err != nil {
		t.Fatalf("second BuildCurrentUser: %v", err)
	}
	if first.Context != second.Context {
		t.Fatalf("context must be stable across calls: %+v != %+v", first.Context, second.Context)
	}

	sess, err := f.store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Context != first.Context {
		t.Fatalf("defaulted context must be persisted, got %+v", sess.Context)
	}
}

func TestSwitchContext(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addOrg(t, "org-2", "Globex")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)
	f.addActiveMember(t, "u1", "org-2", rbac.RoleManager)

	identity := Identity{ID: "u1"}
	ctx := context.Background()

	if err := f.resolver.SwitchContext(ctx, identity, "org-2", "sess-1"); err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}
	current, err := f.resolver.BuildCurrentUser(ctx, identity, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.Context.OrganizationID != "org-2" {
		t.Fatalf("expected org-2 context, got %q", current.Context.OrganizationID)
	}
	if current.EffectiveRole.Name != rbac.RoleManager {
		t.Fatalf("expected manager role in org-2, got %q", current.EffectiveRole.Name)
	}

	if err := f.resolver.SwitchContext(ctx, identity, "org-404", "sess-1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
	// The denied switch must not clobber the stored context.
	current, _ = f.resolver.BuildCurrentUser(ctx, identity, "sess-1")
	if current.Context.OrganizationID != "org-2" {
		t.Fatalf("context changed after a denied switch: %q", current.Context.OrganizationID)
	}
}

func TestSwitchContextDeniedForSuspendedMembership(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)
	ctx := context.Background()

	if _, err := f.ledger.Suspend(ctx, membership.UserRef("u1"), membership.OrgRef("org-1")); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if err := f.resolver.SwitchContext(ctx, Identity{ID: "u1"}, "org-1", "sess-1"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied for suspended membership, got %v", err)
	}
}

func TestStaleContextRepairsAfterLeave(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addOrg(t, "org-2", "Globex")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)
	f.addActiveMember(t, "u1", "org-2", rbac.RoleManager)

	identity := Identity{ID: "u1"}
	ctx := context.Background()

	if err := f.resolver.SwitchContext(ctx, identity, "org-1", "sess-1"); err != nil {
		t.Fatalf("SwitchContext: %v", err)
	}
	if _, err := f.ledger.Leave(ctx, membership.UserRef("u1"), membership.OrgRef("org-1")); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	current, err := f.resolver.BuildCurrentUser(ctx, identity, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.Context.OrganizationID != "org-2" {
		t.Fatalf("expected context to move to org-2 after leaving org-1, got %q", current.Context.OrganizationID)
	}
	if current.EffectiveRole.Name != rbac.RoleManager {
		t.Fatalf("expected manager role in the repaired context, got %q", current.EffectiveRole.Name)
	}
	if len(current.AvailableOrganizations) != 1 || current.AvailableOrganizations[0].ID != "org-2" {
		t.Fatalf("unexpected organizations: %+v", current.AvailableOrganizations)
	}

	sess, err := f.store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Context.OrganizationID != "org-2" {
		t.Fatalf("repaired context must be persisted, got %+v", sess.Context)
	}
}

func TestStaleContextClearedWhenLastMembershipEnds(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)

	identity := Identity{ID: "u1"}
	ctx := context.Background()

	if _, err := f.resolver.BuildCurrentUser(ctx, identity, "sess-1"); err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if _, err := f.ledger.Suspend(ctx, membership.UserRef("u1"), membership.OrgRef("org-1")); err != nil {
		t.Fatalf("Suspend: %v", err)
	}

	current, err := f.resolver.BuildCurrentUser(ctx, identity, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if !current.Context.IsZero() {
		t.Fatalf("expected cleared context, got %+v", current.Context)
	}
	if current.EffectiveRole.Name != rbac.RoleGuest {
		t.Fatalf("expected guest with no active memberships, got %q", current.EffectiveRole.Name)
	}

	sess, err := f.store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !sess.Context.IsZero() {
		t.Fatalf("cleared context must be persisted, got %+v", sess.Context)
	}
}

// failingMembershipStore errors on every read so the degrade path runs.
type failingMembershipStore struct {
	membership.Store
}

func (failingMembershipStore) ListActiveByMember(ctx context.Context, member membership.EntityRef, targetType membership.EntityType) ([]*membership.Membership, error) {
	return nil, errors.New("backend unavailable")
}

func TestBuildCurrentUserDegradesToGuestOnStorageFault(t *testing.T) {
	store := memory.NewStore()
	registry, _ := rbac.NewRegistry(store)
	ledger, err := membership.NewLedger(failingMembershipStore{Store: store})
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	resolver, err := NewResolver(registry, ledger, store, store, BootstrapPolicy{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	current, err := resolver.BuildCurrentUser(context.Background(), Identity{ID: "u1"}, "sess-1")
	if err != nil {
		t.Fatalf("degraded resolution must not error: %v", err)
	}
	if !current.Degraded {
		t.Fatal("expected degraded payload")
	}
	if current.EffectiveRole.Name != rbac.RoleGuest {
		t.Fatalf("expected guest role, got %q", current.EffectiveRole.Name)
	}
}

func TestOrphanedRoleResolvesToGuest(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	ctx := context.Background()

	if _, err := f.ledger.Invite(ctx, membership.InviteRequest{
		Member: membership.UserRef("u1"),
		Target: membership.OrgRef("org-1"),
		RoleID: "role-vanished",
	}); err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if _, err := f.ledger.Accept(ctx, membership.UserRef("u1"), membership.OrgRef("org-1")); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	current, err := f.resolver.BuildCurrentUser(ctx, Identity{ID: "u1"}, "sess-1")
	if err != nil {
		t.Fatalf("BuildCurrentUser: %v", err)
	}
	if current.EffectiveRole.Name != rbac.RoleGuest {
		t.Fatalf("dangling role reference must resolve to guest, got %q", current.EffectiveRole.Name)
	}
	if current.Degraded {
		t.Fatal("a dangling role is not a degraded payload")
	}
}

func TestBootstrapRoleHeuristic(t *testing.T) {
	policy := ParseBootstrapPolicy("root@vendara.test", "acme.test")
	f := newFixture(t, policy)

	role, ok := f.resolver.BootstrapRole(Identity{Email: "root@vendara.test"})
	if !ok || role.Name != rbac.RolePlatformAdmin {
		t.Fatalf("admin email: got role=%v ok=%v", role, ok)
	}
	role, ok = f.resolver.BootstrapRole(Identity{Email: "dev@acme.test"})
	if !ok || role.Name != rbac.RoleManager {
		t.Fatalf("auto-register domain: got role=%v ok=%v", role, ok)
	}
	if _, ok = f.resolver.BootstrapRole(Identity{Email: "visitor@elsewhere.test"}); ok {
		t.Fatal("unmatched email must not resolve a bootstrap role")
	}
}

func TestHasPermissionUsesContextRole(t *testing.T) {
	f := newFixture(t, BootstrapPolicy{})
	f.addOrg(t, "org-1", "Acme")
	f.addActiveMember(t, "u1", "org-1", rbac.RoleMember)
	ctx := context.Background()
	identity := Identity{ID: "u1"}

	allowed, err := f.resolver.HasPermission(ctx, identity, "sess-1", "campaigns", "read")
	if err != nil || !allowed {
		t.Fatalf("member must read campaigns, got allowed=%v err=%v", allowed, err)
	}
	allowed, err = f.resolver.HasPermission(ctx, identity, "sess-1", "campaigns", "delete")
	if err != nil || allowed {
		t.Fatalf("member must not delete campaigns, got allowed=%v err=%v", allowed, err)
	}
}
