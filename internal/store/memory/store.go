// Package memory provides a mutex-guarded in-process store satisfying the
// rbac, membership, session and directory store interfaces. It backs unit
// tests and DSN-less local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"vendara.org/internal/directory"
	"vendara.org/internal/membership"
	"vendara.org/internal/rbac"
	"vendara.org/internal/session"
)

type Store struct {
	mu sync.RWMutex

	rolesByID         map[string]rbac.Role
	roleIDByNameScope map[string]string

	membershipsByPair map[string]membership.Membership

	sessionsByKey map[string]session.Session

	orgsByID map[string]directory.Organization
}

var (
	_ rbac.RoleStore   = (*Store)(nil)
	_ membership.Store = (*Store)(nil)
	_ session.Store    = (*Store)(nil)
	_ directory.Store  = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		rolesByID:         make(map[string]rbac.Role),
		roleIDByNameScope: make(map[string]string),
		membershipsByPair: make(map[string]membership.Membership),
		sessionsByKey:     make(map[string]session.Session),
		orgsByID:          make(map[string]directory.Organization),
	}
}

// Roles ---------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleKey(role.Name, role.Scope)
	if _, exists := s.roleIDByNameScope[key]; exists {
		return rbac.ErrDuplicateRole
	}
	s.rolesByID[role.ID] = cloneRole(*role)
	s.roleIDByNameScope[key] = role.ID
	return nil
}

func (s *Store) FindRole(ctx context.Context, name string, scope rbac.Scope) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roleIDByNameScope[roleKey(name, scope)]
	if !ok {
		return nil, rbac.ErrNotFound
	}
	role := cloneRole(s.rolesByID[id])
	return &role, nil
}

func (s *Store) FindRoleByID(ctx context.Context, id string) (*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.rolesByID[id]
	if !ok {
		return nil, rbac.ErrNotFound
	}
	out := cloneRole(role)
	return &out, nil
}

func (s *Store) ListRoles(ctx context.Context, scope rbac.Scope) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*rbac.Role
	for _, role := range s.rolesByID {
		if scope != "" && role.Scope != scope {
			continue
		}
		copied := cloneRole(role)
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateRole(ctx context.Context, role *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rolesByID[role.ID]; !ok {
		return rbac.ErrNotFound
	}
	s.rolesByID[role.ID] = cloneRole(*role)
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string, scope rbac.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := roleKey(name, scope)
	id, ok := s.roleIDByNameScope[key]
	if !ok {
		return rbac.ErrNotFound
	}
	delete(s.roleIDByNameScope, key)
	delete(s.rolesByID, id)
	return nil
}

// Memberships ---------------------------------------------------------

func (s *Store) CreateMembership(ctx context.Context, m *membership.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(m.Member, m.Target)
	// The single mutex makes the existence check and insert atomic, which
	// is the in-memory equivalent of the storage unique index on the pair.
	if _, exists := s.membershipsByPair[key]; exists {
		return membership.ErrDuplicateMembership
	}
	s.membershipsByPair[key] = cloneMembership(*m)
	return nil
}

func (s *Store) FindMembership(ctx context.Context, member, target membership.EntityRef) (*membership.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.membershipsByPair[pairKey(member, target)]
	if !ok {
		return nil, membership.ErrNotFound
	}
	out := cloneMembership(m)
	return &out, nil
}

func (s *Store) UpdateMembership(ctx context.Context, m *membership.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(m.Member, m.Target)
	if _, ok := s.membershipsByPair[key]; !ok {
		return membership.ErrNotFound
	}
	s.membershipsByPair[key] = cloneMembership(*m)
	return nil
}

func (s *Store) DeleteMembership(ctx context.Context, member, target membership.EntityRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(member, target)
	if _, ok := s.membershipsByPair[key]; !ok {
		return membership.ErrNotFound
	}
	delete(s.membershipsByPair, key)
	return nil
}

func (s *Store) ListByMember(ctx context.Context, member membership.EntityRef, targetType membership.EntityType) ([]*membership.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m membership.Membership) bool {
		if m.Member != member {
			return false
		}
		return targetType == "" || m.Target.Type == targetType
	}), nil
}

func (s *Store) ListByTarget(ctx context.Context, target membership.EntityRef) ([]*membership.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m membership.Membership) bool {
		return m.Target == target
	}), nil
}

func (s *Store) ListActiveByMember(ctx context.Context, member membership.EntityRef, targetType membership.EntityType) ([]*membership.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(m membership.Membership) bool {
		if !m.IsActive || m.Member != member {
			return false
		}
		return targetType == "" || m.Target.Type == targetType
	}), nil
}

// collect returns matches ordered by creation time so "first membership"
// is deterministic for the resolver's context defaulting.
func (s *Store) collect(match func(membership.Membership) bool) []*membership.Membership {
	var out []*membership.Membership
	for _, m := range s.membershipsByPair {
		if match(m) {
			copied := cloneMembership(m)
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sessions ------------------------------------------------------------

func (s *Store) GetSession(ctx context.Context, key string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessionsByKey[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	out := sess
	return &out, nil
}

func (s *Store) SetSession(ctx context.Context, key string, sctx session.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsByKey[key] = session.Session{
		Key:            key,
		Context:        sctx,
		LastActivityAt: time.Now().UTC(),
	}
	return nil
}

// Organizations -------------------------------------------------------

func (s *Store) CreateOrganization(ctx context.Context, org *directory.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orgsByID[org.ID]; exists {
		return directory.ErrDuplicate
	}
	s.orgsByID[org.ID] = *org
	return nil
}

func (s *Store) FindOrganization(ctx context.Context, id string) (*directory.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.orgsByID[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	out := org
	return &out, nil
}

func (s *Store) ListOrganizations(ctx context.Context) ([]*directory.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*directory.Organization
	for _, org := range s.orgsByID {
		copied := org
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// helpers -------------------------------------------------------------

func roleKey(name string, scope rbac.Scope) string {
	return string(scope) + "/" + name
}

func pairKey(member, target membership.EntityRef) string {
	return string(member.Type) + ":" + member.ID + "->" + string(target.Type) + ":" + target.ID
}

func cloneRole(r rbac.Role) rbac.Role {
	r.Permissions = r.Permissions.Clone()
	return r
}

func cloneMembership(m membership.Membership) membership.Membership {
	m.ApprovedAt = cloneTime(m.ApprovedAt)
	m.JoinedAt = cloneTime(m.JoinedAt)
	m.LeftAt = cloneTime(m.LeftAt)
	return m
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
