package rbac

import (
	"context"
	"time"
)

// Scope is the granularity at which a role's permissions apply.
type Scope string

const (
	ScopePlatform     Scope = "platform"
	ScopeOrganization Scope = "organization"
	ScopeProject      Scope = "project"
)

// Valid reports whether the scope belongs to the closed set.
func (s Scope) Valid() bool {
	switch s {
	case ScopePlatform, ScopeOrganization, ScopeProject:
		return true
	}
	return false
}

// Role is a named, scope-qualified permission bundle. Identity is the
// (Name, Scope) pair; ID is the storage key referenced by memberships.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Scope       Scope         `json:"scope"`
	DisplayName string        `json:"display_name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionSet `json:"permissions"`
	IsActive    bool          `json:"is_active"`
	IsBuiltIn   bool          `json:"is_built_in"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// HasPermission reads the nested permission map; missing keys deny.
func (r *Role) HasPermission(resource, action string) bool {
	if r == nil {
		return false
	}
	return r.Permissions.Allows(resource, action)
}

// RoleUpdate carries partial field updates; nil fields are left untouched.
type RoleUpdate struct {
	DisplayName *string
	Description *string
	Permissions PermissionSet
}

// RoleStore describes persistence operations required by the registry.
// Create must fail with ErrDuplicateRole when the (name, scope) pair is
// taken; lookups must fail with ErrNotFound when the record is absent.
type RoleStore interface {
	CreateRole(ctx context.Context, role *Role) error
	FindRole(ctx context.Context, name string, scope Scope) (*Role, error)
	FindRoleByID(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, scope Scope) ([]*Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, name string, scope Scope) error
}
