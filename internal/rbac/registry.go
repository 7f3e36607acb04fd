package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vendara.org/internal/ids"
)

// Registry provides the role catalog operations.
type Registry struct {
	store RoleStore
	now   func() time.Time
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry backed by the given store.
func NewRegistry(store RoleStore, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: role store is required", ErrInvalidInput)
	}
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Create registers a new role. Fails with ErrDuplicateRole when the
// (name, scope) pair already exists.
func (r *Registry) Create(ctx context.Context, name, displayName, description string, scope Scope, perms PermissionSet) (*Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown role scope %q", ErrInvalidInput, scope)
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = name
	}
	now := r.now().UTC()
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Scope:       scope,
		DisplayName: displayName,
		Description: strings.TrimSpace(description),
		Permissions: perms.Clone(),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Update applies partial field updates. Built-in roles reject mutation.
func (r *Registry) Update(ctx context.Context, name string, scope Scope, upd RoleUpdate) (*Role, error) {
	role, err := r.store.FindRole(ctx, normalizeName(name), scope)
	if err != nil {
		return nil, err
	}
	if role.IsBuiltIn {
		return nil, fmt.Errorf("%w: %s/%s", ErrImmutable, scope, role.Name)
	}
	if upd.DisplayName != nil {
		trimmed := strings.TrimSpace(*upd.DisplayName)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: display name is required", ErrInvalidInput)
		}
		role.DisplayName = trimmed
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Permissions != nil {
		role.Permissions = upd.Permissions.Clone()
	}
	role.UpdatedAt = r.now().UTC()
	if err := r.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// Activate re-enables a soft-disabled role.
func (r *Registry) Activate(ctx context.Context, name string, scope Scope) error {
	return r.setActive(ctx, name, scope, true)
}

// Deactivate soft-disables a role without deleting it.
func (r *Registry) Deactivate(ctx context.Context, name string, scope Scope) error {
	return r.setActive(ctx, name, scope, false)
}

func (r *Registry) setActive(ctx context.Context, name string, scope Scope, active bool) error {
	role, err := r.store.FindRole(ctx, normalizeName(name), scope)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return fmt.Errorf("%w: %s/%s", ErrImmutable, scope, role.Name)
	}
	if role.IsActive == active {
		return nil
	}
	role.IsActive = active
	role.UpdatedAt = r.now().UTC()
	return r.store.UpdateRole(ctx, role)
}

// Delete removes a role unless it is built-in.
func (r *Registry) Delete(ctx context.Context, name string, scope Scope) error {
	role, err := r.store.FindRole(ctx, normalizeName(name), scope)
	if err != nil {
		return err
	}
	if role.IsBuiltIn {
		return fmt.Errorf("%w: %s/%s", ErrImmutable, scope, role.Name)
	}
	return r.store.DeleteRole(ctx, role.Name, role.Scope)
}

// Find returns the role for the (name, scope) pair.
func (r *Registry) Find(ctx context.Context, name string, scope Scope) (*Role, error) {
	return r.store.FindRole(ctx, normalizeName(name), scope)
}

// FindByID returns the role referenced by a membership.
func (r *Registry) FindByID(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return r.store.FindRoleByID(ctx, id)
}

// List returns roles, optionally filtered by scope (empty scope lists all).
func (r *Registry) List(ctx context.Context, scope Scope) ([]*Role, error) {
	if scope != "" && !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown role scope %q", ErrInvalidInput, scope)
	}
	return r.store.ListRoles(ctx, scope)
}

// HasPermission resolves the role and reads its permission map. Missing
// roles and unset branches both resolve to deny.
func (r *Registry) HasPermission(ctx context.Context, name string, scope Scope, resource, action string) (bool, error) {
	role, err := r.store.FindRole(ctx, normalizeName(name), scope)
	if err != nil {
		return false, err
	}
	if !role.IsActive {
		return false, nil
	}
	return role.HasPermission(resource, action), nil
}

// EnsureBuiltins seeds the built-in role catalog. Existing records are left
// untouched so operator edits to non-permission fields survive restarts.
func (r *Registry) EnsureBuiltins(ctx context.Context) error {
	now := r.now().UTC()
	for _, builtin := range BuiltinRoles() {
		_, err := r.store.FindRole(ctx, builtin.Name, builtin.Scope)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return err
		}
		builtin.ID = ids.New()
		builtin.CreatedAt = now
		builtin.UpdatedAt = now
		if err := r.store.CreateRole(ctx, &builtin); err != nil {
			return err
		}
	}
	return nil
}

func normalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}
