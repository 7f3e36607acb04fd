package rbac

import "errors"

// Built-in role names referenced across the service.
const (
	RolePlatformAdmin = "platform_admin"
	RoleManager       = "manager"
	RoleMember        = "member"
	RoleGuest         = "guest"
)

// BuiltinRoles returns the system-defined roles seeded at startup. Each is
// protected from mutation and deletion.
func BuiltinRoles() []Role {
	return []Role{
		{
			Name:        RolePlatformAdmin,
			Scope:       ScopePlatform,
			DisplayName: "Platform Admin",
			Description: "Full administrative access across the platform",
			Permissions: FullGrant(),
			IsActive:    true,
			IsBuiltIn:   true,
		},
		{
			Name:        RoleManager,
			Scope:       ScopeOrganization,
			DisplayName: "Organization Manager",
			Description: "Manages campaigns, teams and projects within an organization",
			Permissions: PermissionSet{
				"organizations":          {"read": true, "update": true},
				"campaigns":              {"create": true, "read": true, "update": true, "delete": true},
				"campaigns.participants": {"add": true, "remove": true},
				"teams":                  {"create": true, "read": true, "update": true},
				"projects":               {"create": true, "read": true, "update": true, "delete": true},
				"experts":                {"read": true, "invite": true},
				"members":                {"invite": true, "read": true, "update": true, "remove": true},
			},
			IsActive:  true,
			IsBuiltIn: true,
		},
		{
			Name:        RoleMember,
			Scope:       ScopeOrganization,
			DisplayName: "Organization Member",
			Description: "Read access plus participation in assigned campaigns",
			Permissions: PermissionSet{
				"organizations": {"read": true},
				"campaigns":     {"read": true},
				"teams":         {"read": true},
				"projects":      {"read": true},
			},
			IsActive:  true,
			IsBuiltIn: true,
		},
	}
}

// GuestRole returns the synthetic zero-permission role used when no
// membership resolves. It is never persisted.
func GuestRole() *Role {
	return &Role{
		Name:        RoleGuest,
		Scope:       ScopeOrganization,
		DisplayName: "Guest",
		Description: "No permissions",
		Permissions: PermissionSet{},
		IsActive:    true,
		IsBuiltIn:   true,
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
