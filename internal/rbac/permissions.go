package rbac

// PermissionSet maps resource name to action name to a grant flag. Unset
// branches resolve to deny; some resources carry sub-resource qualifiers
// ("campaigns.participants").
type PermissionSet map[string]map[string]bool

const wildcard = "*"

// Allows reports whether the set grants action on resource. Missing keys
// resolve to false.
func (p PermissionSet) Allows(resource, action string) bool {
	if p == nil {
		return false
	}
	if actions, ok := p[wildcard]; ok && (actions[wildcard] || actions[action]) {
		return true
	}
	actions, ok := p[resource]
	if !ok {
		return false
	}
	return actions[action] || actions[wildcard]
}

// Clone returns a deep copy so stored roles cannot be mutated through a
// returned payload.
func (p PermissionSet) Clone() PermissionSet {
	if p == nil {
		return nil
	}
	out := make(PermissionSet, len(p))
	for resource, actions := range p {
		copied := make(map[string]bool, len(actions))
		for action, allowed := range actions {
			copied[action] = allowed
		}
		out[resource] = copied
	}
	return out
}

// FullGrant returns a set that allows every resource and action.
func FullGrant() PermissionSet {
	return PermissionSet{wildcard: {wildcard: true}}
}
