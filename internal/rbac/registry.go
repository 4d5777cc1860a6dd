package rbac

import "sort"

// Registry is the immutable role to permission mapping. Build it once at
// startup and share it by pointer; nothing mutates it afterwards.
type Registry struct {
	grants map[Role]map[Permission]struct{}
}

// NewRegistry copies the supplied mapping into a new Registry.
func NewRegistry(mapping map[Role][]Permission) *Registry {
	grants := make(map[Role]map[Permission]struct{}, len(mapping))
	for role, perms := range mapping {
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			p = p.normalize()
			if p == "" {
				continue
			}
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return &Registry{grants: grants}
}

// DefaultRegistry returns the standard mapping for admin, user and viewer.
func DefaultRegistry() *Registry {
	return NewRegistry(map[Role][]Permission{
		RoleAdmin: AllPermissions(),
		RoleUser: {
			PermContentCreate,
			PermContentRead,
			PermContentUpdate,
			// Ownership of the target is enforced by the gate.
			PermContentDelete,
			PermUserRead,
		},
		RoleViewer: {
			PermContentRead,
			PermUserRead,
		},
	})
}

// PermissionsOf returns the sorted permission set of role. Unknown roles have
// no permissions.
func (r *Registry) PermissionsOf(role Role) []Permission {
	if r == nil {
		return []Permission{}
	}
	set := r.grants[role]
	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}

// HasPermission reports whether role holds perm.
func (r *Registry) HasPermission(role Role, perm Permission) bool {
	if r == nil {
		return false
	}
	perm = perm.normalize()
	if perm == "" {
		return false
	}
	_, ok := r.grants[role][perm]
	return ok
}

// HasAny reports whether role holds at least one of perms. An empty list
// never matches.
func (r *Registry) HasAny(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if r.HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether role holds every one of perms. An empty list is
// vacuously satisfied.
func (r *Registry) HasAll(role Role, perms ...Permission) bool {
	for _, p := range perms {
		if !r.HasPermission(role, p) {
			return false
		}
	}
	return true
}
