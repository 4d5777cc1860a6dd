package rbac

import (
	"context"
	"strings"
)

// Role is the fixed category of an actor.
type Role string

// Supported roles. Admin is distinguished only by its bypass privilege.
const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// Roles lists every supported role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleUser, RoleViewer}
}

// ParseRole maps raw input onto a supported role.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, r := range Roles() {
		if r == role {
			return role, true
		}
	}
	return "", false
}

// String implements fmt.Stringer.
func (r Role) String() string { return string(r) }

// Permission is an atomic capability token in resource:action form.
type Permission string

// Content permissions.
const (
	PermContentCreate Permission = "content:create"
	PermContentRead   Permission = "content:read"
	PermContentUpdate Permission = "content:update"
	PermContentDelete Permission = "content:delete"
)

// User management permissions.
const (
	PermUserCreate     Permission = "user:create"
	PermUserRead       Permission = "user:read"
	PermUserUpdate     Permission = "user:update"
	PermUserDelete     Permission = "user:delete"
	PermUserAssignRole Permission = "user:assign_role"
)

// Admin permissions.
const (
	PermAdminAuditLogs    Permission = "admin:audit_logs"
	PermAdminManageSystem Permission = "admin:manage_system"
)

// AllPermissions lists every permission known to the system.
func AllPermissions() []Permission {
	return []Permission{
		PermContentCreate,
		PermContentRead,
		PermContentUpdate,
		PermContentDelete,
		PermUserCreate,
		PermUserRead,
		PermUserUpdate,
		PermUserDelete,
		PermUserAssignRole,
		PermAdminAuditLogs,
		PermAdminManageSystem,
	}
}

// Resource returns the resource family of the token ("content" for content:read).
func (p Permission) Resource() string {
	resource, _, _ := strings.Cut(string(p), ":")
	return resource
}

// Action returns the action part of the token ("read" for content:read).
func (p Permission) Action() string {
	_, action, _ := strings.Cut(string(p), ":")
	return action
}

func (p Permission) normalize() Permission {
	return Permission(strings.ToLower(strings.TrimSpace(string(p))))
}

// Actor describes the authenticated identity of a request. It is supplied by
// the identity layer and treated as read-only here.
type Actor struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"isActive"`
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context, nil when anonymous.
func ActorFromContext(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorContextKey{}).(*Actor)
	return actor
}
