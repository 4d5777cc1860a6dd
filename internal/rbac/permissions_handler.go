package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
)

// PermissionsHandler exposes the role to permission mapping.
type PermissionsHandler struct {
	registry *Registry
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(registry *Registry, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{registry: registry, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermAdminManageSystem))
		r.Get("/", h.listRoles)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(Roles()...))
		r.Get("/me", h.myPermissions)
	})
}

type rolePermissions struct {
	Role        Role                `json:"role"`
	Permissions []Permission        `json:"permissions"`
	ByResource  map[string][]string `json:"byResource"`
}

func (h *PermissionsHandler) describe(role Role) rolePermissions {
	perms := h.registry.PermissionsOf(role)
	grouped := make(map[string][]string)
	for _, p := range perms {
		grouped[p.Resource()] = append(grouped[p.Resource()], p.Action())
	}
	return rolePermissions{Role: role, Permissions: perms, ByResource: grouped}
}

func (h *PermissionsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles := make([]rolePermissions, 0, len(Roles()))
	for _, role := range Roles() {
		roles = append(roles, h.describe(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, h.describe(actor.Role))
}
