package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

// Handler serves the admin dashboard endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers admin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
		r.Get("/dashboard", h.dashboard)
		r.Get("/stats", h.stats)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "Welcome to Admin Dashboard",
		"admin":   actor.Email,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("admin stats", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to retrieve statistics", "INTERNAL")
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
