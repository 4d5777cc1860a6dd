package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers admin user management routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.RoleAdmin))
		r.With(h.rbac.RequireAny(rbac.PermUserRead)).Get("/", h.listUsers)
		r.With(h.rbac.RequireAny(rbac.PermUserRead)).Get("/{id}", h.getUser)
		r.With(h.rbac.RequireAny(rbac.PermUserCreate)).Post("/", h.createUser)
		r.With(h.rbac.RequireAny(rbac.PermUserUpdate)).Put("/{id}", h.updateUser)
		r.With(h.rbac.RequireAny(rbac.PermUserAssignRole)).Patch("/{id}/role", h.assignRole)
		r.With(h.rbac.RequireAny(rbac.PermUserDelete)).Delete("/{id}", h.deleteUser)
	})
}

// MountSelfRoutes registers the self-service profile routes.
func (h *Handler) MountSelfRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(rbac.Roles()...))
		r.Get("/me", h.showMe)
		r.Put("/me", h.updateMe)
		r.Put("/me/password", h.changePassword)
		r.With(h.rbac.RequireOwnershipOrPermission(rbac.KindUser, rbac.PermUserUpdate, "id", rbac.OwnerFieldID)).
			Put("/{id}/profile", h.updateProfile)
	})
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Role:   rbac.Role(strings.TrimSpace(q.Get("role"))),
		Search: q.Get("search"),
	}
	if raw := strings.TrimSpace(q.Get("isActive")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, map[string]string{"isActive": "must be true or false"})
			return
		}
		filters.IsActive = &active
	}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	result, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.writeError(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.Create(r.Context(), callerFromRequest(r), input)
	if err != nil {
		h.writeError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "user": user})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.Update(r.Context(), callerFromRequest(r), chi.URLParam(r, "id"), input)
	if err != nil {
		h.writeError(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "User updated successfully", "user": user})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var input roleRequest
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.AssignRole(r.Context(), callerFromRequest(r), chi.URLParam(r, "id"), input.Role)
	if err != nil {
		h.writeError(w, "assign role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Role assigned successfully", "user": user})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), callerFromRequest(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully"})
}

func (h *Handler) showMe(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	user, err := h.service.Get(r.Context(), actor.ID)
	if err != nil {
		h.writeError(w, "load profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	h.applyProfile(w, r, rbac.ActorFromContext(r.Context()).ID)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	h.applyProfile(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) applyProfile(w http.ResponseWriter, r *http.Request, id string) {
	var input ProfileInput
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), id, input)
	if err != nil {
		h.writeError(w, "update profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Profile updated successfully", "user": user})
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var input PasswordInput
	if !h.decode(w, r, &input) {
		return
	}
	if err := h.service.ChangePassword(r.Context(), callerFromRequest(r), input); err != nil {
		h.writeError(w, "change password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Password changed successfully"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid request body", "INVALID_BODY")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		h.badRequest(w, fields)
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, fields map[string]string) {
	httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "Validation failed", Code: "VALIDATION", Fields: fields})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "User not found", "NOT_FOUND")
	case errors.Is(err, ErrDuplicateEmail):
		httpx.Error(w, http.StatusConflict, "Email already registered", "DUPLICATE")
	case errors.Is(err, ErrSelfAction):
		httpx.Error(w, http.StatusBadRequest, "Cannot delete or deactivate your own account", "SELF_ACTION")
	case errors.Is(err, ErrInvalidRole):
		httpx.Error(w, http.StatusBadRequest, "Invalid role", "INVALID_ROLE")
	case errors.Is(err, ErrWrongPassword):
		httpx.Error(w, http.StatusBadRequest, "Current password is incorrect", "WRONG_PASSWORD")
	case errors.Is(err, ErrInvalidInput):
		httpx.Error(w, http.StatusBadRequest, "Name and email are required", "VALIDATION")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to "+op, "INTERNAL")
	}
}

func callerFromRequest(r *http.Request) Caller {
	req := rbac.RequestFromHTTP(r, "")
	return Caller{Actor: req.Actor, IPAddress: req.IPAddress, UserAgent: req.UserAgent}
}
