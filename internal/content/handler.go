package content

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

// Handler wires content endpoints.
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

// MountRoutes registers content routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPublic)
	r.With(h.rbac.ScopeToOwner(rbac.OwnerFieldCreatedBy)).Get("/my", h.listMine)
	r.With(h.rbac.RequireAny(rbac.PermContentRead)).Get("/{id}", h.get)
	r.With(h.rbac.RequireAny(rbac.PermContentCreate)).Post("/", h.create)
	r.With(
		h.rbac.RequireAny(rbac.PermContentUpdate),
		h.rbac.RequireOwnership(rbac.KindContent, "id", rbac.OwnerFieldCreatedBy),
	).Put("/{id}", h.update)
	r.With(
		h.rbac.RequireAny(rbac.PermContentDelete),
		h.rbac.RequireOwnership(rbac.KindContent, "id", rbac.OwnerFieldCreatedBy),
	).Delete("/{id}", h.delete)
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}

func (h *Handler) listPublic(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := h.service.ListPublic(r.Context(), page, limit)
	if err != nil {
		h.writeError(w, "list content", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listMine(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	result, err := h.service.ListOwned(r.Context(), rbac.OwnerScopeFromContext(r.Context()), page, limit)
	if err != nil {
		h.writeError(w, "list content", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), rbac.RequestFromHTTP(r, "id"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, "get content", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"content": item})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if !h.decode(w, r, &input) {
		return
	}
	item, err := h.service.Create(r.Context(), rbac.ActorFromContext(r.Context()), input)
	if err != nil {
		h.writeError(w, "create content", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"content": item})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if !h.decode(w, r, &input) {
		return
	}
	current, ok := rbac.ResourceFromContext(r.Context()).(Content)
	if !ok {
		// admin bypass does not resolve the resource
		var err error
		if current, err = h.service.Find(r.Context(), chi.URLParam(r, "id")); err != nil {
			h.writeError(w, "update content", err)
			return
		}
	}
	item, err := h.service.Update(r.Context(), current, input)
	if err != nil {
		h.writeError(w, "update content", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"content": item})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, "delete content", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Content deleted successfully"})
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
		httpx.JSON(w, http.StatusBadRequest, httpx.ErrorBody{Error: "Validation failed", Code: "VALIDATION", Fields: fields})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Error(w, http.StatusNotFound, "Content not found", rbac.CodeNotFound)
	case errors.Is(err, ErrPrivate):
		httpx.Error(w, http.StatusForbidden, "This content is private", rbac.CodeNotOwner)
	case errors.Is(err, ErrInvalidVisibility):
		httpx.Error(w, http.StatusBadRequest, "Invalid visibility", "VALIDATION")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to "+op, "INTERNAL")
	}
}
