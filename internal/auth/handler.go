package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
	"github.com/odyssey-erp/odyssey-cms/internal/users"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	rbac           rbac.Middleware
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		rbac:           rbac,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.rbac.RequireRole(rbac.Roles()...)).Get("/me", h.handleMe)
}

// Identity resolves the session user into an rbac.Actor. Requests without a
// usable session continue anonymously; a store fault fails the request.
func (h *Handler) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := h.service.ResolveActor(r.Context(), sess.User())
		if err != nil {
			h.logger.Error("resolve actor", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "Failed to resolve identity", "INTERNAL")
			return
		}
		if actor == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(rbac.ContextWithActor(r.Context(), actor)))
	})
}

func clientInfo(r *http.Request) ClientInfo {
	req := rbac.RequestFromHTTP(r, "")
	return ClientInfo{IPAddress: req.IPAddress, UserAgent: req.UserAgent}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.Register(r.Context(), input, clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, users.ErrDuplicateEmail):
			httpx.Error(w, http.StatusConflict, "Email already registered", "DUPLICATE")
		case errors.Is(err, users.ErrInvalidInput):
			httpx.Error(w, http.StatusBadRequest, "Name and email are required", "VALIDATION")
		default:
			h.logger.Error("register", slog.Any("error", err))
			httpx.Error(w, http.StatusInternalServerError, "Failed to register", "INTERNAL")
		}
		return
	}
	h.startSession(r, user)
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input LoginInput
	if !h.decode(w, r, &input) {
		return
	}
	user, err := h.service.Authenticate(r.Context(), input.Email, input.Password, clientInfo(r))
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Error(w, http.StatusUnauthorized, "Invalid email or password", "INVALID_CREDENTIALS")
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.Error(w, http.StatusInternalServerError, "Failed to log in", "INTERNAL")
		return
	}
	h.startSession(r, user)
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) startSession(r *http.Request, user users.User) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		return
	}
	h.sessionManager.Renew(sess)
	sess.SetUser(user.ID)
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, h.sessionManager.TTL(), clientInfo(r)); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":        actor,
		"permissions": h.rbac.Gate.Registry().PermissionsOf(actor.Role),
	})
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
