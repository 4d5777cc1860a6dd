package rbac

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-cms/internal/platform/httpx"
)

// Middleware adapts the Gate to chi handlers.
type Middleware struct {
	Gate *Gate
}

// Require gates next behind p.
func (m Middleware) Require(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := RequestFromHTTP(r, p.Param())
			d := m.Gate.Authorize(r.Context(), p, req)
			if !d.Allowed() {
				writeDecision(w, d, p)
				return
			}
			ctx := r.Context()
			if d.Resource != nil {
				ctx = ContextWithResource(ctx, d.Resource)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole ensures the actor has one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return m.Require(RequireRole(roles...))
}

// RequireAny ensures the actor has at least one of perms.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(RequirePermission(perms...))
}

// RequireAll ensures the actor has all of perms.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.Require(RequireAllPermissions(perms...))
}

// RequireOwnership ensures the actor is an admin or owns the resource.
func (m Middleware) RequireOwnership(kind ResourceKind, param, ownerField string) func(http.Handler) http.Handler {
	return m.Require(RequireOwnership(kind, param, ownerField))
}

// RequireOwnershipOrPermission ensures the actor holds perm, is an admin, or
// owns the resource.
func (m Middleware) RequireOwnershipOrPermission(kind ResourceKind, perm Permission, param, ownerField string) func(http.Handler) http.Handler {
	return m.Require(RequireOwnershipOrPermission(kind, perm, param, ownerField))
}

// OwnerScope restricts list queries to rows owned by OwnerID.
type OwnerScope struct {
	Field   string
	OwnerID string
}

type scopeContextKey struct{}
type resourceContextKey struct{}

// ScopeToOwner attaches an owner filter bound to the calling actor. Admins are
// scoped too: the route lists what the caller owns, not what it may read.
func (m Middleware) ScopeToOwner(ownerField string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromContext(r.Context())
			if actor == nil {
				writeDecision(w, unauthenticated(), Policy{})
				return
			}
			ctx := context.WithValue(r.Context(), scopeContextKey{}, &OwnerScope{Field: ownerField, OwnerID: actor.ID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerScopeFromContext returns the owner filter, nil when none was attached.
func OwnerScopeFromContext(ctx context.Context) *OwnerScope {
	scope, _ := ctx.Value(scopeContextKey{}).(*OwnerScope)
	return scope
}

// ContextWithResource stores the resolved target resource.
func ContextWithResource(ctx context.Context, res Resource) context.Context {
	return context.WithValue(ctx, resourceContextKey{}, res)
}

// ResourceFromContext returns the resource resolved by an ownership gate.
func ResourceFromContext(ctx context.Context) Resource {
	res, _ := ctx.Value(resourceContextKey{}).(Resource)
	return res
}

// RequestFromHTTP builds the decision input from r. param names the chi URL
// parameter holding the target id, if any.
func RequestFromHTTP(r *http.Request, param string) Request {
	req := Request{
		Actor:     ActorFromContext(r.Context()),
		Operation: r.URL.Path,
		Method:    r.Method,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if param != "" {
		req.ResourceID = chi.URLParam(r, param)
	}
	return req
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

func writeDecision(w http.ResponseWriter, d Decision, p Policy) {
	body := httpx.ErrorBody{Code: d.Code}
	switch d.Outcome {
	case OutcomeUnauthenticated:
		body.Error = "Authentication required"
	case OutcomeForbidden:
		if d.Code == CodeNotOwner {
			body.Error = "You can only modify your own resources"
		} else {
			body.Error = "Insufficient permissions"
			body.Required = d.Required
		}
	case OutcomeNotFound:
		body.Error = string(p.resource) + " not found"
	case OutcomeBadRequest:
		body.Error = "Resource ID required"
	default:
		body.Error = "Authorization failed"
	}
	httpx.JSON(w, d.HTTPStatus(), body)
}
