package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
)

type policyKind int

const (
	policyRole policyKind = iota + 1
	policyAnyPermission
	policyAllPermissions
	policyOwnership
)

// Policy configures what a protected operation requires.
type Policy struct {
	kind       policyKind
	roles      []Role
	perms      []Permission
	resource   ResourceKind
	param      string
	ownerField string
	override   Permission
}

// RequireRole allows actors whose role is one of roles.
func RequireRole(roles ...Role) Policy {
	return Policy{kind: policyRole, roles: roles}
}

// RequirePermission allows actors holding at least one of perms.
func RequirePermission(perms ...Permission) Policy {
	return Policy{kind: policyAnyPermission, perms: perms}
}

// RequireAllPermissions allows actors holding every one of perms.
func RequireAllPermissions(perms ...Permission) Policy {
	return Policy{kind: policyAllPermissions, perms: perms}
}

// RequireOwnership allows admins and the owner of the resource identified by
// the path parameter param.
func RequireOwnership(kind ResourceKind, param, ownerField string) Policy {
	return Policy{kind: policyOwnership, resource: kind, param: param, ownerField: ownerField}
}

// RequireOwnershipOrPermission allows holders of perm, admins, and the owner
// of the resource identified by the path parameter param.
func RequireOwnershipOrPermission(kind ResourceKind, perm Permission, param, ownerField string) Policy {
	p := RequireOwnership(kind, param, ownerField)
	p.override = perm
	return p
}

// Name labels the policy in logs and metrics.
func (p Policy) Name() string {
	switch p.kind {
	case policyRole:
		return "role"
	case policyAnyPermission:
		return "permission_any"
	case policyAllPermissions:
		return "permission_all"
	case policyOwnership:
		if p.override != "" {
			return "ownership_or_permission"
		}
		return "ownership"
	default:
		return "unknown"
	}
}

// Param is the path parameter holding the target resource id.
func (p Policy) Param() string {
	return p.param
}

func (p Policy) required() []string {
	switch p.kind {
	case policyRole:
		out := make([]string, 0, len(p.roles))
		for _, r := range p.roles {
			out = append(out, string(r))
		}
		return out
	case policyAnyPermission, policyAllPermissions:
		out := make([]string, 0, len(p.perms))
		for _, perm := range p.perms {
			out = append(out, string(perm))
		}
		return out
	case policyOwnership:
		if p.override != "" {
			return []string{string(p.override)}
		}
	}
	return nil
}

// Request carries the per-request inputs of a decision.
type Request struct {
	Actor *Actor
	// Operation identifies the attempted route or operation.
	Operation  string
	ResourceID string
	Method     string
	IPAddress  string
	UserAgent  string
}

// Recorder receives audit entries; it must not fail the caller.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Observer is notified of every decision.
type Observer interface {
	ObserveDecision(policy, outcome string)
}

// GateConfig wires the collaborators of a Gate.
type GateConfig struct {
	Registry  *Registry
	Resources *ResourceTable
	Recorder  Recorder
	Observer  Observer
	Logger    *slog.Logger
	// AuditUnauthenticated also records requests without an actor.
	AuditUnauthenticated bool
}

// Gate evaluates policies against actors and records denials.
type Gate struct {
	registry             *Registry
	resources            *ResourceTable
	recorder             Recorder
	observer             Observer
	logger               *slog.Logger
	auditUnauthenticated bool
}

// NewGate builds a Gate. A nil registry falls back to DefaultRegistry.
func NewGate(cfg GateConfig) *Gate {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		registry:             registry,
		resources:            cfg.Resources,
		recorder:             cfg.Recorder,
		observer:             cfg.Observer,
		logger:               logger,
		auditUnauthenticated: cfg.AuditUnauthenticated,
	}
}

// Registry exposes the permission registry used by the gate.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Authorize decides whether req satisfies p. The actor is checked before any
// policy logic and before any resource is fetched.
func (g *Gate) Authorize(ctx context.Context, p Policy, req Request) Decision {
	var d Decision
	if req.Actor == nil {
		d = unauthenticated()
		if g.auditUnauthenticated {
			g.record(ctx, audit.Entry{
				Action:   audit.ActionAuthenticationRequired,
				Resource: req.Operation,
				Status:   audit.StatusFailure,
				Details: map[string]any{
					"method":    req.Method,
					"operation": req.Operation,
				},
				IPAddress: req.IPAddress,
				UserAgent: req.UserAgent,
			})
		}
	} else {
		d = g.evaluate(ctx, p, req)
		if d.Outcome == OutcomeForbidden {
			g.recordDenial(ctx, p, req, d)
		}
	}
	if d.Outcome == OutcomeInternal {
		g.logger.Error("authorization failed",
			slog.String("policy", p.Name()),
			slog.String("operation", req.Operation),
			slog.Any("error", d.Err),
		)
	}
	if g.observer != nil {
		g.observer.ObserveDecision(p.Name(), string(d.Outcome))
	}
	return d
}

func (g *Gate) evaluate(ctx context.Context, p Policy, req Request) Decision {
	actor := req.Actor
	switch p.kind {
	case policyRole:
		for _, r := range p.roles {
			if actor.Role == r {
				return allow(nil)
			}
		}
		return forbidden(CodeForbidden, ReasonInsufficientRole, p.required(), nil)
	case policyAnyPermission:
		if g.registry.HasAny(actor.Role, p.perms...) {
			return allow(nil)
		}
		return forbidden(CodeForbidden, ReasonInsufficientPermission, p.required(), nil)
	case policyAllPermissions:
		if g.registry.HasAll(actor.Role, p.perms...) {
			return allow(nil)
		}
		return forbidden(CodeForbidden, ReasonInsufficientPermission, p.required(), nil)
	case policyOwnership:
		return g.evaluateOwnership(ctx, p, req)
	default:
		return internal(errors.New("rbac: unconfigured policy"))
	}
}

// evaluateOwnership runs the fixed order: override permission, admin bypass,
// then fetch and ownership.
func (g *Gate) evaluateOwnership(ctx context.Context, p Policy, req Request) Decision {
	actor := req.Actor
	if p.override != "" && g.registry.HasPermission(actor.Role, p.override) {
		return allow(nil)
	}
	if actor.Role == RoleAdmin {
		return allow(nil)
	}
	id := strings.TrimSpace(req.ResourceID)
	if id == "" {
		return Decision{Outcome: OutcomeBadRequest, Code: CodeMissingID}
	}
	res, err := g.resources.Fetch(ctx, p.resource, id)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return Decision{Outcome: OutcomeNotFound, Code: CodeNotFound}
		}
		return internal(err)
	}
	if IsOwner(actor, res, p.ownerField) {
		return allow(res)
	}
	if p.override != "" {
		return forbidden(CodeForbidden, ReasonNotOwnerNoPermission, p.required(), res)
	}
	return forbidden(CodeNotOwner, ReasonNotOwner, nil, res)
}

func (g *Gate) recordDenial(ctx context.Context, p Policy, req Request, d Decision) {
	details := map[string]any{
		"reason":    d.Reason,
		"userRole":  string(req.Actor.Role),
		"method":    req.Method,
		"operation": req.Operation,
	}
	switch p.kind {
	case policyRole:
		details["requiredRoles"] = d.Required
	case policyAnyPermission, policyAllPermissions:
		details["requiredPermissions"] = d.Required
	case policyOwnership:
		if p.override != "" {
			details["requiredPermission"] = string(p.override)
		}
	}
	entry := audit.Entry{
		ActorID:   req.Actor.ID,
		Action:    audit.ActionPermissionDenied,
		Resource:  req.Operation,
		Status:    audit.StatusFailure,
		Details:   details,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	if d.Resource != nil {
		entry.Resource = string(d.Resource.Kind())
		entry.ResourceID = d.Resource.ResourceID()
	}
	g.logger.Info("authorization denied",
		slog.String("actor_id", req.Actor.ID),
		slog.String("policy", p.Name()),
		slog.String("reason", d.Reason),
		slog.String("operation", req.Operation),
	)
	g.record(ctx, entry)
}

func (g *Gate) record(ctx context.Context, entry audit.Entry) {
	if g.recorder == nil {
		return
	}
	g.recorder.Record(ctx, entry)
}
