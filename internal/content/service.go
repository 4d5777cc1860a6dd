package content

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

const reasonPrivate = "private content"

// RepositoryPort defines data access methods for content.
type RepositoryPort interface {
	List(ctx context.Context, filters ListFilters, offset, limit int) ([]Content, error)
	Count(ctx context.Context, filters ListFilters) (int, error)
	Get(ctx context.Context, id string) (Content, error)
	Create(ctx context.Context, item Content) error
	Update(ctx context.Context, item Content) error
	Delete(ctx context.Context, id string) error
}

// Auditor receives denied private reads.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry)
}

// Service handles content business logic.
type Service struct {
	repo    RepositoryPort
	auditor Auditor
	now     func() time.Time
	newID   func() string
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, auditor Auditor) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// ListPublic returns public items for anonymous readers.
func (s *Service) ListPublic(ctx context.Context, page, limit int) (ListResult, error) {
	return s.list(ctx, ListFilters{Visibility: VisibilityPublic, Page: page, Limit: limit})
}

// ListOwned returns items created by the scope owner.
func (s *Service) ListOwned(ctx context.Context, scope *rbac.OwnerScope, page, limit int) (ListResult, error) {
	if scope == nil || scope.OwnerID == "" {
		return ListResult{}, ErrMissingScope
	}
	return s.list(ctx, ListFilters{CreatedBy: scope.OwnerID, Page: page, Limit: limit})
}

func (s *Service) list(ctx context.Context, filters ListFilters) (ListResult, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultLimit
	}
	if filters.Limit > maxLimit {
		filters.Limit = maxLimit
	}
	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	pagination := shared.NewPagination(filters.Page, filters.Limit, total)
	items, err := s.repo.List(ctx, filters, pagination.Offset(), filters.Limit)
	if err != nil {
		return ListResult{}, err
	}
	if items == nil {
		items = []Content{}
	}
	return ListResult{Items: items, Pagination: pagination}, nil
}

// Get returns an item readable by actor. Private items are limited to their
// owner and admins; other readers get ErrPrivate and an audited denial.
func (s *Service) Get(ctx context.Context, req rbac.Request, id string) (Content, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return Content{}, err
	}
	if item.Visibility != VisibilityPrivate {
		return item, nil
	}
	actor := req.Actor
	if actor != nil && (actor.Role == rbac.RoleAdmin || rbac.IsOwner(actor, item, rbac.OwnerFieldCreatedBy)) {
		return item, nil
	}
	if s.auditor != nil {
		entry := audit.Entry{
			Action:     audit.ActionPermissionDenied,
			Resource:   string(rbac.KindContent),
			ResourceID: item.ID,
			Status:     audit.StatusFailure,
			Details: map[string]any{
				"reason":    reasonPrivate,
				"method":    req.Method,
				"operation": req.Operation,
			},
			IPAddress: req.IPAddress,
			UserAgent: req.UserAgent,
		}
		if actor != nil {
			entry.ActorID = actor.ID
			entry.Details["userRole"] = string(actor.Role)
		}
		s.auditor.Record(ctx, entry)
	}
	return Content{}, ErrPrivate
}

// Find returns an item without visibility checks.
func (s *Service) Find(ctx context.Context, id string) (Content, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a new item owned by author.
func (s *Service) Create(ctx context.Context, author *rbac.Actor, input CreateInput) (Content, error) {
	visibility, err := parseVisibility(input.Visibility)
	if err != nil {
		return Content{}, err
	}
	now := s.now()
	item := Content{
		ID:         s.newID(),
		Title:      strings.TrimSpace(input.Title),
		Body:       input.Body,
		CreatedBy:  author.ID,
		Visibility: visibility,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return Content{}, err
	}
	return item, nil
}

// Update applies edits to an item already resolved by the gate.
func (s *Service) Update(ctx context.Context, item Content, input UpdateInput) (Content, error) {
	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Body != nil {
		item.Body = *input.Body
	}
	if input.Visibility != nil {
		visibility, err := parseVisibility(*input.Visibility)
		if err != nil {
			return Content{}, err
		}
		item.Visibility = visibility
	}
	item.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, item); err != nil {
		return Content{}, err
	}
	return item, nil
}

// Delete removes an item.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Fetch resolves an item for the authorization gate.
func (s *Service) Fetch(ctx context.Context, id string) (rbac.Resource, error) {
	item, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, rbac.ErrResourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}
