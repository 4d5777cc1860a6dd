package content

import (
	"errors"
	"time"

	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
	"github.com/odyssey-erp/odyssey-cms/internal/shared"
)

var (
	// ErrNotFound indicates the content item does not exist.
	ErrNotFound = errors.New("content: not found")
	// ErrPrivate indicates a private item requested by someone other than its owner.
	ErrPrivate = errors.New("content: private")
	// ErrInvalidVisibility indicates an unknown visibility value.
	ErrInvalidVisibility = errors.New("content: invalid visibility")
	// ErrMissingScope indicates an owner listing without an owner filter.
	ErrMissingScope = errors.New("content: owner scope required")
)

// Visibility controls who may read an item.
type Visibility string

// Visibility values.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func parseVisibility(raw string) (Visibility, error) {
	switch Visibility(raw) {
	case "", VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	default:
		return "", ErrInvalidVisibility
	}
}

// Content is an authored item.
type Content struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	CreatedBy  string     `json:"createdBy"`
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Kind implements rbac.Resource.
func (c Content) Kind() rbac.ResourceKind { return rbac.KindContent }

// ResourceID implements rbac.Resource.
func (c Content) ResourceID() string { return c.ID }

// OwnerRef implements rbac.Resource; only createdBy is an owner field.
func (c Content) OwnerRef(field string) (string, bool) {
	if field != rbac.OwnerFieldCreatedBy {
		return "", false
	}
	return c.CreatedBy, true
}

// CreateInput holds a new item.
type CreateInput struct {
	Title      string `json:"title" validate:"required,max=200"`
	Body       string `json:"body" validate:"required"`
	Visibility string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
}

// UpdateInput holds optional edits.
type UpdateInput struct {
	Title      *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Body       *string `json:"body,omitempty" validate:"omitempty,min=1"`
	Visibility *string `json:"visibility,omitempty" validate:"omitempty,oneof=public private"`
}

// ListFilters narrows listings. Empty fields match everything.
type ListFilters struct {
	Visibility Visibility
	CreatedBy  string
	Page       int
	Limit      int
}

// ListResult is one page of content.
type ListResult struct {
	Items      []Content         `json:"content"`
	Pagination shared.Pagination `json:"pagination"`
}
