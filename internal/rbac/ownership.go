package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrResourceNotFound is returned by fetchers when nothing exists at the id.
var ErrResourceNotFound = errors.New("rbac: resource not found")

// ResourceKind enumerates the protected resource types.
type ResourceKind string

// Protected resource kinds.
const (
	KindContent ResourceKind = "Content"
	KindUser    ResourceKind = "User"
)

// Owner reference field names.
const (
	OwnerFieldCreatedBy = "createdBy"
	OwnerFieldID        = "id"
)

// Resource is a protected entity instance that can answer ownership queries.
type Resource interface {
	Kind() ResourceKind
	ResourceID() string
	// OwnerRef resolves the owner reference stored under field.
	OwnerRef(field string) (string, bool)
}

// IsOwner reports whether actor owns resource through ownerField. Missing or
// empty references never match. Admin bypass is applied by the gate.
func IsOwner(actor *Actor, resource Resource, ownerField string) bool {
	if actor == nil || resource == nil || actor.ID == "" {
		return false
	}
	ref, ok := resource.OwnerRef(ownerField)
	if !ok {
		return false
	}
	ref = strings.TrimSpace(ref)
	return ref != "" && ref == actor.ID
}

// FetchFunc loads a resource by id, returning ErrResourceNotFound when absent.
type FetchFunc func(ctx context.Context, id string) (Resource, error)

// ResourceBinding registers the fetcher of one resource kind.
type ResourceBinding struct {
	Kind  ResourceKind
	Fetch FetchFunc
}

// ResourceTable is the static dispatch table from kind to fetcher.
type ResourceTable struct {
	fetchers map[ResourceKind]FetchFunc
}

// NewResourceTable builds the table; duplicate or incomplete bindings are an
// error.
func NewResourceTable(bindings ...ResourceBinding) (*ResourceTable, error) {
	fetchers := make(map[ResourceKind]FetchFunc, len(bindings))
	for _, b := range bindings {
		if b.Kind == "" || b.Fetch == nil {
			return nil, fmt.Errorf("rbac: incomplete resource binding %q", b.Kind)
		}
		if _, dup := fetchers[b.Kind]; dup {
			return nil, fmt.Errorf("rbac: duplicate resource binding %q", b.Kind)
		}
		fetchers[b.Kind] = b.Fetch
	}
	return &ResourceTable{fetchers: fetchers}, nil
}

// Fetch loads the resource of kind with id.
func (t *ResourceTable) Fetch(ctx context.Context, kind ResourceKind, id string) (Resource, error) {
	if t == nil {
		return nil, fmt.Errorf("rbac: no resource table configured")
	}
	fetch, ok := t.fetchers[kind]
	if !ok {
		return nil, fmt.Errorf("rbac: no fetcher bound for %q", kind)
	}
	res, err := fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrResourceNotFound
	}
	return res, nil
}
