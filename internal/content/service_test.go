package content

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

type mockRepository struct {
	items map[string]Content
	gets  int
}

func newMockRepository(items ...Content) *mockRepository {
	m := &mockRepository{items: map[string]Content{}}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

func (m *mockRepository) matching(f ListFilters) []Content {
	var out []Content
	for _, item := range m.items {
		if f.Visibility != "" && item.Visibility != f.Visibility {
			continue
		}
		if f.CreatedBy != "" && item.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRepository) List(ctx context.Context, f ListFilters, offset, limit int) ([]Content, error) {
	all := m.matching(f)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *mockRepository) Count(ctx context.Context, f ListFilters) (int, error) {
	return len(m.matching(f)), nil
}

func (m *mockRepository) Get(ctx context.Context, id string) (Content, error) {
	m.gets++
	item, ok := m.items[id]
	if !ok {
		return Content{}, ErrNotFound
	}
	return item, nil
}

func (m *mockRepository) Create(ctx context.Context, item Content) error {
	m.items[item.ID] = item
	return nil
}

func (m *mockRepository) Update(ctx context.Context, item Content) error {
	if _, ok := m.items[item.ID]; !ok {
		return ErrNotFound
	}
	m.items[item.ID] = item
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (r *recordingAuditor) Record(ctx context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

func fixtureItems() []Content {
	return []Content{
		{ID: "c1", Title: "Foreign", CreatedBy: "u2", Visibility: VisibilityPublic},
		{ID: "c2", Title: "Mine", CreatedBy: "u1", Visibility: VisibilityPublic},
		{ID: "c3", Title: "Secret", CreatedBy: "u2", Visibility: VisibilityPrivate},
	}
}

func newTestService(repo *mockRepository) (*Service, *recordingAuditor) {
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "c-new" }
	return svc, auditor
}

func TestListPublicHidesPrivate(t *testing.T) {
	svc, _ := newTestService(newMockRepository(fixtureItems()...))

	result, err := svc.ListPublic(context.Background(), 0, 0)
	require.NoError(t, err)

	require.Len(t, result.Items, 2)
	for _, item := range result.Items {
		assert.Equal(t, VisibilityPublic, item.Visibility)
	}
	assert.Equal(t, defaultLimit, result.Pagination.PerPage)
}

func TestListOwnedUsesScope(t *testing.T) {
	svc, _ := newTestService(newMockRepository(fixtureItems()...))

	result, err := svc.ListOwned(context.Background(), &rbac.OwnerScope{Field: rbac.OwnerFieldCreatedBy, OwnerID: "u2"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)

	_, err = svc.ListOwned(context.Background(), nil, 1, 10)
	assert.ErrorIs(t, err, ErrMissingScope)
}

func TestGetPrivateContent(t *testing.T) {
	svc, auditor := newTestService(newMockRepository(fixtureItems()...))
	ctx := context.Background()

	_, err := svc.Get(ctx, rbac.Request{Actor: &rbac.Actor{ID: "u2", Role: rbac.RoleUser}}, "c3")
	assert.NoError(t, err, "owner")

	_, err = svc.Get(ctx, rbac.Request{Actor: &rbac.Actor{ID: "a1", Role: rbac.RoleAdmin}}, "c3")
	assert.NoError(t, err, "admin")

	_, err = svc.Get(ctx, rbac.Request{Actor: &rbac.Actor{ID: "u1", Role: rbac.RoleViewer}, Method: "GET", Operation: "/content/c3"}, "c3")
	assert.ErrorIs(t, err, ErrPrivate)

	require.Len(t, auditor.entries, 1)
	entry := auditor.entries[0]
	assert.Equal(t, audit.ActionPermissionDenied, entry.Action)
	assert.Equal(t, "u1", entry.ActorID)
	assert.Equal(t, "c3", entry.ResourceID)
	assert.Equal(t, reasonPrivate, entry.Details["reason"])

	_, err = svc.Get(ctx, rbac.Request{}, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAndUpdate(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	item, err := svc.Create(context.Background(), &rbac.Actor{ID: "u1", Role: rbac.RoleUser}, CreateInput{Title: " Hello ", Body: "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", item.Title)
	assert.Equal(t, "u1", item.CreatedBy)
	assert.Equal(t, VisibilityPublic, item.Visibility)

	private := "private"
	item, err = svc.Update(context.Background(), item, UpdateInput{Visibility: &private})
	require.NoError(t, err)
	assert.Equal(t, VisibilityPrivate, repo.items["c-new"].Visibility)

	bad := "friends"
	_, err = svc.Update(context.Background(), item, UpdateInput{Visibility: &bad})
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestFetchForGate(t *testing.T) {
	svc, _ := newTestService(newMockRepository(fixtureItems()...))

	res, err := svc.Fetch(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, rbac.IsOwner(&rbac.Actor{ID: "u2"}, res, rbac.OwnerFieldCreatedBy))

	_, err = svc.Fetch(context.Background(), "zzz")
	assert.ErrorIs(t, err, rbac.ErrResourceNotFound)
}
