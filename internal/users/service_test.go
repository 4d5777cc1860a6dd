package users

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

type mockRepository struct {
	users     map[string]User
	createErr error
	updateErr error
	getErr    error
}

func newMockRepository(users ...User) *mockRepository {
	m := &mockRepository{users: map[string]User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockRepository) matching(f ListFilters) []User {
	var out []User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.IsActive != nil && u.IsActive != *f.IsActive {
			continue
		}
		if f.Search != "" && !strings.Contains(u.Name, f.Search) && !strings.Contains(u.Email, f.Search) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockRepository) List(ctx context.Context, f ListFilters, offset, limit int) ([]User, error) {
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

func (m *mockRepository) Get(ctx context.Context, id string) (User, error) {
	if m.getErr != nil {
		return User{}, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *mockRepository) Create(ctx context.Context, user User) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrDuplicateEmail
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockRepository) Update(ctx context.Context, user User) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.users[user.ID]; !ok {
		return ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockRepository) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *mockRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastLoginAt = &at
	m.users[id] = u
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockRepository) Stats(ctx context.Context) (Stats, error) {
	return Stats{Total: len(m.users)}, nil
}

func (m *mockRepository) RecentLogins(ctx context.Context, limit int) ([]User, error) {
	return nil, nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (r *recordingAuditor) Record(ctx context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}

func (r *recordingAuditor) last(t *testing.T) audit.Entry {
	t.Helper()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

var adminCaller = Caller{
	Actor:     &rbac.Actor{ID: "admin-1", Email: "admin@example.com", Role: rbac.RoleAdmin, IsActive: true},
	IPAddress: "10.0.0.9",
	UserAgent: "test",
}

func newTestService(repo *mockRepository) (*Service, *recordingAuditor) {
	auditor := &recordingAuditor{}
	svc := NewService(repo, auditor, nil)
	svc.bcryptCost = bcrypt.MinCost
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	n := 0
	svc.newID = func() string {
		n++
		return "new-" + string(rune('0'+n))
	}
	return svc, auditor
}

func seedUser(id string, role rbac.Role) User {
	return User{ID: id, Email: id + "@example.com", Name: "User " + id, Role: role, IsActive: true}
}

func TestCreateAuditsSuccess(t *testing.T) {
	repo := newMockRepository(seedUser("admin-1", rbac.RoleAdmin))
	svc, auditor := newTestService(repo)

	user, err := svc.Create(context.Background(), adminCaller, CreateInput{
		Email:    "  Writer@Example.COM ",
		Name:     " Writer ",
		Password: "supersecret",
		Role:     "Viewer",
	})
	require.NoError(t, err)

	assert.Equal(t, "new-1", user.ID)
	assert.Equal(t, "writer@example.com", user.Email)
	assert.Equal(t, "Writer", user.Name)
	assert.Equal(t, rbac.RoleViewer, user.Role)
	assert.Equal(t, "admin-1", user.CreatedBy)
	assert.True(t, user.IsActive)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("supersecret")))

	entry := auditor.last(t)
	assert.Equal(t, audit.ActionUserCreated, entry.Action)
	assert.Equal(t, audit.StatusSuccess, entry.Status)
	assert.Equal(t, "admin-1", entry.ActorID)
	assert.Equal(t, "User", entry.Resource)
	assert.Equal(t, "new-1", entry.ResourceID)
	assert.Equal(t, "10.0.0.9", entry.IPAddress)
	assert.Equal(t, "admin@example.com", entry.Details["createdBy"])
}

func TestCreateAuditsFailure(t *testing.T) {
	repo := newMockRepository(seedUser("taken", rbac.RoleUser))
	svc, auditor := newTestService(repo)

	_, err := svc.Create(context.Background(), adminCaller, CreateInput{Email: "TAKEN@example.com", Name: "x", Password: "supersecret", Role: "user"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.Create(context.Background(), adminCaller, CreateInput{Email: "e@example.com", Name: "x", Password: "supersecret", Role: "editor"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	require.Len(t, auditor.entries, 2)
	for _, entry := range auditor.entries {
		assert.Equal(t, audit.ActionUserCreated, entry.Action)
		assert.Equal(t, audit.StatusFailure, entry.Status)
		assert.NotEmpty(t, entry.Details["error"])
	}
}

func TestRegisterForcesUserRole(t *testing.T) {
	svc, auditor := newTestService(newMockRepository())

	user, err := svc.Register(context.Background(), "new@example.com", "New", "supersecret")
	require.NoError(t, err)

	assert.Equal(t, rbac.RoleUser, user.Role)
	assert.Empty(t, user.CreatedBy)
	assert.Empty(t, auditor.entries)
}

func TestUpdateRecordsRoleChange(t *testing.T) {
	repo := newMockRepository(seedUser("admin-1", rbac.RoleAdmin), seedUser("u1", rbac.RoleViewer))
	svc, auditor := newTestService(repo)
	role := "user"
	name := "Renamed"

	user, err := svc.Update(context.Background(), adminCaller, "u1", UpdateInput{Role: &role, Name: &name})
	require.NoError(t, err)

	assert.Equal(t, rbac.RoleUser, user.Role)
	assert.Equal(t, "Renamed", repo.users["u1"].Name)
	entry := auditor.last(t)
	assert.Equal(t, audit.ActionUserUpdated, entry.Action)
	assert.Equal(t, "viewer", entry.Details["oldRole"])
	assert.Equal(t, "user", entry.Details["newRole"])
	assert.Equal(t, map[string]any{"role": "user", "name": "Renamed"}, entry.Details["changes"])
}

func TestAdminCannotDeactivateSelf(t *testing.T) {
	repo := newMockRepository(seedUser("admin-1", rbac.RoleAdmin))
	svc, auditor := newTestService(repo)
	inactive := false

	_, err := svc.Update(context.Background(), adminCaller, "admin-1", UpdateInput{IsActive: &inactive})

	assert.ErrorIs(t, err, ErrSelfAction)
	assert.True(t, repo.users["admin-1"].IsActive)
	assert.Equal(t, audit.StatusFailure, auditor.last(t).Status)
}

func TestAssignRole(t *testing.T) {
	repo := newMockRepository(seedUser("u1", rbac.RoleUser))
	svc, auditor := newTestService(repo)

	user, err := svc.AssignRole(context.Background(), adminCaller, "u1", "admin")
	require.NoError(t, err)
	assert.Equal(t, rbac.RoleAdmin, user.Role)
	entry := auditor.last(t)
	assert.Equal(t, audit.ActionRoleAssigned, entry.Action)
	assert.Equal(t, audit.StatusSuccess, entry.Status)
	assert.Equal(t, "user", entry.Details["oldRole"])
	assert.Equal(t, "admin", entry.Details["newRole"])

	_, err = svc.AssignRole(context.Background(), adminCaller, "u1", "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	assert.Equal(t, audit.StatusFailure, auditor.last(t).Status)

	_, err = svc.AssignRole(context.Background(), adminCaller, "ghost", "viewer")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "ghost", auditor.last(t).ResourceID)
}

func TestDelete(t *testing.T) {
	repo := newMockRepository(seedUser("admin-1", rbac.RoleAdmin), seedUser("u1", rbac.RoleUser))
	svc, auditor := newTestService(repo)

	err := svc.Delete(context.Background(), adminCaller, "admin-1")
	assert.ErrorIs(t, err, ErrSelfAction)
	assert.Contains(t, repo.users, "admin-1")

	require.NoError(t, svc.Delete(context.Background(), adminCaller, "u1"))
	assert.NotContains(t, repo.users, "u1")

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, audit.StatusFailure, auditor.entries[0].Status)
	success := auditor.entries[1]
	assert.Equal(t, audit.ActionUserDeleted, success.Action)
	assert.Equal(t, audit.StatusSuccess, success.Status)
	assert.Equal(t, "u1@example.com", success.Details["email"])
	assert.Equal(t, "user", success.Details["role"])
}

func TestMutationStoreFaultIsAudited(t *testing.T) {
	repo := newMockRepository(seedUser("u1", rbac.RoleUser))
	repo.updateErr = errors.New("connection refused")
	svc, auditor := newTestService(repo)

	_, err := svc.AssignRole(context.Background(), adminCaller, "u1", "viewer")

	assert.Error(t, err)
	assert.Equal(t, audit.StatusFailure, auditor.last(t).Status)
	assert.Equal(t, "connection refused", auditor.last(t).Details["error"])
}

func TestListNormalizesFilters(t *testing.T) {
	repo := newMockRepository(seedUser("a", rbac.RoleUser), seedUser("b", rbac.RoleUser), seedUser("c", rbac.RoleViewer))
	svc, _ := newTestService(repo)

	result, err := svc.List(context.Background(), ListFilters{Role: "USER", Limit: 1, Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Users, 1)
	assert.Equal(t, "b", result.Users[0].ID)
	assert.Equal(t, 2, result.Pagination.Total)
	assert.Equal(t, 2, result.Pagination.TotalPages)

	_, err = svc.List(context.Background(), ListFilters{Role: "editor"})
	assert.ErrorIs(t, err, ErrInvalidRole)

	result, err = svc.List(context.Background(), ListFilters{Search: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, result.Users)
	assert.Equal(t, defaultLimit, result.Pagination.PerPage)
}

func TestChangePassword(t *testing.T) {
	repo := newMockRepository()
	svc, auditor := newTestService(repo)
	hash, err := svc.HashPassword("oldpassword")
	require.NoError(t, err)
	u := seedUser("u1", rbac.RoleUser)
	u.PasswordHash = hash
	repo.users["u1"] = u
	caller := Caller{Actor: u.Actor()}

	err = svc.ChangePassword(context.Background(), caller, PasswordInput{CurrentPassword: "wrong", NewPassword: "newpassword"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	require.NoError(t, svc.ChangePassword(context.Background(), caller, PasswordInput{CurrentPassword: "oldpassword", NewPassword: "newpassword"}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users["u1"].PasswordHash), []byte("newpassword")))

	require.Len(t, auditor.entries, 2)
	assert.Equal(t, audit.ActionPasswordChanged, auditor.entries[1].Action)
	assert.Equal(t, "u1", auditor.entries[1].ActorID)
}

func TestFetchMapsNotFound(t *testing.T) {
	svc, _ := newTestService(newMockRepository(seedUser("u1", rbac.RoleUser)))

	res, err := svc.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	owner, ok := res.OwnerRef(rbac.OwnerFieldID)
	assert.True(t, ok)
	assert.Equal(t, "u1", owner)

	_, err = svc.Fetch(context.Background(), "ghost")
	assert.ErrorIs(t, err, rbac.ErrResourceNotFound)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "someone@example.com", NormalizeEmail("  SomeOne@Example.com "))
	assert.Equal(t, "strasse@example.com", NormalizeEmail("STRASSE@example.com"))
}
