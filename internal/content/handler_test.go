package content

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-cms/internal/audit"
	"github.com/odyssey-erp/odyssey-cms/internal/rbac"
)

type handlerFixture struct {
	repo    *mockRepository
	denials *recordingAuditor
	router  http.Handler
}

func newHandlerFixture(t *testing.T, actor *rbac.Actor) *handlerFixture {
	t.Helper()
	repo := newMockRepository(fixtureItems()...)
	denials := &recordingAuditor{}
	svc := NewService(repo, denials)
	table, err := rbac.NewResourceTable(rbac.ResourceBinding{Kind: rbac.KindContent, Fetch: svc.Fetch})
	require.NoError(t, err)
	gate := rbac.NewGate(rbac.GateConfig{Resources: table, Recorder: denials})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor != nil {
				r = r.WithContext(rbac.ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/content", NewHandler(nil, svc, rbac.Middleware{Gate: gate}).MountRoutes)
	return &handlerFixture{repo: repo, denials: denials, router: r}
}

func (f *handlerFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestPublicListNeedsNoActor(t *testing.T) {
	f := newHandlerFixture(t, nil)

	rec := f.do(http.MethodGet, "/content", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Secret")
}

func TestMyContentIsScopedForEveryRole(t *testing.T) {
	for _, role := range []rbac.Role{rbac.RoleUser, rbac.RoleAdmin} {
		t.Run(string(role), func(t *testing.T) {
			f := newHandlerFixture(t, &rbac.Actor{ID: "u1", Role: role})

			rec := f.do(http.MethodGet, "/content/my", "")

			require.Equal(t, http.StatusOK, rec.Code)
			var body ListResult
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Len(t, body.Items, 1)
			assert.Equal(t, "c2", body.Items[0].ID)
			assert.NotContains(t, rec.Body.String(), "Secret")
		})
	}
}

func TestDeleteContentScenarios(t *testing.T) {
	cases := []struct {
		name      string
		actor     *rbac.Actor
		id        string
		status    int
		code      string
		deleted   bool
		audited   int
		fetchFree bool
	}{
		{name: "anonymous", actor: nil, id: "c1", status: http.StatusUnauthorized, code: rbac.CodeNoAuth, fetchFree: true},
		{name: "viewer lacks permission", actor: &rbac.Actor{ID: "u1", Role: rbac.RoleViewer}, id: "c1", status: http.StatusForbidden, code: rbac.CodeForbidden, audited: 1, fetchFree: true},
		{name: "user not owner", actor: &rbac.Actor{ID: "u1", Role: rbac.RoleUser}, id: "c1", status: http.StatusForbidden, code: rbac.CodeNotOwner, audited: 1},
		{name: "user owner", actor: &rbac.Actor{ID: "u1", Role: rbac.RoleUser}, id: "c2", status: http.StatusOK, deleted: true},
		{name: "admin bypass", actor: &rbac.Actor{ID: "a1", Role: rbac.RoleAdmin}, id: "c1", status: http.StatusOK, deleted: true},
		{name: "unknown id", actor: &rbac.Actor{ID: "u1", Role: rbac.RoleUser}, id: "zzz", status: http.StatusNotFound, code: rbac.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t, tc.actor)

			rec := f.do(http.MethodDelete, "/content/"+tc.id, "")

			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				assert.Contains(t, rec.Body.String(), `"code":"`+tc.code+`"`)
			}
			_, exists := f.repo.items[tc.id]
			if tc.deleted {
				assert.False(t, exists)
			}
			assert.Len(t, f.denials.entries, tc.audited)
			if tc.fetchFree {
				assert.Zero(t, f.repo.gets)
			}
		})
	}
}

func TestNotOwnerDenialIsAudited(t *testing.T) {
	f := newHandlerFixture(t, &rbac.Actor{ID: "u1", Role: rbac.RoleUser})

	rec := f.do(http.MethodPut, "/content/c1", `{"title":"Hijack"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Foreign", f.repo.items["c1"].Title)
	require.Len(t, f.denials.entries, 1)
	entry := f.denials.entries[0]
	assert.Equal(t, audit.ActionPermissionDenied, entry.Action)
	assert.Equal(t, audit.StatusFailure, entry.Status)
	assert.Equal(t, "Content", entry.Resource)
	assert.Equal(t, "c1", entry.ResourceID)
}

func TestOwnerAndAdminUpdate(t *testing.T) {
	f := newHandlerFixture(t, &rbac.Actor{ID: "u1", Role: rbac.RoleUser})
	rec := f.do(http.MethodPut, "/content/c2", `{"title":"Edited"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Edited", f.repo.items["c2"].Title)

	f = newHandlerFixture(t, &rbac.Actor{ID: "a1", Role: rbac.RoleAdmin})
	rec = f.do(http.MethodPut, "/content/c1", `{"visibility":"private"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, VisibilityPrivate, f.repo.items["c1"].Visibility)

	rec = f.do(http.MethodPut, "/content/c1", `{"visibility":"friends"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRequiresPermission(t *testing.T) {
	f := newHandlerFixture(t, &rbac.Actor{ID: "v1", Role: rbac.RoleViewer})
	rec := f.do(http.MethodPost, "/content", `{"title":"x","body":"y"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f = newHandlerFixture(t, &rbac.Actor{ID: "u1", Role: rbac.RoleUser})
	rec = f.do(http.MethodPost, "/content", `{"title":"x","body":"y"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"createdBy":"u1"`)

	rec = f.do(http.MethodPost, "/content", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrivateReadAndMine(t *testing.T) {
	f := newHandlerFixture(t, &rbac.Actor{ID: "u1", Role: rbac.RoleUser})

	rec := f.do(http.MethodGet, "/content/c3", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodGet, "/content/my", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mine")
	assert.NotContains(t, rec.Body.String(), "Foreign")
}
