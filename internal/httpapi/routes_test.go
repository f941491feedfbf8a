package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/formcache/directory"
	"github.com/unkn0wn-root/formcache/menu"
)

type fakeDirectory struct {
	forms      directory.FormDirectory
	expires    time.Time
	refreshErr error
	refreshed  int
}

func (f *fakeDirectory) Forms(context.Context) directory.FormDirectory { return f.forms }
func (f *fakeDirectory) Refresh(context.Context) error {
	f.refreshed++
	return f.refreshErr
}
func (f *fakeDirectory) Expiry(context.Context) (time.Time, bool) {
	return f.expires, !f.expires.IsZero()
}

func init() { gin.SetMode(gin.TestMode) }

func do(t *testing.T, r http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestListForms(t *testing.T) {
	exp := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	dir := &fakeDirectory{
		forms:   directory.FormDirectory{{ID: "2", Name: "Discharge"}, {ID: "1", Name: "Enlistment"}},
		expires: exp,
	}
	r := NewRouter(NewHandler(dir, nil, nil))

	w := do(t, r, http.MethodGet, "/api/v1/forms")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data      []directory.Form `json:"data"`
		ExpiresAt time.Time        `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []directory.Form{{ID: "2", Name: "Discharge"}, {ID: "1", Name: "Enlistment"}}, body.Data)
	assert.True(t, exp.Equal(body.ExpiresAt))
}

func TestListFormsEmptyIsArray(t *testing.T) {
	r := NewRouter(NewHandler(&fakeDirectory{}, nil, nil))
	w := do(t, r, http.MethodGet, "/api/v1/forms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}

func TestRefresh(t *testing.T) {
	dir := &fakeDirectory{}
	r := NewRouter(NewHandler(dir, nil, nil))

	w := do(t, r, http.MethodPost, "/api/v1/forms/refresh")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, dir.refreshed)

	dir.refreshErr = errors.New("redis down")
	w = do(t, r, http.MethodPost, "/api/v1/forms/refresh")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMenu(t *testing.T) {
	dir := &fakeDirectory{forms: directory.FormDirectory{{ID: "9", Name: "Award Request"}}}
	b := menu.NewBuilder(menu.DefaultPaths("/admin"), dir, menu.StaticVersions{})
	r := NewRouter(NewHandler(dir, b, nil))

	w := do(t, r, http.MethodGet, "/api/v1/menu")
	require.Equal(t, http.StatusOK, w.Code)

	var m menu.Menu
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	sub := m.Find("Submissions")
	require.NotNil(t, sub)
	require.Len(t, sub.Items, 2)
	assert.Equal(t, "/admin/submissions?form=9", sub.Items[1].Link)
}

func TestMenuNotConfigured(t *testing.T) {
	r := NewRouter(NewHandler(&fakeDirectory{}, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/v1/menu").Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz").Code)
}
