package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockhelper.org/internal/auth"
	"stockhelper.org/internal/i18n"
	"stockhelper.org/internal/store/memory"
)

const (
	adminName     = "admin"
	adminPassword = "admin-secret"
	clerkName     = "clerk"
	clerkPassword = "clerk-secret"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	perms *auth.PermissionService
	users *auth.UserService
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// newTestAPI serves the API over a memory store seeded with the built-in
// catalog, an Administrator user and a Cashier clerk.
func newTestAPI(t *testing.T, mutate ...func(*Deps)) *apiClient {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	opts := []auth.Option{auth.WithPasswordMode(auth.PasswordModePlain)}

	perms, err := auth.NewPermissionService(store, opts...)
	require.NoError(t, err)
	users, err := auth.NewUserService(store, perms, opts...)
	require.NoError(t, err)
	login, err := auth.NewLoginService(users, opts...)
	require.NoError(t, err)

	_, err = perms.EnsureCatalog(ctx)
	require.NoError(t, err)
	pos, err := perms.GetAll(ctx)
	require.NoError(t, err)
	var posPatent auth.Component
	for _, c := range pos {
		if c.Identity().Name == auth.PermPointOfSale {
			posPatent = c
		}
	}
	require.NotNil(t, posPatent)
	require.NoError(t, perms.Insert(ctx, auth.NewFamily(auth.RoleCashier, posPatent)))

	require.NoError(t, users.Insert(ctx, &auth.User{Name: adminName, Password: adminPassword, IsActive: true, Role: auth.RoleAdministrator}))
	require.NoError(t, users.Insert(ctx, &auth.User{Name: clerkName, Password: clerkPassword, IsActive: true, Role: auth.RoleCashier}))

	deps := Deps{
		Permissions: perms,
		Users:       users,
		Login:       login,
		Version:     "test",
	}
	for _, m := range mutate {
		m(&deps)
	}
	srv := httptest.NewServer(New(deps).Handler())
	t.Cleanup(srv.Close)

	return &apiClient{baseURL: srv.URL, client: srv.Client(), t: t, perms: perms, users: users}
}

type creds struct{ name, password string }

var (
	asAdmin = &creds{adminName, adminPassword}
	asClerk = &creds{clerkName, clerkPassword}
)

func (c *apiClient) do(method, path string, body any, who *creds, headers ...string) (*http.Response, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.SetBasicAuth(who.name, who.password)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	var decoded map[string]any
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &decoded), "body %s", raw)
	}
	return resp, decoded
}

func (c *apiClient) list(path string, who *creds) []map[string]any {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	require.NoError(c.t, err)
	req.SetBasicAuth(who.name, who.password)
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	var out []map[string]any
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthAndReadiness(t *testing.T) {
	failing := errors.New("db down")
	api := newTestAPI(t, func(d *Deps) {
		d.Ready = pingFunc(func(context.Context) error { return failing })
	})

	resp, body := api.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, body = api.do(http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "db down", body["error"])
}

func TestCredentialsAreRequired(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodGet, "/v1/users", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.NotEmpty(t, body["request_id"])

	resp, _ = api.do(http.MethodGet, "/v1/users", nil, &creds{adminName, "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = api.do(http.MethodGet, "/v1/users", nil, asClerk)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, []any{auth.PermUserManagement}, body["required"])
}

func TestLoginEndpoint(t *testing.T) {
	api := newTestAPI(t)

	resp, body := api.do(http.MethodPost, "/v1/login", map[string]string{"name": clerkName, "password": clerkPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, clerkName, body["name"])
	assert.Equal(t, auth.RoleCashier, body["role"])
	assert.Contains(t, body["permissions"], auth.PermPointOfSale)

	resp, body = api.do(http.MethodPost, "/v1/login", map[string]string{"name": clerkName, "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, body["detail"])

	resp, _ = api.do(http.MethodGet, "/v1/login", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/v1/login", map[string]any{"name": clerkName, "extra": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	resp, body := api.do(http.MethodGet, "/v1/me", nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{auth.RoleAdministrator}, body["roles"])
	assert.Contains(t, body["permissions"], auth.PermUserManagement)
}

func TestComponentLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp, patent := api.do(http.MethodPost, "/v1/patents", map[string]string{"name": "Audit"}, asAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	patentID := patent["id"].(string)
	assert.Equal(t, "/v1/components/"+patentID, resp.Header.Get("Location"))
	assert.Equal(t, "patent", patent["kind"])

	resp, _ = api.do(http.MethodPost, "/v1/patents", map[string]string{"name": "Audit"}, asAdmin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/v1/patents", map[string]string{"name": "  "}, asAdmin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, family := api.do(http.MethodPost, "/v1/families", map[string]any{"name": "Auditor", "children": []string{patentID}}, asAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	familyID := family["id"].(string)

	resp, body := api.do(http.MethodPost, "/v1/families", map[string]any{"name": "Ghosts", "children": []string{"6f1c8f7e-2f4a-4a53-9d55-1b5c0b1f2a10"}}, asAdmin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["detail"])

	resp, got := api.do(http.MethodGet, "/v1/components/"+familyID, nil, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	children := got["children"].([]any)
	require.Len(t, children, 1)
	assert.Equal(t, "Audit", children[0].(map[string]any)["name"])

	resp, got = api.do(http.MethodPut, "/v1/components/"+patentID, map[string]string{"name": "Auditing"}, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Auditing", got["name"])

	resp, _ = api.do(http.MethodPut, "/v1/components/"+patentID, map[string]any{"children": []string{}}, asAdmin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, got = api.do(http.MethodPut, "/v1/components/"+familyID, map[string]any{"children": []string{}}, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Auditor", got["name"])
	assert.Nil(t, got["children"])

	families := api.list("/v1/families", asAdmin)
	var names []string
	for _, f := range families {
		names = append(names, f["name"].(string))
	}
	assert.Contains(t, names, "Auditor")

	resp, _ = api.do(http.MethodDelete, "/v1/components/"+familyID, nil, asAdmin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(http.MethodGet, "/v1/components/"+familyID, nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(http.MethodDelete, "/v1/components/"+familyID, nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/v1/components/not-a-uuid", nil, asAdmin)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(http.MethodGet, "/v1/patents", nil, asClerk)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteFamilyInUse(t *testing.T) {
	api := newTestAPI(t)
	cashier, err := api.perms.FamilyByName(context.Background(), auth.RoleCashier)
	require.NoError(t, err)

	resp, body := api.do(http.MethodDelete, "/v1/components/"+cashier.ID.String(), nil, asAdmin)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, []any{clerkName}, body["users"])
}

func TestUserLifecycle(t *testing.T) {
	api := newTestAPI(t)

	resp, created := api.do(http.MethodPost, "/v1/users", map[string]any{"name": "dave", "password": "pw", "role": auth.RoleCashier}, asAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := created["id"].(string)
	assert.Equal(t, auth.RoleCashier, created["role"])
	assert.Equal(t, true, created["is_active"])
	assert.Nil(t, created["password"])

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"duplicate", map[string]any{"name": "dave", "password": "pw", "role": auth.RoleCashier}, http.StatusConflict},
		{"unknown role", map[string]any{"name": "erin", "password": "pw", "role": "Nobody"}, http.StatusNotFound},
		{"short name", map[string]any{"name": "ed", "password": "pw", "role": auth.RoleCashier}, http.StatusBadRequest},
		{"missing password", map[string]any{"name": "erin", "role": auth.RoleCashier}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp, _ := api.do(http.MethodPost, "/v1/users", tc.body, asAdmin)
		assert.Equal(t, tc.code, resp.StatusCode, tc.name)
	}

	resp, updated := api.do(http.MethodPut, "/v1/users/"+id, map[string]any{"is_active": false, "role": auth.RoleAdministrator}, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, updated["is_active"])
	assert.Equal(t, "dave", updated["name"])
	assert.Equal(t, auth.RoleAdministrator, updated["role"])

	active := api.list("/v1/users?active=true", asAdmin)
	for _, u := range active {
		assert.NotEqual(t, "dave", u["name"])
	}
	assert.Len(t, api.list("/v1/users", asAdmin), 3)

	// the stored password survives an update without one
	resp, _ = api.do(http.MethodPut, "/v1/users/"+id, map[string]any{"is_active": true}, asAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = api.do(http.MethodPost, "/v1/login", map[string]string{"name": "dave", "password": "pw"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = api.do(http.MethodDelete, "/v1/users/"+id, nil, asAdmin)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = api.do(http.MethodGet, "/v1/users/"+id, nil, asAdmin)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = api.do(http.MethodPatch, "/v1/users/"+id, nil, asAdmin)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestErrorsAreTranslated(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strings.es-AR"), []byte("permission denied=permiso denegado\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strings.en-US"), nil, 0o644))
	api := newTestAPI(t, func(d *Deps) {
		d.Translator = i18n.New(dir, "strings", "en-US")
	})

	_, body := api.do(http.MethodGet, "/v1/users", nil, asClerk, "Accept-Language", "es-AR,es;q=0.9")
	assert.Equal(t, "permiso denegado", body["error"])

	_, body = api.do(http.MethodGet, "/v1/users", nil, asClerk)
	assert.Equal(t, "permission denied", body["error"])
}
