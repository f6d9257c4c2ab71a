package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/clinicehr/internal/permission"
)

func newTestServer(t *testing.T, pc *permission.Context) (*echo.Echo, *mockUserRepo) {
	t.Helper()
	svc, repo := newTestService()
	h := NewHandler(svc, svc.resolver, zerolog.Nop())

	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if pc != nil {
				c.SetRequest(c.Request().WithContext(permission.WithContext(c.Request().Context(), pc)))
			}
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return e, repo
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Create(t *testing.T) {
	e, repo := newTestServer(t, permission.NewContext("adm", "admin", []string{"A"}, true, false))

	rec := do(e, http.MethodPost, "/api/v1/users",
		`{"email":"p@example.org","display_name":"Dr. P","role":"provider","clinic_ids":["A"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, permission.RoleProvider, u.Role)
	assert.Contains(t, repo.users, u.ID)

	rec = do(e, http.MethodPost, "/api/v1/users",
		`{"email":"s@example.org","display_name":"Root","role":"super_admin","clinic_ids":["A"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandler_CapabilityGate(t *testing.T) {
	e, _ := newTestServer(t, permission.NewContext("prov", "provider", []string{"A"}, false, false))
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/api/v1/users", "").Code)

	e, _ = newTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/api/v1/users", "").Code)
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	e, repo := newTestServer(t, permission.NewContext("adm", "admin", []string{"A"}, true, false))
	seed(repo, "prov", permission.RoleProvider, "A")
	seed(repo, "adm", permission.RoleAdmin, "A")

	rec := do(e, http.MethodPatch, "/api/v1/users/prov", `{"role":"admin"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(e, http.MethodPatch, "/api/v1/users/prov", `{"display_name":"Dr. Q"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Dr. Q", repo.users["prov"].DisplayName)

	assert.Equal(t, http.StatusConflict, do(e, http.MethodDelete, "/api/v1/users/adm", "").Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/v1/users/prov", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/users/prov", "").Code)
}
