package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/clinicehr/internal/permission"
)

func TestObserveDecision(t *testing.T) {
	m := NewMetrics()

	m.ObserveDecision(permission.ModulePatients, permission.OpView, permission.Decision{Allowed: true, Kind: permission.KindAllowed})
	m.ObserveDecision(permission.ModulePatients, permission.OpView, permission.Decision{Allowed: true, Kind: permission.KindAllowed})
	m.ObserveDecision(permission.ModuleUsers, permission.OpAdd, permission.Decision{Kind: permission.KindCapabilityDenied})

	expected := `
# HELP ehr_permission_decisions_total Permission decisions by module, operation and result
# TYPE ehr_permission_decisions_total counter
ehr_permission_decisions_total{module="patients",operation="view",result="allowed"} 2
ehr_permission_decisions_total{module="users",operation="add",result="capability_denied"} 1
`
	require.NoError(t, testutil.CollectAndCompare(m.PermissionDecisions, strings.NewReader(expected)))
}

func TestObserveAccess(t *testing.T) {
	m := NewMetrics()

	m.ObserveAccess("patients", "view", http.StatusUnauthorized)
	m.ObserveAccess("patients", "view", http.StatusUnauthorized)
	m.ObserveAccess("me", "view", http.StatusOK)
	m.ObserveAccess("no-such-module-123", "view", http.StatusNotFound)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.APIAccess.WithLabelValues("patients", "view", "401")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIAccess.WithLabelValues("other", "view", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.APIAccess.WithLabelValues("other", "view", "404")))
}

func TestResolverObserverWiring(t *testing.T) {
	m := NewMetrics()
	r := permission.NewResolver(nil, permission.WithObserver(m.ObserveDecision))

	registrar := permission.NewContext("u1", "registrar", []string{"clinic-A"}, false, false)
	r.CheckResource(registrar, permission.ModulePatients, permission.OpView, permission.Resource{ClinicID: "clinic-B"})

	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.PermissionDecisions.WithLabelValues("patients", "view", "scope_violation")))
}

func TestMiddleware_RecordsRoute(t *testing.T) {
	m := NewMetrics()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/patients/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/forbidden", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})

	for _, path := range []string{"/api/v1/patients/1", "/api/v1/patients/2", "/forbidden"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/patients/:id", "204")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.HTTPRequestsTotal.WithLabelValues("GET", "/forbidden", "403")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveRequests))
}

func TestHandler_ServesExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision(permission.ModuleSettings, permission.OpEdit, permission.Decision{Allowed: true})

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/metrics", nil), rec)

	require.NoError(t, m.Handler()(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ehr_permission_decisions_total{module="settings",operation="edit",result="allowed"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
