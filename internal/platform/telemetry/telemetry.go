// Package telemetry exposes Prometheus metrics for the clinic EHR server:
// HTTP traffic, connection pool state and permission decisions.
package telemetry

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/clinicehr/internal/permission"
)

const namespace = "ehr"

// Metrics holds the server's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	ActiveRequests      prometheus.Gauge

	PermissionDecisions *prometheus.CounterVec
	APIAccess           *prometheus.CounterVec

	DBConnsTotal    prometheus.Gauge
	DBConnsIdle     prometheus.Gauge
	DBConnsAcquired prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry
// along with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests",
		}),
		PermissionDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_decisions_total",
				Help:      "Permission decisions by module, operation and result",
			},
			[]string{"module", "operation", "result"},
		),
		APIAccess: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_access_total",
				Help:      "Audited API requests by module, action and status",
			},
			[]string{"module", "action", "status"},
		),
		DBConnsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_total",
			Help:      "Total connections in the database pool",
		}),
		DBConnsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Idle connections in the database pool",
		}),
		DBConnsAcquired: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_acquired",
			Help:      "Acquired connections in the database pool",
		}),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
		m.PermissionDecisions,
		m.APIAccess,
		m.DBConnsTotal,
		m.DBConnsIdle,
		m.DBConnsAcquired,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision matches permission.Observer and counts one decision.
// Denials are labelled by kind so scope violations and missing capabilities
// can be told apart.
func (m *Metrics) ObserveDecision(module permission.Module, op permission.Operation, d permission.Decision) {
	result := "allowed"
	if !d.Allowed {
		result = string(d.Kind)
	}
	m.PermissionDecisions.WithLabelValues(string(module), string(op), result).Inc()
}

// ObserveAccess counts one audited API request. Path segments that are not
// modules share the "other" label.
func (m *Metrics) ObserveAccess(module, action string, status int) {
	if !permission.Module(module).Known() {
		module = "other"
	}
	m.APIAccess.WithLabelValues(module, action, strconv.Itoa(status)).Inc()
}

// RecordPoolStats copies a pool snapshot into the connection gauges.
func (m *Metrics) RecordPoolStats(stat *pgxpool.Stat) {
	m.DBConnsTotal.Set(float64(stat.TotalConns()))
	m.DBConnsIdle.Set(float64(stat.IdleConns()))
	m.DBConnsAcquired.Set(float64(stat.AcquiredConns()))
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			method := c.Request().Method
			m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
