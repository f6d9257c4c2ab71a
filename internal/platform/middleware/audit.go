package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
)

const apiPrefix = "/api/v1/"

// AuditEntry records who touched which module record and how it ended.
type AuditEntry struct {
	Timestamp  time.Time
	RequestID  string
	UserID     string
	Role       string
	ClinicIDs  []string
	Module     string
	RecordID   string
	Action     string
	Method     string
	Path       string
	RemoteIP   string
	StatusCode int
}

// Denied reports whether the request was refused by authentication or
// authorization.
func (e AuditEntry) Denied() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// AuditRecorder persists audit entries somewhere durable.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs every /api/v1 request with the actor's role and clinics taken
// from the permission context. Denials are logged at warn level. When a
// recorder is given, entries are also handed to it.
//
// Register it ahead of the auth middleware so rejected tokens are audited
// too; those entries carry no actor.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				RequestID:  RequestIDFrom(c),
				Method:     req.Method,
				Path:       req.URL.Path,
				RemoteIP:   c.RealIP(),
				Action:     actionFor(req.Method),
				StatusCode: c.Response().Status,
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			entry.Module, entry.RecordID = splitAPIPath(req.URL.Path)

			// Auth middleware further down the chain replaces the request.
			if pc := permission.FromContext(c.Request().Context()); pc != nil {
				entry.UserID = pc.UserID
				entry.Role = string(pc.Role)
				entry.ClinicIDs = pc.ClinicIDs
			}

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Denied() {
				evt = logger.Warn()
			}
			evt.
				Str("type", "access_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Strs("clinic_ids", entry.ClinicIDs).
				Str("module", entry.Module).
				Str("record_id", entry.RecordID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.StatusCode).
				Msg("api_access")

			return err
		}
	}
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return string(permission.OpAdd)
	case http.MethodPut, http.MethodPatch:
		return string(permission.OpEdit)
	case http.MethodDelete:
		return string(permission.OpDelete)
	default:
		return string(permission.OpView)
	}
}

// splitAPIPath turns /api/v1/patients/123/prescriptions into ("patients", "123").
func splitAPIPath(path string) (module, recordID string) {
	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	if len(segments) > 0 {
		module = segments[0]
	}
	if len(segments) > 1 {
		recordID = segments[1]
	}
	if module == "" {
		module = "unknown"
	}
	return module, recordID
}
