package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
)

// RequirePermission rejects requests whose role has no grant at all for
// op on module. It is a capability gate only; handlers still narrow against
// the loaded record.
func RequirePermission(r *permission.Resolver, module permission.Module, op permission.Operation, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pc := permission.FromContext(c.Request().Context())
			if err := r.Require(pc, module, op, nil); err != nil {
				logDenied(logger, c, pc, err)
				return HTTPError(err)
			}
			return next(c)
		}
	}
}

// RequireModule rejects requests whose role cannot see module at all.
func RequireModule(r *permission.Resolver, module permission.Module, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			pc := permission.FromContext(c.Request().Context())
			if pc == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !r.HasAnyPermission(pc.Role, module) {
				err := &permission.DeniedError{
					Module: module,
					Kind:   permission.KindCapabilityDenied,
					Reason: fmt.Sprintf("role %s has no access to %s", pc.Role, module),
				}
				logDenied(logger, c, pc, err)
				return HTTPError(err)
			}
			return next(c)
		}
	}
}

// HTTPError maps permission errors onto HTTP status codes. Other errors are
// returned unchanged.
func HTTPError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, permission.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	case errors.Is(err, permission.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, permission.ErrUnknownRole),
		errors.Is(err, permission.ErrUnknownModule),
		errors.Is(err, permission.ErrUnknownOperation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func logDenied(logger zerolog.Logger, c echo.Context, pc *permission.Context, err error) {
	evt := logger.Warn().Str("path", c.Request().URL.Path)
	if rid, ok := c.Get("request_id").(string); ok {
		evt = evt.Str("request_id", rid)
	}
	if pc != nil {
		evt = evt.Str("user_id", pc.UserID).Str("role", string(pc.Role))
	}
	var denied *permission.DeniedError
	if errors.As(err, &denied) {
		evt = evt.
			Str("module", string(denied.Module)).
			Str("operation", string(denied.Operation)).
			Str("kind", string(denied.Kind)).
			Str("reason", denied.Reason)
	}
	evt.Msg("permission denied")
}
