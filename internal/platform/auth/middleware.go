package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
)

const (
	DevUserID = "dev-user"
	devRole   = permission.RoleSuperAdmin
)

// JWTMiddleware authenticates the bearer token and stores the resulting
// permission.Context on the request context.
func JWTMiddleware(v TokenVerifier, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			raw, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			claims, err := v.Verify(c.Request().Context(), raw)
			if err != nil {
				logger.Debug().Err(err).Str("path", c.Request().URL.Path).Msg("token rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" || claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject or role")
			}

			setPermissionContext(c, claims.PermissionContext())
			return next(c)
		}
	}
}

// DevAuthMiddleware lets requests without an Authorization header act as a
// super_admin member of devClinicID. Requests that do carry a token are
// verified with v when it is non-nil.
func DevAuthMiddleware(devClinicID string, v TokenVerifier, logger zerolog.Logger) echo.MiddlewareFunc {
	var jwtMW echo.MiddlewareFunc
	if v != nil {
		jwtMW = JWTMiddleware(v, logger)
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		var verified echo.HandlerFunc
		if jwtMW != nil {
			verified = jwtMW(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) != "" && verified != nil {
				return verified(c)
			}
			setPermissionContext(c, permission.NewContext(
				DevUserID, string(devRole), []string{devClinicID}, true, true))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(token), nil
}

func setPermissionContext(c echo.Context, pc *permission.Context) {
	ctx := permission.WithContext(c.Request().Context(), pc)
	c.SetRequest(c.Request().WithContext(ctx))
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if pc := permission.FromContext(ctx); pc != nil {
		return pc.UserID
	}
	return ""
}
