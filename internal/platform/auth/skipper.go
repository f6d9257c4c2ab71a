package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication. They expose no patient data.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// AuthSkipper reports whether the matched route is public.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether the route pattern path is served without
// authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
