// Package access exposes the permission matrix and the caller's own
// permissions over HTTP so clients can render only what the actor may use.
package access

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/auth"
)

type Handler struct {
	resolver *permission.Resolver
	logger   zerolog.Logger
}

func NewHandler(resolver *permission.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/me/permissions", h.MyPermissions)
	api.POST("/me/permissions/check", h.Check)
	api.GET("/permissions/matrix", h.Matrix,
		auth.RequirePermission(h.resolver, permission.ModuleClinicPermissions, permission.OpView, h.logger))
}

// MyPermissionsResponse describes what the caller can do, module by module.
type MyPermissionsResponse struct {
	UserID            string                                             `json:"user_id"`
	Role              permission.Role                                    `json:"role"`
	RoleKnown         bool                                               `json:"role_known"`
	ClinicIDs         []string                                           `json:"clinic_ids"`
	IsClinicAdmin     bool                                               `json:"is_clinic_admin"`
	IsSuperAdmin      bool                                               `json:"is_super_admin"`
	AccessibleModules []permission.Module                                `json:"accessible_modules"`
	Permissions       map[permission.Module]permission.ModulePermissions `json:"permissions"`
}

func (h *Handler) MyPermissions(c echo.Context) error {
	pc := permission.FromContext(c.Request().Context())
	if pc == nil || pc.Role == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	resp := MyPermissionsResponse{
		UserID:            pc.UserID,
		Role:              pc.Role,
		RoleKnown:         pc.Role.Known(),
		ClinicIDs:         pc.ClinicIDs,
		IsClinicAdmin:     pc.IsClinicAdmin,
		IsSuperAdmin:      pc.IsSuperAdmin,
		AccessibleModules: h.resolver.AccessibleModules(pc),
		Permissions:       make(map[permission.Module]permission.ModulePermissions),
	}
	if resp.ClinicIDs == nil {
		resp.ClinicIDs = []string{}
	}
	for _, module := range resp.AccessibleModules {
		resp.Permissions[module] = h.resolver.ModulePermissions(pc.Role, module)
	}
	return c.JSON(http.StatusOK, resp)
}

// Matrix returns the full matrix, or one role's row with ?role=.
func (h *Handler) Matrix(c echo.Context) error {
	roles := permission.Roles()
	if raw := c.QueryParam("role"); raw != "" {
		role, err := permission.ParseRole(raw)
		if err != nil {
			return auth.HTTPError(err)
		}
		roles = []permission.Role{role}
	}

	out := make(map[permission.Role]map[permission.Module]permission.ModulePermissions, len(roles))
	for _, role := range roles {
		row := make(map[permission.Module]permission.ModulePermissions)
		for _, module := range permission.Modules() {
			row[module] = h.resolver.ModulePermissions(role, module)
		}
		out[role] = row
	}
	return c.JSON(http.StatusOK, out)
}

type checkRequest struct {
	Module    string               `json:"module"`
	Operation string               `json:"operation"`
	PatientID string               `json:"patient_id"`
	Resource  *permission.Resource `json:"resource"`
}

// Check evaluates one decision for the caller. With a patient id the
// assignment is read from storage instead of trusted from the body.
func (h *Handler) Check(c echo.Context) error {
	var req checkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	module, err := permission.ParseModule(req.Module)
	if err != nil {
		return auth.HTTPError(err)
	}
	op, err := permission.ParseOperation(req.Operation)
	if err != nil {
		return auth.HTTPError(err)
	}

	ctx := c.Request().Context()
	pc := permission.FromContext(ctx)

	var d permission.Decision
	if req.PatientID != "" {
		res := permission.Resource{}
		if req.Resource != nil {
			res = *req.Resource
		}
		d, err = h.resolver.CheckWithAssignmentVerification(ctx, pc, module, op, req.PatientID, res)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		}
	} else {
		d = h.resolver.Check(pc, module, op, req.Resource)
	}
	return c.JSON(http.StatusOK, d)
}
