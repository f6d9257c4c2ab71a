package user

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/auth"
	"github.com/ehr/clinicehr/pkg/pagination"
)

type Handler struct {
	svc      *Service
	resolver *permission.Resolver
	logger   zerolog.Logger
}

func NewHandler(svc *Service, resolver *permission.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/users")
	g.GET("", h.List, h.require(permission.OpView))
	g.POST("", h.Create, h.require(permission.OpAdd))
	g.GET("/:id", h.Get, h.require(permission.OpView))
	g.PATCH("/:id", h.Update, h.require(permission.OpEdit))
	g.DELETE("/:id", h.Delete, h.require(permission.OpDelete))
}

func (h *Handler) require(op permission.Operation) echo.MiddlewareFunc {
	return auth.RequirePermission(h.resolver, permission.ModuleUsers, op, h.logger)
}

type createRequest struct {
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        string   `json:"role"`
	ClinicIDs   []string `json:"clinic_ids"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u := &User{
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        permission.Role(req.Role),
		ClinicIDs:   req.ClinicIDs,
	}
	if err := h.svc.Create(c.Request().Context(), u); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Get(c echo.Context) error {
	u, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	users, total, err := h.svc.List(c.Request().Context(), c.QueryParam("clinic_id"), c.QueryParam("role"), page)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, page))
}

func (h *Handler) Update(c echo.Context) error {
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	u, err := h.svc.Update(c.Request().Context(), c.Param("id"), p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrRoleImmutable):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrSelfDelete):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if mapped := auth.HTTPError(err); mapped != err {
		return mapped
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
