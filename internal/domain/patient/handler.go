package patient

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/permission"
	"github.com/ehr/clinicehr/internal/platform/auth"
	"github.com/ehr/clinicehr/pkg/pagination"
)

const dateLayout = "2006-01-02"

type Handler struct {
	svc      *Service
	resolver *permission.Resolver
	logger   zerolog.Logger
}

func NewHandler(svc *Service, resolver *permission.Resolver, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients")
	g.GET("", h.List, h.require(permission.OpView))
	g.POST("", h.Create, h.require(permission.OpAdd))
	g.GET("/:id", h.Get, h.require(permission.OpView))
	g.PUT("/:id", h.Update, h.require(permission.OpEdit))
	g.DELETE("/:id", h.Delete, h.require(permission.OpDelete))

	g.GET("/:id/assignments", h.ListAssignments, h.require(permission.OpView))
	g.POST("/:id/assignments", h.Assign, h.require(permission.OpEdit))
	g.DELETE("/:id/assignments/:provider_id", h.Unassign, h.require(permission.OpEdit))
}

func (h *Handler) require(op permission.Operation) echo.MiddlewareFunc {
	return auth.RequirePermission(h.resolver, permission.ModulePatients, op, h.logger)
}

type patientRequest struct {
	ClinicID  string `json:"clinic_id"`
	MRN       string `json:"mrn"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date"`
}

func (r patientRequest) toPatient() (*Patient, error) {
	p := &Patient{ClinicID: r.ClinicID, MRN: r.MRN, FirstName: r.FirstName, LastName: r.LastName}
	if r.BirthDate != "" {
		d, err := time.Parse(dateLayout, r.BirthDate)
		if err != nil {
			return nil, fmt.Errorf("%w: birth_date must be YYYY-MM-DD", ErrValidation)
		}
		p.BirthDate = &d
	}
	return p, nil
}

func (h *Handler) Create(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := req.toPatient()
	if err != nil {
		return httpError(err)
	}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Get(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) List(c echo.Context) error {
	page := pagination.FromContext(c)
	patients, total, err := h.svc.List(c.Request().Context(), c.QueryParam("clinic_id"), c.QueryParam("q"), page)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, page))
}

func (h *Handler) Update(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := req.toPatient()
	if err != nil {
		return httpError(err)
	}
	p.ID = c.Param("id")
	if err := h.svc.Update(c.Request().Context(), p); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListAssignments(c echo.Context) error {
	assignments, err := h.svc.ListAssignments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, assignments)
}

func (h *Handler) Assign(c echo.Context) error {
	var req struct {
		ProviderID string `json:"provider_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.AssignProvider(c.Request().Context(), c.Param("id"), req.ProviderID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Unassign(c echo.Context) error {
	if err := h.svc.UnassignProvider(c.Request().Context(), c.Param("id"), c.Param("provider_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if mapped := auth.HTTPError(err); mapped != err {
		return mapped
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
