package prescription

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicehr/internal/domain/patient"
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
	api.GET("/patients/:patient_id/prescriptions", h.ListByPatient, h.require(permission.OpView))
	api.POST("/patients/:patient_id/prescriptions", h.Create, h.require(permission.OpAdd))

	g := api.Group("/prescriptions")
	g.GET("/:id", h.Get, h.require(permission.OpView))
	g.PUT("/:id", h.Update, h.require(permission.OpEdit))
	g.DELETE("/:id", h.Delete, h.require(permission.OpDelete))
}

func (h *Handler) require(op permission.Operation) echo.MiddlewareFunc {
	return auth.RequirePermission(h.resolver, permission.ModulePrescriptions, op, h.logger)
}

type rxRequest struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
	Status       string `json:"status"`
}

func (r rxRequest) toPrescription() *Prescription {
	return &Prescription{
		Medication:   r.Medication,
		Dosage:       r.Dosage,
		Instructions: r.Instructions,
		Status:       r.Status,
	}
}

func (h *Handler) Create(c echo.Context) error {
	var req rxRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx := req.toPrescription()
	rx.PatientID = c.Param("patient_id")
	if err := h.svc.Create(c.Request().Context(), rx); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) Get(c echo.Context) error {
	rx, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	page := pagination.FromContext(c)
	rxs, total, err := h.svc.ListByPatient(c.Request().Context(), c.Param("patient_id"), page)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rxs, total, page))
}

func (h *Handler) Update(c echo.Context) error {
	var req rxRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx := req.toPrescription()
	rx.ID = c.Param("id")
	if err := h.svc.Update(c.Request().Context(), rx); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, rx)
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
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if mapped := auth.HTTPError(err); mapped != err {
		return mapped
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
