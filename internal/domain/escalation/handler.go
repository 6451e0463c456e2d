package escalation

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleClinician))
	read.GET("/escalations", h.List)
	read.GET("/escalations/:id", h.Get)

	act := api.Group("", auth.RequireRole(auth.RoleClinician))
	act.POST("/escalations/:id/acknowledge", h.Acknowledge)
	act.POST("/escalations/:id/handle", h.Handle)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "escalation not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Acknowledge(c echo.Context) error {
	id, clin, err := h.params(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Acknowledge(c.Request().Context(), id, clin)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

type handleRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) Handle(c echo.Context) error {
	id, clin, err := h.params(c)
	if err != nil {
		return err
	}
	var req handleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.Handle(c.Request().Context(), id, clin, req.Notes)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) params(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	clin, err := uuid.Parse(auth.ClinicianIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "caller is not a clinician")
	}
	return id, clin, nil
}
