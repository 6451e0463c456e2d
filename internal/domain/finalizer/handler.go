package finalizer

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	attempts Repository
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, attempts: svc.attempts}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clin := api.Group("", auth.RequireRole(auth.RoleClinician))
	clin.POST("/assessments/:id/send", h.Prepare)
	clin.POST("/assessments/:id/send/confirm", h.Confirm)
	clin.POST("/assessments/:id/send/override", h.Override)

	read := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleClinician))
	read.GET("/assessments/:id/send-attempts", h.ListAttempts)
}

func ids(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cid, err := uuid.Parse(auth.ClinicianIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "not a clinician")
	}
	return id, cid, nil
}

func (h *Handler) Prepare(c echo.Context) error {
	id, cid, err := ids(c)
	if err != nil {
		return err
	}
	p, err := h.svc.Prepare(c.Request().Context(), cid, id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"attempt": p.Attempt, "validation": p.Result})
}

func (h *Handler) Confirm(c echo.Context) error {
	id, cid, err := ids(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Confirm(c.Request().Context(), cid, id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, d)
}

type overrideRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Override(c echo.Context) error {
	id, cid, err := ids(c)
	if err != nil {
		return err
	}
	var req overrideRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.Override(c.Request().Context(), cid, id, req.Reason)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListAttempts(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.attempts.ListByAssessment(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}
