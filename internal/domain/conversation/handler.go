package conversation

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/pkg/pagination"
)

type Handler struct {
	machine *Machine
}

func NewHandler(m *Machine) *Handler {
	return &Handler{machine: m}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleClinician))
	read.GET("/sessions", h.List)
	read.GET("/sessions/:id", h.Get)
	read.GET("/sessions/:id/messages", h.History)
	read.GET("/sessions/:id/exchanges", h.ListExchanges)
	read.POST("/sessions/:id/close", h.Close)

	ops := api.Group("", auth.RequireRole(auth.RoleOperator, auth.RoleAdmin))
	ops.POST("/sessions/:id/assign", h.Assign)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	if c.QueryParam("mine") == "true" {
		cid, err := uuid.Parse(auth.ClinicianIDFromContext(ctx))
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "not a clinician")
		}
		items, err := h.machine.ListForClinician(ctx, cid)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
	}
	pg := pagination.FromContext(c)
	state := State(strings.ToUpper(c.QueryParam("state")))
	items, total, err := h.machine.List(ctx, state, pg.Limit, pg.Offset)
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
	s, err := h.machine.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) History(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := h.machine.History(c.Request().Context(), id, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) ListExchanges(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.machine.Exchanges(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

type assignRequest struct {
	ClinicianID string `json:"clinician_id"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	cid, err := uuid.Parse(req.ClinicianID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "clinician_id is required")
	}
	ctx := c.Request().Context()
	s, err := h.machine.AssignManual(ctx, id, cid, "operator:"+auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) Close(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	var owner *uuid.UUID
	actor := "operator:" + auth.UserIDFromContext(ctx)
	if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleOperator, auth.RoleAdmin) {
		cid, err := uuid.Parse(auth.ClinicianIDFromContext(ctx))
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "not a clinician")
		}
		owner = &cid
		actor = "clinician:" + cid.String()
	}
	s, err := h.machine.Close(ctx, id, actor, owner)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, s)
}
