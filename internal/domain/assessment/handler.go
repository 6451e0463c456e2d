package assessment

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

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
	read.GET("/assessments", h.List)
	read.GET("/assessments/:id", h.Get)
	read.GET("/assessments/:id/reviews", h.ListReviews)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	status := ReviewStatus(strings.ToUpper(c.QueryParam("status")))
	if status != "" {
		if _, ok := statusActions[status]; !ok && status != StatusDraft {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), status, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type assessmentView struct {
	*Assessment
	Final *Content `json:"final_content,omitempty"`
	Notes string   `json:"clinician_notes,omitempty"`
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "assessment not found")
	}
	view := assessmentView{Assessment: a}
	if a.Status == StatusModified {
		content, notes, _, err := h.svc.FinalContent(ctx, a)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		view.Final = &content
		view.Notes = notes
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListReviews(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reviews, err := h.svc.Reviews(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": reviews})
}
