package payment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/auth"
	"github.com/ehr/triage/internal/platform/webhook"
)

// Event is the provider callback body.
type Event struct {
	Event string `json:"event"`
	Data  struct {
		ID     int64  `json:"id"`
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

const eventChargeCompleted = "charge.completed"

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, secret string) *Handler {
	return &Handler{svc: svc, secret: secret}
}

// RegisterWebhook mounts the signed provider callback outside the API group.
func (h *Handler) RegisterWebhook(e *echo.Echo) {
	e.POST("/webhooks/payment", h.Webhook, webhook.RequireSignature(webhook.PaymentSignatureHeader, h.secret))
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	ops := api.Group("", auth.RequireRole(auth.RoleOperator))
	ops.GET("/payments/:ref", h.Get)
}

// Webhook settles successful charges. Other events are acknowledged so the
// provider stops retrying them.
func (h *Handler) Webhook(c echo.Context) error {
	var ev Event
	if err := c.Bind(&ev); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if ev.Event != eventChargeCompleted || ev.Data.Status != "successful" {
		h.svc.logger.Info().Str("event", ev.Event).Str("status", ev.Data.Status).Str("tx_ref", ev.Data.TxRef).Msg("payment event ignored")
		return c.NoContent(http.StatusOK)
	}
	if ev.Data.TxRef == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tx_ref is required")
	}
	t, err := h.svc.Confirm(c.Request().Context(), ev.Data.TxRef)
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"tx_ref": t.TxRef, "status": t.Status})
}

func (h *Handler) Get(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	return c.JSON(http.StatusOK, t)
}
