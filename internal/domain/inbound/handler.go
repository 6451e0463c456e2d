package inbound

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/triage/internal/platform/apperr"
	"github.com/ehr/triage/internal/platform/messaging"
	"github.com/ehr/triage/internal/platform/webhook"
)

// Payload is the provider webhook body, posted as a form or as JSON.
type Payload struct {
	From              string `json:"From" form:"From"`
	Body              string `json:"Body" form:"Body"`
	MessageSid        string `json:"MessageSid" form:"MessageSid"`
	MediaURL0         string `json:"MediaUrl0" form:"MediaUrl0"`
	MediaContentType0 string `json:"MediaContentType0" form:"MediaContentType0"`
}

func (p Payload) Inbound() messaging.Inbound {
	return messaging.Inbound{
		SenderID:  p.From,
		Text:      p.Body,
		MediaRef:  p.MediaURL0,
		MediaType: p.MediaContentType0,
		MessageID: p.MessageSid,
	}
}

type WebhookHandler struct {
	dispatcher *Dispatcher
	secret     string
}

func NewHandler(d *Dispatcher, secret string) *WebhookHandler {
	return &WebhookHandler{dispatcher: d, secret: secret}
}

// RegisterWebhook mounts the provider callback outside the authenticated API.
func (h *WebhookHandler) RegisterWebhook(e *echo.Echo) {
	e.POST("/webhooks/messaging", h.Receive, webhook.RequireSignature(webhook.MessagingSignatureHeader, h.secret))
}

// Receive acknowledges every well-formed message with 200 once handled.
// Handling failures are logged and not retried by the provider.
func (h *WebhookHandler) Receive(c echo.Context) error {
	var p Payload
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	err := h.dispatcher.Dispatch(c.Request().Context(), p.Inbound())
	if apperr.IsKind(err, apperr.KindInput) {
		return echo.NewHTTPError(apperr.HTTPStatus(err), apperr.UserMessage(err))
	}
	if err != nil {
		h.dispatcher.logger.Error().Err(err).Str("message_id", p.MessageSid).Msg("inbound message failed")
	}
	return c.NoContent(http.StatusOK)
}
