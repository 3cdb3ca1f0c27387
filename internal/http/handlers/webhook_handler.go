// Payment webhook handlers.
//
//   - POST /webhooks/mercadopago         (JSON body, signed)
//   - POST /webhook                      (legacy alias; query-parameter deliveries)
//   - POST /webhooks/mercadopago/health  (connectivity check)
//
// The provider retries any non-2xx answer, so once a delivery is authentic
// and parseable it is acknowledged immediately and processed on a background
// task. Processing failures are never reported back to the provider.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/http/middleware"
	"github.com/tbourn/course-platform-backend/internal/services"
)

// Signature headers, in order of preference.
const (
	headerSignature     = "X-Signature"
	headerHookSignature = "X-Hook-Signature"
)

// WebhookHealthResponse answers the webhook health check.
type WebhookHealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp"`
}

var errEmptyNotification = errors.New("empty notification")

// MercadoPagoWebhook godoc
// @ID          mercadoPagoWebhook
// @Summary     Receive a payment notification
// @Description Verifies the HMAC signature, acknowledges with 200 "OK" and processes the notification in the background.
// @Tags        Webhooks
// @Accept      json
// @Produce     plain
//
// @Param       X-Signature       header  string  false  "HMAC-SHA256 of the body (hex or ts=...,v1=<hex>)"
// @Param       X-Hook-Signature  header  string  false  "Legacy signature header"
// @Param       body              body    services.Notification  true  "Notification"
//
// @Success     200  {string}  string  "OK"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or malformed body"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Router      /webhooks/mercadopago [post]
func (h *Handlers) MercadoPagoWebhook(c *gin.Context) {
	h.receiveWebhook(c, false)
}

// LegacyWebhook godoc
// @ID          legacyWebhook
// @Summary     Receive a payment notification (alias)
// @Description Same as /webhooks/mercadopago, but also accepts the notification as query parameters (id, data.id, type, topic, action).
// @Tags        Webhooks
// @Accept      json
// @Produce     plain
//
// @Param       id       query  string  false  "Resource id"
// @Param       data.id  query  string  false  "Resource id"
// @Param       type     query  string  false  "Topic"
// @Param       topic    query  string  false  "Topic (legacy)"
// @Param       action   query  string  false  "Action, e.g. payment.updated"
//
// @Success     200  {string}  string  "OK"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed notification"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Router      /webhook [post]
func (h *Handlers) LegacyWebhook(c *gin.Context) {
	h.receiveWebhook(c, true)
}

// WebhookHealth godoc
// @ID          webhookHealth
// @Summary     Webhook endpoint health
// @Tags        Webhooks
// @Produce     json
// @Success     200  {object}  handlers.WebhookHealthResponse
// @Router      /webhooks/mercadopago/health [post]
func (h *Handlers) WebhookHealth(c *gin.Context) {
	ok(c, http.StatusOK, WebhookHealthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (h *Handlers) receiveWebhook(c *gin.Context, allowQuery bool) {
	lg := middleware.LoggerFrom(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "request body too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable body")
		return
	}

	sig := c.GetHeader(headerSignature)
	if sig == "" {
		sig = c.GetHeader(headerHookSignature)
	}
	valid, err := h.svc.Verifier.Verify(body, sig)
	if err != nil || !valid {
		ev := lg.Warn().Int("body_bytes", len(body)).Bool("has_signature", sig != "")
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "invalid signature")
		return
	}

	n, err := parseNotification(c, body, allowQuery)
	if err != nil {
		lg.Warn().Err(err).Msg("webhook payload rejected")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid notification payload")
		return
	}

	c.String(http.StatusOK, "OK")

	topic, resourceID := n.Topic(), n.ResourceID()
	if topic == "" || resourceID == "" {
		lg.Warn().Str("topic", topic).Str("resource_id", resourceID).Msg("webhook without topic or resource id; nothing to process")
		return
	}
	lg.Info().Str("topic", topic).Str("resource_id", resourceID).Str("action", n.Action).Msg("webhook accepted")

	h.svc.Tasks.Go(c.Request.Context(), "webhook_dispatch", func(ctx context.Context) error {
		return h.svc.Notifications.Dispatch(ctx, n)
	})
}

// parseNotification decodes the JSON body. On the alias route, query
// parameters take over when the body is empty or when they are present.
func parseNotification(c *gin.Context, body []byte, allowQuery bool) (services.Notification, error) {
	var n services.Notification
	trimmed := bytes.TrimSpace(body)

	if allowQuery {
		if q, found := notificationFromQuery(c); found || len(trimmed) == 0 {
			if !found {
				return n, errEmptyNotification
			}
			// A body may still carry fields the query lacks; a malformed one
			// contributes nothing.
			if len(trimmed) > 0 {
				var fromBody services.Notification
				if err := json.Unmarshal(trimmed, &fromBody); err == nil {
					n = fromBody
				}
			}
			mergeNotification(&n, q)
			return n, nil
		}
	}

	if len(trimmed) == 0 {
		return n, errEmptyNotification
	}
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return n, err
	}
	return n, nil
}

// notificationFromQuery reads id, data.id, type/topic and action.
func notificationFromQuery(c *gin.Context) (services.Notification, bool) {
	var n services.Notification
	get := func(k string) string { return strings.TrimSpace(c.Query(k)) }

	n.ID = services.FlexID(get("id"))
	n.Data.ID = services.FlexID(get("data.id"))
	n.Type = get("type")
	if n.Type == "" {
		n.Type = get("topic")
	}
	n.Action = get("action")

	found := n.ID != "" || n.Data.ID != "" || n.Type != "" || n.Action != ""
	return n, found
}

// mergeNotification overlays the non-empty query fields onto n.
func mergeNotification(n *services.Notification, q services.Notification) {
	if q.ID != "" {
		n.ID = q.ID
	}
	if q.Data.ID != "" {
		n.Data.ID = q.Data.ID
	}
	if q.Type != "" {
		n.Type = q.Type
	}
	if q.Action != "" {
		n.Action = q.Action
	}
}
