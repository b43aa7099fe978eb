package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/internal/reconcile"
	"github.com/notifyai/notification-service/internal/store"
	"go.uber.org/zap"
)

// WebhookHandler terminates the three provider status webhooks and
// hands their events to the reconciliation engine.
type WebhookHandler struct {
	engine         *reconcile.Engine
	sendgridSecret string
	logger         *zap.Logger
}

func NewWebhookHandler(engine *reconcile.Engine, sendgridSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:         engine,
		sendgridSecret: sendgridSecret,
		logger:         logger,
	}
}

// SendGridWebhook receives the mail provider's event batch. Individual
// malformed or unmatched events are logged and skipped, and the batch
// is acknowledged, so the provider does not retry-storm us over one bad
// entry. Signature verification is enforced whenever a secret is
// configured.
func (h *WebhookHandler) SendGridWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "unreadable body",
			Message: "Invalid Request Body",
		})
		return
	}

	if h.sendgridSecret != "" {
		header := c.GetHeader("X-Webhook-Signature")
		if err := verifySignedPayload(h.sendgridSecret, body, header, time.Now()); err != nil {
			h.logger.Warn("mail webhook signature rejected", zap.Error(err))
			c.JSON(http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Error:   "invalid signature",
				Message: "Unauthorized",
			})
			return
		}
	}

	var events []reconcile.MailEvent
	if err := json.Unmarshal(body, &events); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	for _, ev := range events {
		if err := h.engine.ProcessMailEvent(c.Request.Context(), ev); err != nil {
			if errors.Is(err, reconcile.ErrInvalidEvent) {
				h.logger.Warn("invalid mail event skipped", zap.Error(err))
				continue
			}
			h.logger.Error("failed to process mail event",
				zap.String("message_id", ev.MessageID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, models.APIResponse{
				Success: false,
				Error:   "failed to process webhook",
				Message: "Internal Server Error",
			})
			return
		}
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Webhook processed",
	})
}

// MessageBirdWebhook receives SMS provider A's JSON status callback.
func (h *WebhookHandler) MessageBirdWebhook(c *gin.Context) {
	var ev reconcile.SMSAEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	h.finishSMSEvent(c, h.engine.ProcessSMSAEvent(c.Request.Context(), ev))
}

// TwilioWebhook receives SMS provider B's form-encoded status callback.
func (h *WebhookHandler) TwilioWebhook(c *gin.Context) {
	ev := reconcile.SMSBEvent{
		MessageSid:    c.PostForm("MessageSid"),
		MessageStatus: c.PostForm("MessageStatus"),
		To:            c.PostForm("To"),
	}

	h.finishSMSEvent(c, h.engine.ProcessSMSBEvent(c.Request.Context(), ev))
}

func (h *WebhookHandler) finishSMSEvent(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, models.APIResponse{
			Success: true,
			Message: "Webhook processed",
		})
	case errors.Is(err, reconcile.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Missing required fields",
		})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Error:   "notification not found",
			Message: "Not Found",
		})
	default:
		h.logger.Error("failed to process sms event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to process webhook",
			Message: "Internal Server Error",
		})
	}
}
