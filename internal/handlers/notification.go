package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/internal/providers"
	"github.com/notifyai/notification-service/internal/templates"
	"go.uber.org/zap"
)

// NotificationStore is the persistence the direct API needs.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	InsertScheduled(ctx context.Context, sn *models.ScheduledNotification) error
	NotificationStats(ctx context.Context) (*models.NotificationStats, error)
}

// Publisher fans delivery outcomes out to the broker, best-effort.
type Publisher interface {
	PublishSent(ctx context.Context, n *models.Notification) error
	PublishFailed(ctx context.Context, n *models.Notification) error
}

// NotificationHandler serves the direct send, schedule and stats API.
type NotificationHandler struct {
	store     NotificationStore
	email     providers.Adapter
	sms       providers.Adapter
	publisher Publisher
	logger    *zap.Logger
}

func NewNotificationHandler(
	store NotificationStore,
	email providers.Adapter,
	sms providers.Adapter,
	publisher Publisher,
	logger *zap.Logger,
) *NotificationHandler {
	return &NotificationHandler{
		store:     store,
		email:     email,
		sms:       sms,
		publisher: publisher,
		logger:    logger,
	}
}

func (h *NotificationHandler) SendEmail(c *gin.Context) {
	var req models.SendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	h.send(c, h.email, providers.Message{
		Type:      models.NotificationTypeEmail,
		Recipient: req.To,
		Subject:   req.Subject,
		Content:   templates.Render(req.Template, req.Variables),
	})
}

func (h *NotificationHandler) SendSMS(c *gin.Context) {
	var req models.SendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}

	h.send(c, h.sms, providers.Message{
		Type:      models.NotificationTypeSMS,
		Recipient: req.To,
		Content:   templates.Render(req.Template, req.Variables),
	})
}

// send pushes one rendered message through the adapter and records the
// attempt either way: the adapter only returns a result, persistence of
// the Notification row is the caller's job.
func (h *NotificationHandler) send(c *gin.Context, adapter providers.Adapter, msg providers.Message) {
	ctx := c.Request.Context()

	providerID, err := adapter.Send(ctx, msg)
	if err != nil {
		h.recordAndPublish(ctx, msg, models.StatusFailed, models.Metadata{"error": err.Error()})

		status := http.StatusBadGateway
		if errors.Is(err, providers.ErrNotConfigured) {
			status = http.StatusInternalServerError
		}
		c.JSON(status, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Delivery failed",
		})
		return
	}

	n := h.recordAndPublish(ctx, msg, models.StatusSent, models.Metadata{adapter.MetadataKey(): providerID})

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification sent",
		Data: models.NotificationResponse{
			NotificationID: n.ID,
			Status:         models.StatusSent,
			SentAt:         time.Now().UTC(),
		},
	})
}

func (h *NotificationHandler) recordAndPublish(ctx context.Context, msg providers.Message, status models.NotificationStatus, metadata models.Metadata) *models.Notification {
	n := &models.Notification{
		Type:      msg.Type,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Content:   msg.Content,
		Status:    status,
		Metadata:  metadata,
	}
	if err := h.store.InsertNotification(ctx, n); err != nil {
		h.logger.Error("failed to record notification", zap.Error(err))
		return n
	}

	if h.publisher != nil {
		var err error
		if status == models.StatusSent {
			err = h.publisher.PublishSent(ctx, n)
		} else {
			err = h.publisher.PublishFailed(ctx, n)
		}
		if err != nil {
			h.logger.Warn("failed to publish notification event", zap.Error(err))
		}
	}
	return n
}

func (h *NotificationHandler) Schedule(c *gin.Context) {
	var req models.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   err.Error(),
			Message: "Invalid Request Body",
		})
		return
	}
	if req.Type != models.NotificationTypeEmail && req.Type != models.NotificationTypeSMS {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Error:   "type must be email or sms",
			Message: "Invalid Request Body",
		})
		return
	}

	sn := &models.ScheduledNotification{
		Type:         req.Type,
		Recipient:    req.Recipient,
		Subject:      req.Subject,
		Template:     req.Template,
		Variables:    req.Variables,
		ScheduledFor: req.ScheduledFor,
		Recurring:    req.Recurring,
		Status:       models.SchedulePending,
	}
	if err := h.store.InsertScheduled(c.Request.Context(), sn); err != nil {
		h.logger.Error("failed to schedule notification", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to schedule notification",
			Message: "Internal Server Error",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification scheduled",
		Data:    sn,
	})
}

func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.store.NotificationStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load notification stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.APIResponse{
			Success: false,
			Error:   "failed to load stats",
			Message: "Internal Server Error",
		})
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: "Notification stats",
		Data:    stats,
	})
}
