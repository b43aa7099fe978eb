package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/dispatch"
	"go.uber.org/zap"
)

// Dispatcher runs one scheduled-notification dispatch invocation.
type Dispatcher interface {
	ProcessDue(ctx context.Context) (*dispatch.Report, error)
}

// CronHandler is the fixed-interval entry point an external cron hits
// to drain due scheduled notifications.
type CronHandler struct {
	dispatcher Dispatcher
	apiKey     string
	logger     *zap.Logger
}

func NewCronHandler(dispatcher Dispatcher, apiKey string, logger *zap.Logger) *CronHandler {
	return &CronHandler{
		dispatcher: dispatcher,
		apiKey:     apiKey,
		logger:     logger,
	}
}

// ProcessScheduledNotifications authenticates the caller by shared key
// and runs one batch. An unauthorized call performs no database work,
// and an unconfigured key closes the endpoint rather than opening it.
func (h *CronHandler) ProcessScheduledNotifications(c *gin.Context) {
	if h.apiKey == "" || c.GetHeader("x-api-key") != h.apiKey {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	report, err := h.dispatcher.ProcessDue(c.Request.Context())
	if err != nil {
		h.logger.Error("scheduled dispatch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if report.Processed == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No notifications to process"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed": report.Processed,
		"results":   report.Results,
	})
}
