package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether the broker connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

type HealthHandler struct {
	db     Pinger
	redis  *redis.Client
	broker ConnectionChecker
}

func NewHealthHandler(db Pinger, redisClient *redis.Client, broker ConnectionChecker) *HealthHandler {
	return &HealthHandler{
		db:     db,
		redis:  redisClient,
		broker: broker,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	if h.db != nil && h.db.Ping(ctx) == nil {
		checks["postgres"] = "healthy"
	} else {
		checks["postgres"] = "unhealthy"
	}

	if h.redis != nil && h.redis.Ping(ctx).Err() == nil {
		checks["redis"] = "healthy"
	} else {
		checks["redis"] = "unhealthy"
	}

	// The broker is a best-effort side channel, so it degrades rather
	// than fails the service.
	if h.broker != nil && h.broker.IsConnected() {
		checks["rabbitmq"] = "healthy"
	} else {
		checks["rabbitmq"] = "degraded"
	}

	overallStatus := "healthy"
	for _, status := range checks {
		if status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		} else if status == "degraded" {
			overallStatus = "degraded"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
		"version":   "1.0.0",
	})
}
