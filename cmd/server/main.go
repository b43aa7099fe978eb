package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/config"
	"github.com/notifyai/notification-service/internal/dispatch"
	"github.com/notifyai/notification-service/internal/handlers"
	"github.com/notifyai/notification-service/internal/middleware"
	"github.com/notifyai/notification-service/internal/providers"
	"github.com/notifyai/notification-service/internal/queue"
	"github.com/notifyai/notification-service/internal/reconcile"
	"github.com/notifyai/notification-service/internal/store"
	"github.com/notifyai/notification-service/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to build logger", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.MockProviders {
		logger.Info("Running in MOCK MODE - provider calls simulated")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stor, err := store.NewStore(ctx, cfg.Database.URL, cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer stor.Close()

	redisClient, err := redis.InitRedis(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// The broker is optional: a missing broker only disables outcome
	// fanout, the primary flows keep working.
	var rabbitClient *queue.RabbitMqClient
	if cfg.RabbitMQ.URL != "" {
		rabbitClient, err = queue.NewRabbitMqService(cfg.RabbitMQ)
		if err != nil {
			logger.Warn("RabbitMQ unavailable, outcome fanout disabled", zap.Error(err))
		} else {
			defer rabbitClient.CloseConnection()
			if err := rabbitClient.SetUpExchangeAndQueue(); err != nil {
				logger.Warn("Failed to declare exchange and queues", zap.Error(err))
			}
		}
	}

	emailAdapter := providers.NewSendGridAdapter(cfg.SendGrid, cfg.MockProviders, logger)

	var smsAdapter providers.Adapter
	switch cfg.SMSProvider {
	case "messagebird":
		smsAdapter = providers.NewMessageBirdAdapter(cfg.MessageBird, cfg.MockProviders, logger)
	default:
		smsAdapter = providers.NewTwilioAdapter(cfg.Twilio, cfg.MockProviders, logger)
	}

	var publisher dispatch.Publisher
	if rabbitClient != nil {
		publisher = rabbitClient
	}

	dispatcher := dispatch.NewEngine(stor, emailAdapter, smsAdapter, publisher, cfg.Dispatch.BatchSize, logger)
	reconciler := reconcile.NewEngine(stor, stor, redisClient, logger)

	notificationHandler := handlers.NewNotificationHandler(stor, emailAdapter, smsAdapter, publisher, logger)
	cronHandler := handlers.NewCronHandler(dispatcher, cfg.Auth.CronAPIKey, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.SendGrid.WebhookSecret, logger)
	stripeHandler := handlers.NewStripeHandler(stor, cfg.Stripe.WebhookSecret, logger)
	healthHandler := handlers.NewHealthHandler(stor, redisClient, rabbitClient)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		api.POST("/notifications/email", notificationHandler.SendEmail)
		api.POST("/notifications/sms", notificationHandler.SendSMS)
		api.POST("/notifications/schedule", notificationHandler.Schedule)
		api.GET("/notifications/stats", notificationHandler.Stats)
	}

	r.GET("/api/cron/scheduled-notifications", cronHandler.ProcessScheduledNotifications)

	webhooks := r.Group("/api/webhooks")
	{
		webhooks.POST("/sendgrid", webhookHandler.SendGridWebhook)
		webhooks.POST("/messagebird", webhookHandler.MessageBirdWebhook)
		webhooks.POST("/twilio", webhookHandler.TwilioWebhook)
		webhooks.POST("/stripe", stripeHandler.Webhook)
	}

	r.GET("/health", healthHandler.HealthCheck)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
