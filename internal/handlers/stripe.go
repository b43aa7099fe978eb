package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notifyai/notification-service/internal/models"
	"go.uber.org/zap"
)

// SubscriptionStore syncs payment provider subscription state.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string, periodEnd time.Time, cancelAtPeriodEnd bool) error
	MarkSubscriptionCanceled(ctx context.Context, subscriptionID string) error
}

// StripeHandler terminates the payment provider webhook. Unlike the
// notification webhooks this one is always signature-verified.
type StripeHandler struct {
	store  SubscriptionStore
	secret string
	logger *zap.Logger
}

func NewStripeHandler(store SubscriptionStore, secret string, logger *zap.Logger) *StripeHandler {
	return &StripeHandler{
		store:  store,
		secret: secret,
		logger: logger,
	}
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object stripeObject `json:"object"`
	} `json:"data"`
}

type stripeObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Subscription       string            `json:"subscription"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
}

func (h *StripeHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := verifySignedPayload(h.secret, body, c.GetHeader("Stripe-Signature"), time.Now()); err != nil {
		h.logger.Warn("stripe webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var event stripeEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}

	ctx := c.Request.Context()
	obj := event.Data.Object

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(ctx, obj)
	case "invoice.payment_succeeded":
		if obj.Subscription != "" {
			err = h.store.UpdateSubscriptionStatus(ctx, obj.Subscription, "active",
				time.Unix(obj.CurrentPeriodEnd, 0).UTC(), obj.CancelAtPeriodEnd)
		}
	case "customer.subscription.updated":
		err = h.store.UpdateSubscriptionStatus(ctx, obj.ID, obj.Status,
			time.Unix(obj.CurrentPeriodEnd, 0).UTC(), obj.CancelAtPeriodEnd)
	case "customer.subscription.deleted":
		err = h.store.MarkSubscriptionCanceled(ctx, obj.ID)
	default:
		h.logger.Info("unhandled stripe event type", zap.String("type", event.Type))
	}
	if err != nil {
		// Sync failures are logged but acknowledged; the provider keeps
		// the authoritative state and the next event re-syncs it.
		h.logger.Error("failed to sync subscription", zap.String("event_type", event.Type), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *StripeHandler) handleCheckoutCompleted(ctx context.Context, obj stripeObject) {
	userID := obj.Metadata["userId"]
	planID := obj.Metadata["planId"]
	if userID == "" || planID == "" {
		h.logger.Warn("checkout session missing metadata", zap.String("session_id", obj.ID))
		return
	}

	sub := &models.Subscription{
		UserID:             userID,
		PlanID:             planID,
		CustomerID:         obj.Customer,
		SubscriptionID:     obj.Subscription,
		Status:             "active",
		CurrentPeriodStart: time.Unix(obj.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:   time.Unix(obj.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:  obj.CancelAtPeriodEnd,
	}
	if err := h.store.UpsertSubscription(ctx, sub); err != nil {
		h.logger.Error("failed to upsert subscription", zap.String("subscription_id", obj.Subscription), zap.Error(err))
	}
}
