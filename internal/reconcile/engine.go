package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/internal/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrInvalidEvent means a webhook payload is missing required fields.
// Handlers translate it to a 400 before any lookup is issued.
var ErrInvalidEvent = errors.New("invalid webhook event")

// NotificationStore is the slice of the record store reconciliation
// needs: type-scoped lookup by provider message id and a merge-only
// status update.
type NotificationStore interface {
	FindByProviderMessageID(ctx context.Context, typ models.NotificationType, providerKey, messageID string) (*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, merge models.Metadata) error
}

// PreferenceStore applies the opt-out side effects of terminal events.
type PreferenceStore interface {
	FindUserIDByEmail(ctx context.Context, email string) (string, error)
	FindUserIDByPhone(ctx context.Context, phone string) (string, error)
	DisableMarketingEmails(ctx context.Context, userID string) error
	DisableSMSNotifications(ctx context.Context, userID string) error
}

// Engine normalizes the three provider event vocabularies into the
// internal status enum and applies opt-out side effects. Side effects
// are best-effort: their failure never fails the webhook.
type Engine struct {
	notifications NotificationStore
	prefs         PreferenceStore
	redis         *redis.Client
	logger        *zap.Logger
}

func NewEngine(notifications NotificationStore, prefs PreferenceStore, redisClient *redis.Client, logger *zap.Logger) *Engine {
	return &Engine{
		notifications: notifications,
		prefs:         prefs,
		redis:         redisClient,
		logger:        logger,
	}
}

// MailEvent is one entry of the mail provider's event webhook batch.
type MailEvent struct {
	MessageID string `json:"sg_message_id"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Email     string `json:"email"`
}

// SMSAEvent is the JSON status callback of SMS provider A (MessageBird).
type SMSAEvent struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Recipient string `json:"recipient"`
}

// SMSBEvent is the form-encoded status callback of SMS provider B (Twilio).
type SMSBEvent struct {
	MessageSid    string
	MessageStatus string
	To            string
}

// ProcessMailEvent applies one mail provider event. Unmatched message
// ids are dropped with a warning rather than surfaced as errors, so the
// provider gets an acknowledgment and does not retry-storm us.
func (e *Engine) ProcessMailEvent(ctx context.Context, ev MailEvent) error {
	if ev.MessageID == "" || ev.Event == "" {
		return fmt.Errorf("%w: sg_message_id and event are required", ErrInvalidEvent)
	}

	seen := fmt.Sprintf("%s:%d", ev.Event, ev.Timestamp)
	if e.alreadySeen(ctx, "sendgrid", ev.MessageID, seen) {
		e.logger.Debug("duplicate mail event skipped",
			zap.String("message_id", ev.MessageID), zap.String("event", ev.Event))
		return nil
	}

	n, err := e.notifications.FindByProviderMessageID(ctx, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, ev.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		e.logger.Warn("no notification found for mail event",
			zap.String("message_id", ev.MessageID), zap.String("event", ev.Event))
		return nil
	}
	if err != nil {
		return err
	}

	var status models.NotificationStatus
	switch ev.Event {
	case "delivered":
		status = models.StatusDelivered
	case "open":
		status = models.StatusOpened
	case "click":
		status = models.StatusClicked
	case "bounce", "dropped", "deferred":
		status = models.StatusFailed
	case "unsubscribe":
		status = models.StatusUnsubscribed
		if ev.Email != "" {
			e.disableMarketingEmails(ctx, ev.Email)
		}
	default:
		// Unrecognized events pass through unchanged as the status value.
		status = models.NotificationStatus(ev.Event)
	}

	merge := models.Metadata{ev.Event: ev.Timestamp}
	if err := e.notifications.UpdateNotificationStatus(ctx, n.ID, status, merge); err != nil {
		return err
	}
	e.markSeen(ctx, "sendgrid", ev.MessageID, seen)
	return nil
}

// ProcessSMSAEvent applies one SMS provider A status callback. A
// missing notification is reported as store.ErrNotFound so the handler
// can answer 404 per that endpoint's contract.
func (e *Engine) ProcessSMSAEvent(ctx context.Context, ev SMSAEvent) error {
	if ev.ID == "" || ev.Status == "" {
		return fmt.Errorf("%w: id and status are required", ErrInvalidEvent)
	}

	n, err := e.notifications.FindByProviderMessageID(ctx, models.NotificationTypeSMS, models.MetaKeyMessageBirdID, ev.ID)
	if err != nil {
		return err
	}

	var status models.NotificationStatus
	switch ev.Status {
	case "delivered":
		status = models.StatusDelivered
	case "sent":
		status = models.StatusSent
	case "delivery_failed", "failed":
		status = models.StatusFailed
	default:
		status = models.NotificationStatus(ev.Status)
	}

	merge := models.Metadata{
		"status_update":     ev.Status,
		"status_updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.notifications.UpdateNotificationStatus(ctx, n.ID, status, merge); err != nil {
		return err
	}

	if status == models.StatusFailed && ev.Recipient != "" {
		e.disableSMSNotifications(ctx, ev.Recipient)
	}
	return nil
}

// ProcessSMSBEvent applies one SMS provider B status callback.
func (e *Engine) ProcessSMSBEvent(ctx context.Context, ev SMSBEvent) error {
	if ev.MessageSid == "" || ev.MessageStatus == "" {
		return fmt.Errorf("%w: MessageSid and MessageStatus are required", ErrInvalidEvent)
	}

	n, err := e.notifications.FindByProviderMessageID(ctx, models.NotificationTypeSMS, models.MetaKeyTwilioSID, ev.MessageSid)
	if err != nil {
		return err
	}

	var status models.NotificationStatus
	switch ev.MessageStatus {
	case "delivered":
		status = models.StatusDelivered
	case "sent":
		status = models.StatusSent
	case "failed", "undelivered":
		status = models.StatusFailed
	default:
		status = models.NotificationStatus(ev.MessageStatus)
	}

	merge := models.Metadata{
		"status_update":     ev.MessageStatus,
		"status_updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := e.notifications.UpdateNotificationStatus(ctx, n.ID, status, merge); err != nil {
		return err
	}

	if status == models.StatusFailed && ev.To != "" {
		e.disableSMSNotifications(ctx, ev.To)
	}
	return nil
}

// alreadySeen reports whether an earlier delivery of this exact event
// was fully applied. markSeen writes the key only after the status
// update lands, so a delivery that failed mid-way is retried in full
// when the provider redelivers it. With no redis configured every
// event is treated as new.
func (e *Engine) alreadySeen(ctx context.Context, provider, messageID, event string) bool {
	if e.redis == nil {
		return false
	}
	n, err := e.redis.Exists(ctx, eventKey(provider, messageID, event)).Result()
	if err != nil {
		e.logger.Warn("webhook idempotency check failed", zap.Error(err))
		return false
	}
	return n > 0
}

func (e *Engine) markSeen(ctx context.Context, provider, messageID, event string) {
	if e.redis == nil {
		return
	}
	if err := e.redis.Set(ctx, eventKey(provider, messageID, event), "1", 24*time.Hour).Err(); err != nil {
		e.logger.Warn("failed to record webhook event key", zap.Error(err))
	}
}

func eventKey(provider, messageID, event string) string {
	return fmt.Sprintf("webhook:event:%s:%s:%s", provider, messageID, event)
}

func (e *Engine) disableMarketingEmails(ctx context.Context, email string) {
	userID, err := e.prefs.FindUserIDByEmail(ctx, email)
	if err != nil {
		e.logger.Warn("could not resolve user for unsubscribe", zap.String("email", email), zap.Error(err))
		return
	}
	if err := e.prefs.DisableMarketingEmails(ctx, userID); err != nil {
		e.logger.Warn("failed to disable marketing emails", zap.String("user_id", userID), zap.Error(err))
	}
}

func (e *Engine) disableSMSNotifications(ctx context.Context, phone string) {
	userID, err := e.prefs.FindUserIDByPhone(ctx, phone)
	if err != nil {
		e.logger.Warn("could not resolve user for sms opt-out", zap.String("phone", phone), zap.Error(err))
		return
	}
	if err := e.prefs.DisableSMSNotifications(ctx, userID); err != nil {
		e.logger.Warn("failed to disable sms notifications", zap.String("user_id", userID), zap.Error(err))
	}
}
