package models

import "time"

// NotificationType is the delivery channel of a notification.
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypeSMS   NotificationType = "sms"
)

// NotificationStatus tracks the lifecycle of one delivery attempt.
// The sending flow writes sent/failed; provider webhooks move the
// record through the rest of the vocabulary.
type NotificationStatus string

const (
	StatusSent         NotificationStatus = "sent"
	StatusDelivered    NotificationStatus = "delivered"
	StatusOpened       NotificationStatus = "opened"
	StatusClicked      NotificationStatus = "clicked"
	StatusFailed       NotificationStatus = "failed"
	StatusUnsubscribed NotificationStatus = "unsubscribed"
)

// Metadata keys under which each provider's message id is stored.
// Webhook lookups are scoped by notification type plus one of these keys.
const (
	MetaKeySendGridMessageID = "sendgrid_message_id"
	MetaKeyTwilioSID         = "twilio_sid"
	MetaKeyMessageBirdID     = "messagebird_id"
)

// Metadata is the open mapping of provider-specific fields on a
// notification. It only ever grows: reconciliation merges new keys in,
// it never replaces the map wholesale.
type Metadata map[string]any

// Notification is one record of an attempted or completed delivery.
type Notification struct {
	ID        string             `json:"id"`
	Type      NotificationType   `json:"type"`
	Recipient string             `json:"recipient"`
	Subject   string             `json:"subject,omitempty"`
	Content   string             `json:"content"`
	Status    NotificationStatus `json:"status"`
	Metadata  Metadata           `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Recurrence is the repeat pattern of a scheduled notification.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ScheduleStatus tracks a scheduled notification through dispatch.
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	// ScheduleProcessing is a transient claim state: a dispatcher run
	// flips due rows here inside one transaction so a concurrent run
	// cannot pick them up twice. A claim stranded by a crashed run is
	// reclaimed by a later one once its lease expires.
	ScheduleProcessing ScheduleStatus = "processing"
	ScheduleSent       ScheduleStatus = "sent"
	ScheduleFailed     ScheduleStatus = "failed"
)

// ScheduledNotification is a deferred or recurring intent to send,
// distinct from the Notification it eventually produces. A recurring
// row never resets itself: dispatch inserts a fresh pending row with
// ParentID pointing back at the occurrence that spawned it.
type ScheduledNotification struct {
	ID           string            `json:"id"`
	Type         NotificationType  `json:"type"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Template     string            `json:"template"`
	Variables    map[string]string `json:"variables,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	Recurring    Recurrence        `json:"recurring,omitempty"`
	Status       ScheduleStatus    `json:"status"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Result       string            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	ParentID     *string           `json:"parent_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// UserPreferences holds a user's opt-in flags. The reconciliation
// engine only ever flips these off (hard failure or unsubscribe); the
// settings UI owns every other mutation.
type UserPreferences struct {
	UserID             string `json:"user_id"`
	EmailNotifications bool   `json:"email_notifications"`
	SMSNotifications   bool   `json:"sms_notifications"`
	MarketingEmails    bool   `json:"marketing_emails"`
}

// Subscription mirrors the payment provider's subscription state.
type Subscription struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	PlanID             string    `json:"plan_id"`
	CustomerID         string    `json:"customer_id"`
	SubscriptionID     string    `json:"subscription_id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type SendEmailRequest struct {
	To        string            `json:"to" binding:"required"`
	Subject   string            `json:"subject" binding:"required"`
	Template  string            `json:"template" binding:"required"`
	Variables map[string]string `json:"variables"`
}

type SendSMSRequest struct {
	To        string            `json:"to" binding:"required"`
	Template  string            `json:"template" binding:"required"`
	Variables map[string]string `json:"variables"`
}

type ScheduleRequest struct {
	Type         NotificationType  `json:"type" binding:"required"`
	Recipient    string            `json:"recipient" binding:"required"`
	Subject      string            `json:"subject"`
	Template     string            `json:"template" binding:"required"`
	Variables    map[string]string `json:"variables"`
	ScheduledFor time.Time         `json:"scheduled_for" binding:"required"`
	Recurring    Recurrence        `json:"recurring"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message"`
}

type NotificationResponse struct {
	NotificationID string             `json:"notification_id"`
	Status         NotificationStatus `json:"status"`
	SentAt         time.Time          `json:"sent_at"`
}

// NotificationStats aggregates notification counts for the dashboard.
type NotificationStats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
}
