package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/internal/providers"
	"github.com/notifyai/notification-service/internal/templates"
	"go.uber.org/zap"
)

// Store is the slice of persistence the dispatcher needs: claiming due
// rows, recording per-row outcomes, inserting the next recurring
// occurrence and the Notification produced by each send.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error)
	MarkScheduledSent(ctx context.Context, id, result string, sentAt time.Time) error
	MarkScheduledFailed(ctx context.Context, id, errMsg string) error
	InsertScheduled(ctx context.Context, sn *models.ScheduledNotification) error
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// Publisher fans delivery outcomes out to the message broker.
// Publishing is best-effort; a broker hiccup never fails a dispatch.
type Publisher interface {
	PublishSent(ctx context.Context, n *models.Notification) error
	PublishFailed(ctx context.Context, n *models.Notification) error
}

// Result is the outcome of one processed row.
type Result struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Report is the outcome of one dispatcher invocation. An empty batch
// is a normal, successful outcome.
type Report struct {
	Processed int      `json:"processed"`
	Results   []Result `json:"results"`
}

// Engine processes due scheduled notifications: render, send through
// the matching adapter, record the outcome, and expand recurrences.
type Engine struct {
	store     Store
	adapters  map[models.NotificationType]providers.Adapter
	publisher Publisher
	batchSize int
	logger    *zap.Logger
}

func NewEngine(store Store, email, sms providers.Adapter, publisher Publisher, batchSize int, logger *zap.Logger) *Engine {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Engine{
		store: store,
		adapters: map[models.NotificationType]providers.Adapter{
			models.NotificationTypeEmail: email,
			models.NotificationTypeSMS:   sms,
		},
		publisher: publisher,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessDue runs one dispatch invocation. Row outcomes are
// independent: a failure is captured in the report and processing
// moves on to the next row. Only the initial claim can fail the run.
func (e *Engine) ProcessDue(ctx context.Context) (*Report, error) {
	due, err := e.store.ClaimDue(ctx, time.Now().UTC(), e.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim due notifications: %w", err)
	}
	if len(due) == 0 {
		return &Report{Processed: 0, Results: []Result{}}, nil
	}

	report := &Report{Results: make([]Result, 0, len(due))}
	for _, row := range due {
		result := e.processRow(ctx, row)
		report.Results = append(report.Results, result)
		report.Processed++
	}
	return report, nil
}

func (e *Engine) processRow(ctx context.Context, row models.ScheduledNotification) Result {
	adapter, ok := e.adapters[row.Type]
	if !ok || adapter == nil {
		errMsg := fmt.Sprintf("no adapter for notification type %q", row.Type)
		e.failRow(ctx, row, errMsg)
		return Result{ID: row.ID, Success: false, Error: errMsg}
	}

	content := templates.Render(row.Template, row.Variables)
	subject := row.Subject
	if subject == "" && row.Type == models.NotificationTypeEmail {
		subject = "Notification"
	}

	providerID, err := adapter.Send(ctx, providers.Message{
		Type:      row.Type,
		Recipient: row.Recipient,
		Subject:   subject,
		Content:   content,
	})
	if err != nil {
		e.logger.Error("scheduled send failed",
			zap.String("id", row.ID),
			zap.String("type", string(row.Type)),
			zap.Error(err),
		)
		e.recordNotification(ctx, row, subject, content, models.StatusFailed, models.Metadata{"error": err.Error()})
		e.failRow(ctx, row, err.Error())
		return Result{ID: row.ID, Success: false, Error: err.Error()}
	}

	sentAt := time.Now().UTC()
	e.recordNotification(ctx, row, subject, content, models.StatusSent, models.Metadata{adapter.MetadataKey(): providerID})

	result := Result{ID: row.ID, Success: true}
	if err := e.store.MarkScheduledSent(ctx, row.ID, providerID, sentAt); err != nil {
		// The message is out; report the bookkeeping failure but do not
		// let it end the recurrence chain below.
		e.logger.Error("failed to mark scheduled notification sent", zap.String("id", row.ID), zap.Error(err))
		result = Result{ID: row.ID, Success: false, Error: err.Error()}
	}

	// A failed send does not spawn the next occurrence; recurrence
	// only continues from successful dispatches.
	if row.Recurring != models.RecurrenceNone {
		e.expandRecurrence(ctx, row)
	}

	return result
}

func (e *Engine) expandRecurrence(ctx context.Context, row models.ScheduledNotification) {
	next, ok := NextOccurrence(row.ScheduledFor, row.Recurring)
	if !ok {
		e.logger.Warn("unknown recurrence pattern, not rescheduling",
			zap.String("id", row.ID),
			zap.String("recurring", string(row.Recurring)),
		)
		return
	}

	parentID := row.ID
	nextRow := &models.ScheduledNotification{
		Type:         row.Type,
		Recipient:    row.Recipient,
		Subject:      row.Subject,
		Template:     row.Template,
		Variables:    row.Variables,
		ScheduledFor: next,
		Recurring:    row.Recurring,
		Status:       models.SchedulePending,
		ParentID:     &parentID,
	}
	if err := e.store.InsertScheduled(ctx, nextRow); err != nil {
		e.logger.Error("failed to schedule next occurrence",
			zap.String("parent_id", row.ID),
			zap.Time("next", next),
			zap.Error(err),
		)
	}
}

func (e *Engine) failRow(ctx context.Context, row models.ScheduledNotification, errMsg string) {
	if err := e.store.MarkScheduledFailed(ctx, row.ID, errMsg); err != nil {
		e.logger.Error("failed to mark scheduled notification failed", zap.String("id", row.ID), zap.Error(err))
	}
}

// recordNotification persists the Notification produced by a send and
// fans the outcome out to the broker. Both are best-effort relative to
// the row's own bookkeeping.
func (e *Engine) recordNotification(ctx context.Context, row models.ScheduledNotification, subject, content string, status models.NotificationStatus, metadata models.Metadata) {
	n := &models.Notification{
		Type:      row.Type,
		Recipient: row.Recipient,
		Subject:   subject,
		Content:   content,
		Status:    status,
		Metadata:  metadata,
	}
	if err := e.store.InsertNotification(ctx, n); err != nil {
		e.logger.Error("failed to record notification", zap.String("scheduled_id", row.ID), zap.Error(err))
		return
	}

	if e.publisher == nil {
		return
	}
	var err error
	if status == models.StatusSent {
		err = e.publisher.PublishSent(ctx, n)
	} else {
		err = e.publisher.PublishFailed(ctx, n)
	}
	if err != nil {
		e.logger.Warn("failed to publish notification event", zap.String("notification_id", n.ID), zap.Error(err))
	}
}
