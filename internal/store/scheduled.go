package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/notifyai/notification-service/internal/models"
)

// InsertScheduled creates a new pending scheduled notification, either
// from a scheduling request or as the next occurrence of a recurring
// row (in which case ParentID references the occurrence that spawned it).
func (s *Store) InsertScheduled(ctx context.Context, sn *models.ScheduledNotification) error {
	if sn.ID == "" {
		sn.ID = uuid.New().String()
	}
	if sn.Status == "" {
		sn.Status = models.SchedulePending
	}
	now := time.Now().UTC()
	sn.CreatedAt = now
	sn.UpdatedAt = now

	variables, err := json.Marshal(sn.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}

	query := `
		INSERT INTO scheduled_notifications
			(id, type, recipient, subject, template, variables, scheduled_for, recurring, status, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		sn.ID, sn.Type, sn.Recipient, sn.Subject, sn.Template, variables,
		sn.ScheduledFor, sn.Recurring, sn.Status, sn.ParentID, sn.CreatedAt, sn.UpdatedAt,
	)
	return err
}

// claimLease bounds how long a processing claim is honored. A run that
// crashed mid-batch leaves its rows in processing; once the lease
// expires a later run reclaims them instead of stranding them.
const claimLease = 10 * time.Minute

// ClaimDue picks up to limit due pending rows, plus processing rows
// whose claim lease has expired, and flips them to processing inside
// one transaction. SKIP LOCKED keeps overlapping dispatcher runs from
// claiming the same rows.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.ScheduledNotification, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, type, recipient, subject, template, variables, scheduled_for, recurring, status, parent_id, created_at, updated_at
		FROM scheduled_notifications
		WHERE (status = $1 AND scheduled_for <= $2)
		   OR (status = $3 AND updated_at <= $4)
		ORDER BY scheduled_for ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $5
	`, models.SchedulePending, now, models.ScheduleProcessing, now.Add(-claimLease), limit)
	if err != nil {
		return nil, err
	}

	var due []models.ScheduledNotification
	for rows.Next() {
		var sn models.ScheduledNotification
		var variables []byte
		if err := rows.Scan(
			&sn.ID, &sn.Type, &sn.Recipient, &sn.Subject, &sn.Template, &variables,
			&sn.ScheduledFor, &sn.Recurring, &sn.Status, &sn.ParentID, &sn.CreatedAt, &sn.UpdatedAt,
		); err != nil {
			rows.Close()
			return nil, err
		}
		if len(variables) > 0 {
			if err := json.Unmarshal(variables, &sn.Variables); err != nil {
				rows.Close()
				return nil, fmt.Errorf("unmarshal variables: %w", err)
			}
		}
		due = append(due, sn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(due) == 0 {
		return nil, tx.Commit(ctx)
	}

	claimedAt := time.Now().UTC()
	for _, sn := range due {
		if _, err := tx.Exec(ctx, `
			UPDATE scheduled_notifications
			SET status = $2, updated_at = $3
			WHERE id = $1
		`, sn.ID, models.ScheduleProcessing, claimedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for i := range due {
		due[i].Status = models.ScheduleProcessing
		due[i].UpdatedAt = claimedAt
	}
	return due, nil
}

// MarkScheduledSent moves a claimed row to its terminal sent state and
// records the adapter result.
func (s *Store) MarkScheduledSent(ctx context.Context, id, result string, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = $2, sent_at = $3, result = $4, updated_at = now()
		WHERE id = $1
	`, id, models.ScheduleSent, sentAt, result)
	return err
}

// MarkScheduledFailed moves a claimed row to its terminal failed state.
// The row stays terminal; only a fresh schedule creates a new attempt.
func (s *Store) MarkScheduledFailed(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scheduled_notifications
		SET status = $2, error = $3, updated_at = now()
		WHERE id = $1
	`, id, models.ScheduleFailed, errMsg)
	return err
}
