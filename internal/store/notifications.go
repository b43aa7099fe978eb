package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/notifyai/notification-service/internal/models"
)

// InsertNotification records one delivery attempt. The (type, provider
// message id) pair is kept unique by a partial index per provider
// metadata key, so webhook lookups can assume at most one match.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	n.CreatedAt = now
	n.UpdatedAt = now

	metadata, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO notifications (id, type, recipient, subject, content, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.pool.Exec(ctx, query,
		n.ID, n.Type, n.Recipient, n.Subject, n.Content, n.Status, metadata, n.CreatedAt, n.UpdatedAt,
	)
	return err
}

// FindByProviderMessageID resolves a webhook's provider-assigned message
// id to the notification it belongs to. The match is exact and scoped by
// notification type, so an email id and an SMS id never collide even if
// the values happen to be equal.
func (s *Store) FindByProviderMessageID(ctx context.Context, typ models.NotificationType, providerKey, messageID string) (*models.Notification, error) {
	query := `
		SELECT id, type, recipient, subject, content, status, metadata, created_at, updated_at
		FROM notifications
		WHERE type = $1 AND metadata->>$2 = $3
	`

	var n models.Notification
	var metadata []byte
	err := s.pool.QueryRow(ctx, query, typ, providerKey, messageID).Scan(
		&n.ID, &n.Type, &n.Recipient, &n.Subject, &n.Content, &n.Status, &metadata, &n.CreatedAt, &n.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &n, nil
}

// UpdateNotificationStatus sets the normalized status and merges the
// given fields into the existing metadata. The merge is jsonb || so
// prior event history is preserved, never overwritten wholesale.
func (s *Store) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, merge models.Metadata) error {
	if merge == nil {
		merge = models.Metadata{}
	}
	patch, err := json.Marshal(merge)
	if err != nil {
		return fmt.Errorf("marshal metadata patch: %w", err)
	}

	query := `
		UPDATE notifications
		SET status = $2,
		    metadata = metadata || $3::jsonb,
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query, id, status, patch)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// NotificationStats aggregates counts by type and by status for the
// dashboard analytics page.
func (s *Store) NotificationStats(ctx context.Context) (*models.NotificationStats, error) {
	query := `
		SELECT type, status, count(*)
		FROM notifications
		GROUP BY type, status
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.NotificationStats{
		ByType:   make(map[string]int),
		ByStatus: make(map[string]int),
	}
	for rows.Next() {
		var typ, status string
		var count int
		if err := rows.Scan(&typ, &status, &count); err != nil {
			return nil, err
		}
		stats.Total += count
		stats.ByType[typ] += count
		stats.ByStatus[status] += count
	}
	return stats, rows.Err()
}
