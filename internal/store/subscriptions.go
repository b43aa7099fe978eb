package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/notifyai/notification-service/internal/models"
)

// UpsertSubscription syncs a subscription row from a payment provider
// webhook, keyed by the provider subscription id.
func (s *Store) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO subscriptions
			(id, user_id, plan_id, customer_id, subscription_id, status,
			 current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (subscription_id) DO UPDATE SET
			status = EXCLUDED.status,
			plan_id = EXCLUDED.plan_id,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		sub.ID, sub.UserID, sub.PlanID, sub.CustomerID, sub.SubscriptionID, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd, now,
	)
	return err
}

// UpdateSubscriptionStatus applies a status change pushed by the
// payment provider for an existing subscription.
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, subscriptionID, status string, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $2, current_period_end = $3, cancel_at_period_end = $4, updated_at = now()
		WHERE subscription_id = $1
	`, subscriptionID, status, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkSubscriptionCanceled records a provider-side cancellation.
func (s *Store) MarkSubscriptionCanceled(ctx context.Context, subscriptionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = 'canceled', updated_at = now()
		WHERE subscription_id = $1
	`, subscriptionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
