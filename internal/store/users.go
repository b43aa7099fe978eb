package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (s *Store) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (s *Store) FindUserIDByPhone(ctx context.Context, phone string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM users WHERE phone = $1`, phone).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

// DisableMarketingEmails opts a user out of marketing email after an
// unsubscribe event. Preference flags only ever move in the opt-out
// direction here; the settings UI owns the rest.
func (s *Store) DisableMarketingEmails(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_preferences SET marketing_emails = false WHERE user_id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableSMSNotifications opts a user out of SMS after a hard delivery
// failure.
func (s *Store) DisableSMSNotifications(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_preferences SET sms_notifications = false WHERE user_id = $1
	`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
