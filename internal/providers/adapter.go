package providers

import (
	"context"
	"errors"

	"github.com/notifyai/notification-service/internal/models"
)

var (
	// ErrNotConfigured means the provider credential or sending identity
	// is missing. Surfaced at call time, never retried.
	ErrNotConfigured = errors.New("provider not configured")
	// ErrProvider means the remote delivery call failed.
	ErrProvider = errors.New("provider call failed")
)

// Message is one rendered message ready to hand to a provider.
type Message struct {
	Type      models.NotificationType
	Recipient string
	Subject   string
	Content   string
}

// Adapter sends one message through a provider and returns the
// provider-assigned message identifier. Adapters never persist
// anything; the caller owns the Notification record.
type Adapter interface {
	Send(ctx context.Context, msg Message) (providerMessageID string, err error)
	// MetadataKey is the notification metadata key under which this
	// provider's message id is stored and later looked up by webhooks.
	MetadataKey() string
}
