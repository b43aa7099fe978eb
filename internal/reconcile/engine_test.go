package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type MockNotificationStore struct {
	mock.Mock
}

func (m *MockNotificationStore) FindByProviderMessageID(ctx context.Context, typ models.NotificationType, providerKey, messageID string) (*models.Notification, error) {
	args := m.Called(ctx, typ, providerKey, messageID)
	if n := args.Get(0); n != nil {
		return n.(*models.Notification), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockNotificationStore) UpdateNotificationStatus(ctx context.Context, id string, status models.NotificationStatus, merge models.Metadata) error {
	args := m.Called(ctx, id, status, merge)
	return args.Error(0)
}

type MockPreferenceStore struct {
	mock.Mock
}

func (m *MockPreferenceStore) FindUserIDByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockPreferenceStore) FindUserIDByPhone(ctx context.Context, phone string) (string, error) {
	args := m.Called(ctx, phone)
	return args.String(0), args.Error(1)
}

func (m *MockPreferenceStore) DisableMarketingEmails(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPreferenceStore) DisableSMSNotifications(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func newTestEngine(t *testing.T) (*Engine, *MockNotificationStore, *MockPreferenceStore) {
	t.Helper()
	notifications := new(MockNotificationStore)
	prefs := new(MockPreferenceStore)
	return NewEngine(notifications, prefs, nil, zap.NewNop()), notifications, prefs
}

func TestProcessMailEvent_Delivered(t *testing.T) {
	engine, notifications, _ := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
		Return(&models.Notification{ID: "n-1", Type: models.NotificationTypeEmail, Status: models.StatusSent}, nil)
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusDelivered,
		models.Metadata{"delivered": int64(1700000000)}).Return(nil)

	err := engine.ProcessMailEvent(context.Background(), MailEvent{
		MessageID: "sg-1",
		Event:     "delivered",
		Timestamp: 1700000000,
		Email:     "sam@example.com",
	})
	assert.NoError(t, err)
	notifications.AssertExpectations(t)
}

func TestProcessMailEvent_Vocabulary(t *testing.T) {
	cases := []struct {
		event  string
		status models.NotificationStatus
	}{
		{"delivered", models.StatusDelivered},
		{"open", models.StatusOpened},
		{"click", models.StatusClicked},
		{"bounce", models.StatusFailed},
		{"dropped", models.StatusFailed},
		{"deferred", models.StatusFailed},
		{"processed", models.NotificationStatus("processed")}, // pass-through
	}

	for _, tc := range cases {
		t.Run(tc.event, func(t *testing.T) {
			engine, notifications, _ := newTestEngine(t)
			notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
				Return(&models.Notification{ID: "n-1"}, nil)
			notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", tc.status, mock.Anything).Return(nil)

			err := engine.ProcessMailEvent(context.Background(), MailEvent{MessageID: "sg-1", Event: tc.event})
			assert.NoError(t, err)
			notifications.AssertExpectations(t)
		})
	}
}

func TestProcessMailEvent_UnsubscribeDisablesMarketing(t *testing.T) {
	engine, notifications, prefs := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
		Return(&models.Notification{ID: "n-1"}, nil)
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusUnsubscribed, mock.Anything).Return(nil)
	prefs.On("FindUserIDByEmail", mock.Anything, "sam@example.com").Return("user-1", nil)
	prefs.On("DisableMarketingEmails", mock.Anything, "user-1").Return(nil)

	err := engine.ProcessMailEvent(context.Background(), MailEvent{
		MessageID: "sg-1",
		Event:     "unsubscribe",
		Email:     "sam@example.com",
	})
	assert.NoError(t, err)
	prefs.AssertExpectations(t)
}

func TestProcessMailEvent_SideEffectFailureIsBestEffort(t *testing.T) {
	engine, notifications, prefs := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
		Return(&models.Notification{ID: "n-1"}, nil)
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusUnsubscribed, mock.Anything).Return(nil)
	prefs.On("FindUserIDByEmail", mock.Anything, "ghost@example.com").Return("", store.ErrNotFound)

	err := engine.ProcessMailEvent(context.Background(), MailEvent{
		MessageID: "sg-1",
		Event:     "unsubscribe",
		Email:     "ghost@example.com",
	})
	assert.NoError(t, err)
}

func TestProcessMailEvent_MissingFields(t *testing.T) {
	engine, notifications, _ := newTestEngine(t)

	err := engine.ProcessMailEvent(context.Background(), MailEvent{Event: "delivered"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = engine.ProcessMailEvent(context.Background(), MailEvent{MessageID: "sg-1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	// A 400 is decided before any lookup is issued.
	notifications.AssertNotCalled(t, "FindByProviderMessageID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessMailEvent_UnmatchedIsDropped(t *testing.T) {
	engine, notifications, _ := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "unknown").
		Return(nil, store.ErrNotFound)

	err := engine.ProcessMailEvent(context.Background(), MailEvent{MessageID: "unknown", Event: "delivered"})
	assert.NoError(t, err)
	notifications.AssertNotCalled(t, "UpdateNotificationStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessMailEvent_Idempotent(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	notifications := new(MockNotificationStore)
	prefs := new(MockPreferenceStore)
	engine := NewEngine(notifications, prefs, redisClient, zap.NewNop())

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
		Return(&models.Notification{ID: "n-1"}, nil).Once()
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusDelivered, mock.Anything).Return(nil).Once()

	ev := MailEvent{MessageID: "sg-1", Event: "delivered", Timestamp: 1700000000}

	assert.NoError(t, engine.ProcessMailEvent(context.Background(), ev))
	// Redelivery of the same event is a safe no-op.
	assert.NoError(t, engine.ProcessMailEvent(context.Background(), ev))
	notifications.AssertExpectations(t)
}

func TestProcessMailEvent_RetryAppliesAfterStoreFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	notifications := new(MockNotificationStore)
	prefs := new(MockPreferenceStore)
	engine := NewEngine(notifications, prefs, redisClient, zap.NewNop())

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeEmail, models.MetaKeySendGridMessageID, "sg-1").
		Return(&models.Notification{ID: "n-1"}, nil).Twice()
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusDelivered, mock.Anything).
		Return(errors.New("db down")).Once()
	notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", models.StatusDelivered, mock.Anything).
		Return(nil).Once()

	ev := MailEvent{MessageID: "sg-1", Event: "delivered", Timestamp: 1700000000}

	assert.Error(t, engine.ProcessMailEvent(context.Background(), ev))
	// The provider redelivers after the error response. The retry must
	// apply the update; the dedup key is only written once it has.
	assert.NoError(t, engine.ProcessMailEvent(context.Background(), ev))
	notifications.AssertExpectations(t)
}

func TestProcessSMSAEvent_Vocabulary(t *testing.T) {
	cases := []struct {
		status   string
		expected models.NotificationStatus
		optOut   bool
	}{
		{"delivered", models.StatusDelivered, false},
		{"sent", models.StatusSent, false},
		{"delivery_failed", models.StatusFailed, true},
		{"failed", models.StatusFailed, true},
		{"buffered", models.NotificationStatus("buffered"), false}, // pass-through
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			engine, notifications, prefs := newTestEngine(t)
			notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeSMS, models.MetaKeyMessageBirdID, "mb-1").
				Return(&models.Notification{ID: "n-1"}, nil)
			notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", tc.expected, mock.Anything).Return(nil)
			if tc.optOut {
				prefs.On("FindUserIDByPhone", mock.Anything, "+15551234567").Return("user-1", nil)
				prefs.On("DisableSMSNotifications", mock.Anything, "user-1").Return(nil)
			}

			err := engine.ProcessSMSAEvent(context.Background(), SMSAEvent{
				ID:        "mb-1",
				Status:    tc.status,
				Recipient: "+15551234567",
			})
			assert.NoError(t, err)
			notifications.AssertExpectations(t)
			prefs.AssertExpectations(t)
		})
	}
}

func TestProcessSMSAEvent_NotFoundSurfaces(t *testing.T) {
	engine, notifications, _ := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeSMS, models.MetaKeyMessageBirdID, "unknown").
		Return(nil, store.ErrNotFound)

	err := engine.ProcessSMSAEvent(context.Background(), SMSAEvent{ID: "unknown", Status: "delivered"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessSMSAEvent_MissingFields(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.ProcessSMSAEvent(context.Background(), SMSAEvent{Status: "delivered"})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = engine.ProcessSMSAEvent(context.Background(), SMSAEvent{ID: "mb-1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestProcessSMSBEvent_Vocabulary(t *testing.T) {
	cases := []struct {
		status   string
		expected models.NotificationStatus
		optOut   bool
	}{
		{"delivered", models.StatusDelivered, false},
		{"sent", models.StatusSent, false},
		{"failed", models.StatusFailed, true},
		{"undelivered", models.StatusFailed, true},
		{"queued", models.NotificationStatus("queued"), false}, // pass-through
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			engine, notifications, prefs := newTestEngine(t)
			notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeSMS, models.MetaKeyTwilioSID, "SM1").
				Return(&models.Notification{ID: "n-1"}, nil)
			notifications.On("UpdateNotificationStatus", mock.Anything, "n-1", tc.expected, mock.Anything).Return(nil)
			if tc.optOut {
				prefs.On("FindUserIDByPhone", mock.Anything, "+15551234567").Return("user-1", nil)
				prefs.On("DisableSMSNotifications", mock.Anything, "user-1").Return(nil)
			}

			err := engine.ProcessSMSBEvent(context.Background(), SMSBEvent{
				MessageSid:    "SM1",
				MessageStatus: tc.status,
				To:            "+15551234567",
			})
			assert.NoError(t, err)
			notifications.AssertExpectations(t)
			prefs.AssertExpectations(t)
		})
	}
}

func TestProviderScoping(t *testing.T) {
	// The same raw id looked up through the SMS path must never touch
	// email records: the type and metadata key in the query differ.
	engine, notifications, _ := newTestEngine(t)

	notifications.On("FindByProviderMessageID", mock.Anything, models.NotificationTypeSMS, models.MetaKeyTwilioSID, "shared-id").
		Return(nil, store.ErrNotFound)

	err := engine.ProcessSMSBEvent(context.Background(), SMSBEvent{MessageSid: "shared-id", MessageStatus: "delivered"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	notifications.AssertNotCalled(t, "FindByProviderMessageID",
		mock.Anything, models.NotificationTypeEmail, mock.Anything, mock.Anything)
}
