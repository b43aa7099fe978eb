package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/notifyai/notification-service/internal/config"
	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const sendGridSendURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridAdapter delivers email through the SendGrid v3 mail API.
type SendGridAdapter struct {
	cfg        config.SendGridConfig
	sendURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	mockMode   bool
	logger     *zap.Logger
}

func NewSendGridAdapter(cfg config.SendGridConfig, mockMode bool, logger *zap.Logger) *SendGridAdapter {
	return &SendGridAdapter{
		cfg:     cfg,
		sendURL: sendGridSendURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb:       circuitbreaker.NewCircuitBreaker("sendgrid"),
		mockMode: mockMode,
		logger:   logger,
	}
}

func (a *SendGridAdapter) MetadataKey() string {
	return models.MetaKeySendGridMessageID
}

func (a *SendGridAdapter) Send(ctx context.Context, msg Message) (string, error) {
	if a.mockMode {
		a.logger.Info("email sent (mock)", zap.String("to", msg.Recipient))
		return "mock-" + uuid.New().String(), nil
	}
	if a.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: SendGrid API key missing", ErrNotConfigured)
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.Recipient}}},
		},
		"from":    map[string]string{"email": a.cfg.FromAddress},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": msg.Content},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sendURL, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return "", fmt.Errorf("%w: sendgrid returned %d: %s", ErrProvider, resp.StatusCode, detail)
		}
		return resp.Header.Get("X-Message-Id"), nil
	})
	if err != nil {
		a.logger.Error("sendgrid send failed", zap.String("to", msg.Recipient), zap.Error(err))
		return "", err
	}

	messageID := result.(string)
	a.logger.Info("email sent", zap.String("to", msg.Recipient), zap.String("message_id", messageID))
	return messageID, nil
}
