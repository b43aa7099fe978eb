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

const messageBirdSendURL = "https://rest.messagebird.com/messages"

// MessageBirdAdapter delivers SMS through the MessageBird REST API.
type MessageBirdAdapter struct {
	cfg        config.MessageBirdConfig
	sendURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	mockMode   bool
	logger     *zap.Logger
}

func NewMessageBirdAdapter(cfg config.MessageBirdConfig, mockMode bool, logger *zap.Logger) *MessageBirdAdapter {
	return &MessageBirdAdapter{
		cfg:     cfg,
		sendURL: messageBirdSendURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb:       circuitbreaker.NewCircuitBreaker("messagebird"),
		mockMode: mockMode,
		logger:   logger,
	}
}

func (a *MessageBirdAdapter) MetadataKey() string {
	return models.MetaKeyMessageBirdID
}

func (a *MessageBirdAdapter) Send(ctx context.Context, msg Message) (string, error) {
	if a.mockMode {
		a.logger.Info("sms sent (mock)", zap.String("to", msg.Recipient))
		return "mock-" + uuid.New().String(), nil
	}
	if a.cfg.APIKey == "" || a.cfg.Originator == "" {
		return "", fmt.Errorf("%w: MessageBird access key or originator missing", ErrNotConfigured)
	}

	payload := map[string]any{
		"originator": a.cfg.Originator,
		"recipients": []string{msg.Recipient},
		"body":       msg.Content,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal messagebird payload: %w", err)
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sendURL, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "AccessKey "+a.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return "", fmt.Errorf("%w: messagebird returned %d: %s", ErrProvider, resp.StatusCode, detail)
		}

		var out struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode messagebird response: %w", err)
		}
		return out.ID, nil
	})
	if err != nil {
		a.logger.Error("messagebird send failed", zap.String("to", msg.Recipient), zap.Error(err))
		return "", err
	}

	messageID := result.(string)
	a.logger.Info("sms sent", zap.String("to", msg.Recipient), zap.String("message_id", messageID))
	return messageID, nil
}
