package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/notifyai/notification-service/internal/config"
	"github.com/notifyai/notification-service/internal/models"
	"github.com/notifyai/notification-service/pkg/circuitbreaker"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioAdapter delivers SMS through the Twilio Messages API.
type TwilioAdapter struct {
	cfg        config.TwilioConfig
	apiBase    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	mockMode   bool
	logger     *zap.Logger
}

func NewTwilioAdapter(cfg config.TwilioConfig, mockMode bool, logger *zap.Logger) *TwilioAdapter {
	return &TwilioAdapter{
		cfg:     cfg,
		apiBase: twilioAPIBase,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cb:       circuitbreaker.NewCircuitBreaker("twilio"),
		mockMode: mockMode,
		logger:   logger,
	}
}

func (a *TwilioAdapter) MetadataKey() string {
	return models.MetaKeyTwilioSID
}

func (a *TwilioAdapter) Send(ctx context.Context, msg Message) (string, error) {
	if a.mockMode {
		a.logger.Info("sms sent (mock)", zap.String("to", msg.Recipient))
		return "mock-" + uuid.New().String(), nil
	}
	if a.cfg.AccountSID == "" || a.cfg.AuthToken == "" || a.cfg.FromNumber == "" {
		return "", fmt.Errorf("%w: Twilio credentials or sending number missing", ErrNotConfigured)
	}

	form := url.Values{}
	form.Set("To", msg.Recipient)
	form.Set("From", a.cfg.FromNumber)
	form.Set("Body", msg.Content)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", a.apiBase, a.cfg.AccountSID)

	result, err := a.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return "", err
		}
		req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return "", fmt.Errorf("%w: twilio returned %d: %s", ErrProvider, resp.StatusCode, detail)
		}

		var out struct {
			SID string `json:"sid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode twilio response: %w", err)
		}
		return out.SID, nil
	})
	if err != nil {
		a.logger.Error("twilio send failed", zap.String("to", msg.Recipient), zap.Error(err))
		return "", err
	}

	sid := result.(string)
	a.logger.Info("sms sent", zap.String("to", msg.Recipient), zap.String("message_id", sid))
	return sid, nil
}
