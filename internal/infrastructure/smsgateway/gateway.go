package smsgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-qr-auth/internal/config"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed gateway response is kept for logs.
const maxErrorBody = 1 << 10

type recipient struct {
	Mobiles string `json:"mobiles"`
	Number  string `json:"number"`
}

type payload struct {
	TemplateID string      `json:"template_id"`
	Recipients []recipient `json:"recipients"`
}

// Sender posts passcodes to a template-based HTTP SMS provider. The template
// on the provider side renders the code from the "number" variable.
type Sender struct {
	client     *http.Client
	url        string
	authKey    string
	templateID string
	cookie     string
}

func NewSender(cfg *config.Config) (*Sender, error) {
	if cfg.SMSGatewayURL == "" {
		return nil, fmt.Errorf("SMS_API_URL is not set")
	}
	return &Sender{
		client:     &http.Client{Timeout: cfg.SMSTimeout},
		url:        cfg.SMSGatewayURL,
		authKey:    cfg.SMSAuthKey,
		templateID: cfg.SMSTemplateID,
		cookie:     fmt.Sprintf("HELLO_APP_HASH=%s; PHPSESSID=%s", cfg.SMSAppHash, cfg.SMSSessionID),
	}, nil
}

// SendOTP delivers code to the number, given as country code + digits.
// Any non-2xx reply is an error.
func (s *Sender) SendOTP(ctx context.Context, to, code string) error {
	body, err := json.Marshal(payload{
		TemplateID: s.templateID,
		Recipients: []recipient{{Mobiles: to, Number: code}},
	})
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authkey", s.authKey)
	req.Header.Set("Cookie", s.cookie)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		zap.L().Error("sms gateway rejected request",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", msg))
		return fmt.Errorf("sms gateway: status %d", resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// LogSender writes passcodes to the log instead of sending them.
// Meant for local development only.
type LogSender struct{}

func (LogSender) SendOTP(_ context.Context, to, code string) error {
	zap.L().Info("sms not sent (log provider)", zap.String("to", to), zap.String("code", code))
	return nil
}
