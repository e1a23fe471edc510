package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

const emailJSEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// EmailJSConfig holds the EmailJS credentials.
type EmailJSConfig struct {
	ServiceID  string
	TemplateID string
	PublicKey  string
	PrivateKey string
}

// Configured reports whether every credential is set.
func (c EmailJSConfig) Configured() bool {
	return c.ServiceID != "" && c.TemplateID != "" && c.PublicKey != "" && c.PrivateKey != ""
}

// EmailJSNotifier sends alerts through the EmailJS REST API. A failed send is
// returned to the caller and not retried.
type EmailJSNotifier struct {
	client   *http.Client
	cfg      EmailJSConfig
	endpoint string
}

// NewEmailJSNotifier creates an EmailJSNotifier.
func NewEmailJSNotifier(client *http.Client, cfg EmailJSConfig) *EmailJSNotifier {
	return &EmailJSNotifier{client: client, cfg: cfg, endpoint: emailJSEndpoint}
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
	AccessToken    string            `json:"accessToken"`
}

// Notify sends message as the template's "message" parameter.
func (n *EmailJSNotifier) Notify(ctx context.Context, message string) error {
	payload, err := json.Marshal(emailJSRequest{
		ServiceID:      n.cfg.ServiceID,
		TemplateID:     n.cfg.TemplateID,
		UserID:         n.cfg.PublicKey,
		TemplateParams: map[string]string{"message": message},
		AccessToken:    n.cfg.PrivateKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send alert: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

// LogNotifier writes alerts to the log. Used when no mail credentials are
// configured.
type LogNotifier struct{}

// Notify logs message.
func (LogNotifier) Notify(_ context.Context, message string) error {
	log.Warn().Str("service", "errors").Msg(message)
	return nil
}
