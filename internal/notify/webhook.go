package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier delivers a plain-text message to an out-of-band channel.
// Delivery is best-effort: callers log failures and carry on.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

// WebhookNotifier posts messages to an HTTP webhook (an n8n flow relaying
// to Telegram in the reference deployment).
type WebhookNotifier struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWebhookNotifier(url, apiKey string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, message string) error {
	if n.url == "" {
		return fmt.Errorf("notify: no webhook URL configured")
	}

	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("tg-notify-api-key", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
