package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nodewatch/sentinel/internal/domain"
)

// WebhookSender POSTs each alert's JSON encoding to a fixed URL. Delivery
// formatting is explicitly out of scope (spec §1), so this ships the wire
// record unmodified; a real deployment's receiver owns presentation.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender builds a WebhookSender posting to url.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

// Send implements Sender.
func (s *WebhookSender) Send(ctx context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("channels: encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("channels: building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sentinel-Delivery", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("channels: posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("channels: webhook responded %s", resp.Status)
	}
	return nil
}
