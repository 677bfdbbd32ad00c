package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier POSTs the message as JSON to a chat webhook. The payload
// carries both "content" (Discord) and "text" (Slack, Mattermost).
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a notifier for url with a 5 second timeout.
func NewWebhookNotifier(url string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: url is required")
	}
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

func (w *WebhookNotifier) Name() string { return "webhook" }

type webhookPayload struct {
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (w *WebhookNotifier) Send(ctx context.Context, message string) error {
	body, err := json.Marshal(webhookPayload{Content: message, Text: message})
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrNotification, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", ErrNotification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrNotification, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status code: %d", ErrNotification, resp.StatusCode)
	}
	return nil
}
