// Package notify delivers alert messages to a chat webhook.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Notifier sends a text alert.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Webhook posts form-encoded {token, message} pairs to a relay URL, the
// format of the LINE notify relay the alerts were first sent through.
type Webhook struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewWebhook creates a Webhook with a bounded HTTP client.
func NewWebhook(url, token string) *Webhook {
	return &Webhook{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts message. A non-2xx reply is an error.
func (w *Webhook) Notify(ctx context.Context, message string) error {
	form := url.Values{}
	form.Set("token", w.Token)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := w.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post notify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Discard drops every message.
type Discard struct{}

// Notify implements Notifier.
func (Discard) Notify(context.Context, string) error { return nil }
