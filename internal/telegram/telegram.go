// Package telegram sends run reports to the operator's Telegram chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/deusflow/newsreel/internal/logger"
	"github.com/deusflow/newsreel/internal/metrics"
	"github.com/deusflow/newsreel/internal/retry"
)

const defaultBaseURL = "https://api.telegram.org"

// maxMessageRunes is Telegram's limit for one text message.
const maxMessageRunes = 4096

type Notifier struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
}

func NewNotifier(token, chatID string) *Notifier {
	return &Notifier{
		token:   token,
		chatID:  chatID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true},
	}
}

// Enabled reports whether both token and chat are configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.token != "" && n.chatID != ""
}

// SendReport posts text to the chat, retrying with exponential backoff.
func (n *Notifier) SendReport(ctx context.Context, text string) error {
	if !n.Enabled() {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-1]) + "…"
	}

	err := n.send(ctx, "sendMessage", map[string]interface{}{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err == nil {
		metrics.Global.IncrementReportsSent()
	}
	return err
}

// SendPhoto posts the image at photoURL with an HTML caption.
func (n *Notifier) SendPhoto(ctx context.Context, photoURL, caption string) error {
	if !n.Enabled() {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	return n.send(ctx, "sendPhoto", map[string]interface{}{
		"chat_id":    n.chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	})
}

func (n *Notifier) send(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)

	cfg := n.retry
	cfg.OnRetry = func(attempt int, err error) {
		logger.Warn("error send to Telegram", "method", method, "attempt", attempt, "max", cfg.MaxAttempts, "error", err)
	}
	return retry.WithRetry(ctx, cfg, func() error {
		return n.post(ctx, url, body)
	})
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err = fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	// client errors other than rate limiting will not succeed on retry
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}
