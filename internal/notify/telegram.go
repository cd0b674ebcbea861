// Package notify implements the Telegram notification sink.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram delivers messages through the Bot API's sendMessage call.
type Telegram struct {
	token   string
	chatID  string
	apiBase string
	client  *http.Client
	logger  *zap.Logger
}

// Option adjusts a Telegram sink.
type Option func(*Telegram)

// WithAPIBase overrides the Bot API origin. Tests point this at a local
// server.
func WithAPIBase(base string) Option {
	return func(t *Telegram) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Telegram) { t.client = client }
}

// NewTelegram builds the sink. Empty credentials are tolerated; Notify
// then logs and skips delivery instead of failing the run.
func NewTelegram(token, chatID string, logger *zap.Logger, opts ...Option) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		apiBase: defaultAPIBase,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Notify posts message as Markdown to the configured chat.
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if t.token == "" || t.chatID == "" {
		t.logger.Info("telegram bot token or chat id not set; skipping notification")
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	form := url.Values{
		"chat_id":    {t.chatID},
		"text":       {message},
		"parse_mode": {"Markdown"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram responded %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
