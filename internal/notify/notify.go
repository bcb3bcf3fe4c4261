// Package notify pushes short operator messages to a chat channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"tradebot/internal/util"
)

// TextNotifier delivers a plain-text message.
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// Send delivers text and logs, rather than returns, a delivery failure.
// A nil notifier is a no-op.
func Send(ctx context.Context, n TextNotifier, text string) {
	if n == nil {
		return
	}
	if err := n.SendText(ctx, text); err != nil {
		slog.Default().With("component", "notify").Warn("notification failed", "error", err)
	}
}

// ---------------------------------------------------------------------------
// Telegram
// ---------------------------------------------------------------------------

// Telegram sends messages through the Telegram Bot API.
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	policy   util.Policy
}

// NewTelegram creates a Telegram notifier for the given bot and chat.
func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 15 * time.Second},
		policy: util.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    3 * time.Second,
			Logger:      slog.Default().With("component", "telegram"),
		},
	}
}

// SendText posts text to the configured chat, with up to three attempts.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.botToken == "" || t.chatID == "" {
		return errors.New("telegram bot token or chat id not configured")
	}
	body, err := json.Marshal(map[string]any{
		"chat_id": t.chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)

	return t.policy.Do(ctx, "telegram.sendMessage", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode/100 != 2 {
			return fmt.Errorf("telegram status=%d", resp.StatusCode)
		}
		return nil
	})
}

// ---------------------------------------------------------------------------
// Log fallback
// ---------------------------------------------------------------------------

// Log writes messages to the structured log instead of a chat.
type Log struct {
	log *slog.Logger
}

// NewLog creates a log-only notifier.
func NewLog() *Log {
	return &Log{log: slog.Default().With("component", "notify")}
}

// SendText logs text at info level.
func (l *Log) SendText(_ context.Context, text string) error {
	l.log.Info("notification", "text", text)
	return nil
}

// New returns a Telegram notifier when both credentials are set and a log
// notifier otherwise.
func New(botToken, chatID string) TextNotifier {
	if botToken == "" || chatID == "" {
		return NewLog()
	}
	return NewTelegram(botToken, chatID)
}
