package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"
)

const (
	_telegramApiBase = "https://api.telegram.org"

	sendTimeout = 5 * time.Second
)

// Telegram pushes operational messages to a chat. Every send is best
// effort: failures log and report false, nothing propagates into the
// trading loops. A nil or unconfigured notifier swallows everything.
type Telegram struct {
	client   *http.Client
	apiBase  string
	botToken string
	chatID   string
	account  string
	enabled  bool

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewTelegram builds a notifier. It stays disabled unless both the bot
// token and the chat id are set.
func NewTelegram(client *http.Client, botToken, chatID, account string) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}

	return &Telegram{
		client:   client,
		apiBase:  _telegramApiBase,
		botToken: botToken,
		chatID:   chatID,
		account:  account,
		enabled:  botToken != "" && chatID != "",
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Enabled reports whether sends go anywhere.
func (t *Telegram) Enabled() bool {
	return t != nil && t.enabled
}

// Send pushes one message, prefixed with the account name when configured.
func (t *Telegram) Send(ctx context.Context, text string) bool {
	if !t.Enabled() {
		return false
	}

	if t.account != "" {
		text = "[" + t.account + "] " + text
	}

	body, err := sonic.ConfigFastest.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		logs.Warnf("encode telegram payload: %+v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	endpoint := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		logs.Warnf("build telegram request: %+v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		logs.Warnf("send telegram message: %+v", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logs.Warnf("telegram answered %d", resp.StatusCode)
		return false
	}
	return true
}

// SendThrottled drops the message when another one with the same key went
// out inside the window. Alert storms collapse to one message per window.
func (t *Telegram) SendThrottled(ctx context.Context, key string, window time.Duration, text string) bool {
	if !t.Enabled() {
		return false
	}

	t.mu.Lock()
	last, seen := t.lastSent[key]
	if seen && t.now().Sub(last) < window {
		t.mu.Unlock()
		logs.Debugf("telegram message throttled, key: %s", key)
		return false
	}
	t.lastSent[key] = t.now()
	t.mu.Unlock()

	return t.Send(ctx, text)
}
