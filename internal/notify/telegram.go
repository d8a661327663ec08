package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const telegramAPI = "https://api.telegram.org"

// SenderOption configures a chat sender.
type SenderOption func(*senderConfig)

type senderConfig struct {
	httpClient *http.Client
	baseURL    string
}

// WithHTTPClient replaces the default 10-second-timeout client.
func WithHTTPClient(c *http.Client) SenderOption {
	return func(cfg *senderConfig) { cfg.httpClient = c }
}

// WithBaseURL points the Telegram sender at another API host.
func WithBaseURL(u string) SenderOption {
	return func(cfg *senderConfig) { cfg.baseURL = strings.TrimRight(u, "/") }
}

func applyOptions(opts []SenderOption) senderConfig {
	cfg := senderConfig{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    telegramAPI,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// TelegramSender delivers notifications through the Bot API sendMessage call.
type TelegramSender struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat.
func NewTelegramSender(token, chatID string, opts ...SenderOption) *TelegramSender {
	cfg := applyOptions(opts)
	return &TelegramSender{
		token:   token,
		chatID:  chatID,
		baseURL: cfg.baseURL,
		client:  cfg.httpClient,
	}
}

// Send posts the message with the title in bold. Text is HTML-escaped since
// market titles routinely contain characters Markdown would mangle.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)

	body, err := json.Marshal(map[string]any{
		"chat_id":                  t.chatID,
		"text":                     "<b>" + html.EscapeString(title) + "</b>\n" + html.EscapeString(message),
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}
	return postJSON(ctx, t.client, "telegram", url, body)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// postJSON posts body and maps non-2xx responses to errors. 429 wraps
// domain.ErrRateLimited.
func postJSON(ctx context.Context, client *http.Client, name, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", name, domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, string(respBody))
	}
	return nil
}
