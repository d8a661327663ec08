package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Discord rejects embed descriptions longer than this.
const discordMaxDescription = 4096

// DiscordSender delivers notifications to a Discord webhook as an embed.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string, opts ...SenderOption) *DiscordSender {
	cfg := applyOptions(opts)
	return &DiscordSender{
		webhookURL: webhookURL,
		username:   "crossarb",
		client:     cfg.httpClient,
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	if r := []rune(message); len(r) > discordMaxDescription {
		message = string(r[:discordMaxDescription-1]) + "…"
	}
	body, err := json.Marshal(discordPayload{
		Username: d.username,
		Embeds:   []discordEmbed{{Title: title, Description: message, Color: 0x2ecc71}},
	})
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}
	return postJSON(ctx, d.client, "discord", d.webhookURL, body)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
