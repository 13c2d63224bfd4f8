package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
)

// Client wraps the Slack API client with the small surface the bot needs.
type Client struct {
	api       *slack.Client
	log       *slog.Logger
	botUserID string
}

// NewClient creates a Slack client. appToken may be empty when running
// in HTTP events mode.
func NewClient(botToken, appToken string, log *slog.Logger) *Client {
	var opts []slack.Option
	if appToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(appToken))
	}
	return &Client{
		api: slack.New(botToken, opts...),
		log: log,
	}
}

// API exposes the underlying slack client for socket mode wiring.
func (c *Client) API() *slack.Client {
	return c.api
}

// Initialize runs an auth test and records the bot user ID.
func (c *Client) Initialize(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = resp.UserID
	c.log.Info("bot: authenticated", "user_id", resp.UserID, "team", resp.Team)
	return resp.UserID, nil
}

// BotUserID returns the bot's user ID, if known.
func (c *Client) BotUserID() string {
	return c.botUserID
}

// IsBotMentioned reports whether the text mentions the bot user.
func (c *Client) IsBotMentioned(text string) bool {
	if c.botUserID == "" {
		return false
	}
	return strings.Contains(text, "<@"+c.botUserID+">")
}

// StripMention removes the bot mention from the text.
func (c *Client) StripMention(text string) string {
	if c.botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+c.botUserID+">", ""))
}

// PostMessage posts text to a channel, threading the reply when threadTS
// is set.
func (c *Client) PostMessage(ctx context.Context, channel, threadTS, text string) error {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := c.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}
