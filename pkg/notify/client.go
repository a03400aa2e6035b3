package notify

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client is a thin wrapper around the slack-go SDK.
type Client struct {
	api       *goslack.Client
	channelID string
	logger    *slog.Logger
}

// NewClient creates a new Slack API client.
func NewClient(token, channelID string) *Client {
	return &Client{
		api:       goslack.New(token),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API URL.
// Useful for testing with a mock server.
func NewClientWithAPIURL(token, channelID, apiURL string) *Client {
	return &Client{
		api:       goslack.New(token, goslack.OptionAPIURL(apiURL)),
		channelID: channelID,
		logger:    slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends a message to the configured channel.
// If threadTS is non-empty, the message is posted as a threaded reply.
func (c *Client) PostMessage(ctx context.Context, blocks []goslack.Block, threadTS string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []goslack.MsgOption{
		goslack.MsgOptionBlocks(blocks...),
	}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, opts...)
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// FindThread searches recent channel history for a message mentioning the
// given marker text, typically a ticket ID. Returns the message timestamp
// (ts) for threading, or empty string if not found.
func (c *Client) FindThread(ctx context.Context, marker string) (string, error) {
	oldest := fmt.Sprintf("%d", time.Now().Add(-24*time.Hour).Unix())

	params := &goslack.GetConversationHistoryParameters{
		ChannelID: c.channelID,
		Oldest:    oldest,
		Limit:     50,
	}
	history, err := c.api.GetConversationHistoryContext(ctx, params)
	if err != nil {
		return "", fmt.Errorf("conversations.history failed: %w", err)
	}

	normalizedMarker := normalizeText(marker)
	for _, msg := range history.Messages {
		text := collectMessageText(msg)
		if strings.Contains(normalizeText(text), normalizedMarker) {
			return msg.Timestamp, nil
		}
	}
	return "", nil
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// collectMessageText flattens a message's text, attachments and section
// blocks into one string so marker matching sees everything Slack renders.
// Blocks matter here: the notifier's own messages carry their text in
// sections, not in the top-level text field.
func collectMessageText(msg goslack.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	for _, b := range msg.Blocks.BlockSet {
		if sec, ok := b.(*goslack.SectionBlock); ok && sec.Text != nil {
			parts = append(parts, sec.Text.Text)
		}
	}
	return strings.Join(parts, " ")
}
