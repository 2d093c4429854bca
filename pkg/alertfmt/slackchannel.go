package alertfmt

import (
	"context"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

var severityEmoji = map[argusmodel.Severity]string{
	argusmodel.SeverityNotable: ":warning:",
	argusmodel.SeverityUrgent:  ":rotating_light:",
}

// SlackChannel delivers alerts and digests to a Slack channel via Block
// Kit messages. Grounded on tarsy's pkg/slack (Client/Service/message
// builders), adapted from session-lifecycle notifications to alert/digest
// delivery.
type SlackChannel struct {
	api       *goslack.Client
	channelID string
	timeout   time.Duration
}

// NewSlackChannel creates a channel posting to channelID using token. Returns
// nil if token or channelID is empty, matching tarsy's NewService nil-safety
// convention so callers can register it unconditionally.
func NewSlackChannel(token, channelID string) *SlackChannel {
	if token == "" || channelID == "" {
		return nil
	}
	return &SlackChannel{api: goslack.New(token), channelID: channelID, timeout: 5 * time.Second}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, alert argusmodel.ActiveAlert) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, alertText(alert), false, false),
			nil, nil,
		),
	}
	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

func (c *SlackChannel) SendDigest(ctx context.Context, digest AlertDigest) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var blocks []goslack.Block
	header := fmt.Sprintf(":bar_chart: *Alert digest* — %d group(s)", len(digest.Groups))
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false), nil, nil,
	))
	for _, g := range digest.Groups {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, g.Summary, false, false), nil, nil,
		))
	}
	if digest.AITriage != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, "*Triage:* "+digest.AITriage, false, false), nil, nil,
		))
	}

	_, _, err := c.api.PostMessageContext(ctx, c.channelID, goslack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

func alertText(a argusmodel.ActiveAlert) string {
	emoji := severityEmoji[a.Severity]
	if emoji == "" {
		emoji = ":question:"
	}
	return fmt.Sprintf("%s *%s* — %s", emoji, a.RuleName, FormatEvent(a.Event))
}

var _ DigestSender = (*SlackChannel)(nil)
