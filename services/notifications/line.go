package notifications

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/linebot"
)

// LinePublisher pushes event summaries to the studio operations LINE group.
type LinePublisher struct {
	Bot     *linebot.Client
	GroupID string
}

// NewLinePublisher returns nil when credentials or the group are not configured.
func NewLinePublisher(channelSecret, channelToken, groupID string) (*LinePublisher, error) {
	if channelSecret == "" || channelToken == "" || groupID == "" {
		return nil, nil
	}
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, fmt.Errorf("cannot create LINE bot client: %w", err)
	}
	return &LinePublisher{Bot: bot, GroupID: groupID}, nil
}

func (p *LinePublisher) Name() string { return "line" }

func (p *LinePublisher) Publish(ctx context.Context, msg Message) error {
	if p.Bot == nil {
		return fmt.Errorf("LINE Bot client is not initialized")
	}
	text := fmt.Sprintf("%s\n%s", msg.Title, msg.Body)
	if _, err := p.Bot.PushMessage(p.GroupID, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return fmt.Errorf("LINE Messaging API failed: %v", err)
	}
	return nil
}
