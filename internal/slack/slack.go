// Package slack is the Slack channel over Socket Mode. A conversation is a
// Slack channel, or a thread within one.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
)

const (
	Name          = "slack"
	maxMessageLen = 4000 // characters
)

type Option func(*Channel)

// WithChannels limits the bot to specific Slack channel IDs.
func WithChannels(ids []string) Option {
	return func(c *Channel) {
		c.channelIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.channelIDs[id] = true
		}
	}
}

// WithAPIURL points the client at a different Web API endpoint.
func WithAPIURL(url string) Option {
	return func(c *Channel) { c.apiURL = url }
}

type Channel struct {
	botToken   string
	appToken   string
	apiURL     string
	channelIDs map[string]bool

	api       *slack.Client
	socketCli *socketmode.Client
	botUserID string
	userNames sync.Map // userID -> display name

	mu      sync.RWMutex
	handler channel.Handler
	cancel  context.CancelFunc
}

func New(cfg config.SlackConfig, opts ...Option) *Channel {
	c := &Channel{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
	}
	if len(cfg.ChannelIDs) > 0 {
		WithChannels(cfg.ChannelIDs)(c)
	}
	for _, o := range opts {
		o(c)
	}

	apiOpts := []slack.Option{slack.OptionAppLevelToken(c.appToken)}
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(c.botToken, apiOpts...)
	return c
}

func (c *Channel) Name() string { return Name }

func (c *Channel) OnMessage(h channel.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Channel) Start(ctx context.Context) error {
	// Fetch bot user ID to ignore our own messages.
	authResp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = authResp.UserID

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.socketCli = socketmode.New(c.api)
	go c.eventLoop(ctx)
	go func() {
		if err := c.socketCli.RunContext(ctx); err != nil && ctx.Err() == nil {
			slog.Error("slack socket mode error", "error", err)
		}
	}()

	slog.Info("slack channel started", "bot_user_id", c.botUserID)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}

// SendMessage posts text to channelID, which is a Slack channel ID
// optionally followed by ":" and a thread timestamp.
func (c *Channel) SendMessage(ctx context.Context, channelID, text string) error {
	slackChannel, threadTS := splitConversation(channelID)
	for _, chunk := range channel.SplitText(text, maxMessageLen) {
		opts := []slack.MsgOption{slack.MsgOptionText(chunk, false)}
		if threadTS != "" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
		if _, _, err := c.api.PostMessageContext(ctx, slackChannel, opts...); err != nil {
			return fmt.Errorf("post slack message: %w", err)
		}
	}
	return nil
}

func (c *Channel) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socketCli.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.socketCli.Ack(*evt.Request)

			if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				c.handleMessage(ev)
			}
		}
	}
}

func (c *Channel) handleMessage(ev *slackevents.MessageEvent) {
	msg, ok := c.toMessage(ev)
	if !ok {
		return
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return
	}

	msg.User = c.resolveUserName(ev.User)
	h.HandleMessage(msg)
}

// toMessage converts a Slack message event, reporting false for bot
// messages and channels outside the allow list.
func (c *Channel) toMessage(ev *slackevents.MessageEvent) (channel.Message, bool) {
	if ev.User == "" || ev.User == c.botUserID || ev.BotID != "" {
		return channel.Message{}, false
	}
	if len(c.channelIDs) > 0 && !c.channelIDs[ev.Channel] {
		return channel.Message{}, false
	}

	content := ev.Text
	if c.botUserID != "" {
		content = strings.TrimSpace(strings.ReplaceAll(content, "<@"+c.botUserID+">", ""))
	}
	if content == "" {
		return channel.Message{}, false
	}

	conversation := ev.Channel
	if ev.ThreadTimeStamp != "" {
		conversation += ":" + ev.ThreadTimeStamp
	}

	return channel.Message{
		ID:        ev.Channel + "-" + ev.TimeStamp,
		Channel:   Name,
		ChannelID: conversation,
		User:      ev.User,
		Content:   content,
		Timestamp: parseTimestamp(ev.TimeStamp),
	}, true
}

// resolveUserName returns a display name for a Slack user ID, using a cache
// to avoid repeated API calls.
func (c *Channel) resolveUserName(userID string) string {
	if v, ok := c.userNames.Load(userID); ok {
		return v.(string)
	}
	info, err := c.api.GetUserInfo(userID)
	if err != nil {
		slog.Warn("slack: failed to resolve user name", "user_id", userID, "error", err)
		return userID
	}
	name := info.RealName
	if name == "" {
		name = info.Name
	}
	c.userNames.Store(userID, name)
	return name
}

func splitConversation(id string) (channelID, threadTS string) {
	channelID, threadTS, _ = strings.Cut(id, ":")
	return channelID, threadTS
}

// parseTimestamp reads Slack's "seconds.micros" message timestamps.
func parseTimestamp(ts string) time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return time.Now()
	}
	var usec int64
	if frac != "" {
		usec, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, usec*int64(time.Microsecond))
}
