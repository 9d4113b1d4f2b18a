package channel

import (
	"context"
	"time"
)

// Message is an inbound chat message as delivered by a channel adapter.
// Mentions is derived from Content by the orchestrator before routing and
// must not be trusted when set by an adapter.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	ChannelID string    `json:"channel_id,omitempty"`
	User      string    `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Mentions  []string  `json:"mentions"`
}

// ReplyTarget is the conversation a response to msg is sent to.
func (m Message) ReplyTarget() string {
	if m.ChannelID != "" {
		return m.ChannelID
	}
	return m.Channel
}

// Handler receives inbound messages from a channel.
type Handler interface {
	HandleMessage(msg Message)
}

// HandlerFunc adapts a plain function to a Handler.
type HandlerFunc func(msg Message)

func (f HandlerFunc) HandleMessage(msg Message) { f(msg) }

// Channel is a transport adapter (web, Telegram, Slack, ...) through which
// messages arrive and responses are sent.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, channelID, text string) error
	OnMessage(h Handler)
}
