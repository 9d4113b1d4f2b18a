// Package discord is the Discord channel. A conversation is a Discord
// channel or thread id.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
)

const (
	Name          = "discord"
	maxMessageLen = 2000 // characters
)

type Option func(*Channel)

// WithGuild limits the bot to a specific guild.
func WithGuild(guildID string) Option {
	return func(c *Channel) { c.guildID = guildID }
}

// WithChannels limits the bot to specific channel IDs.
func WithChannels(ids []string) Option {
	return func(c *Channel) {
		c.channelIDs = make(map[string]bool, len(ids))
		for _, id := range ids {
			c.channelIDs[id] = true
		}
	}
}

type Channel struct {
	token      string
	guildID    string
	channelIDs map[string]bool

	mu        sync.RWMutex
	session   *discordgo.Session
	handler   channel.Handler
	botUserID string
}

func New(cfg config.DiscordConfig, opts ...Option) *Channel {
	c := &Channel{token: cfg.Token}
	if cfg.GuildID != "" {
		WithGuild(cfg.GuildID)(c)
	}
	if len(cfg.ChannelIDs) > 0 {
		WithChannels(cfg.ChannelIDs)(c)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) Name() string { return Name }

func (c *Channel) OnMessage(h channel.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Channel) Start(_ context.Context) error {
	dg, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	dg.AddHandler(c.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	c.mu.Lock()
	c.session = dg
	c.botUserID = dg.State.User.ID
	c.mu.Unlock()

	slog.Info("discord channel started", "user_id", c.botUserID)
	return nil
}

func (c *Channel) Stop(_ context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	return nil
}

func (c *Channel) SendMessage(ctx context.Context, channelID, text string) error {
	c.mu.RLock()
	s := c.session
	c.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("discord channel not started")
	}

	for _, chunk := range channel.SplitText(text, maxMessageLen) {
		if _, err := s.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := c.toMessage(m.Message)
	if !ok {
		return
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h.HandleMessage(msg)
	}
}

// toMessage converts a Discord message, reporting false for our own
// messages and for guilds or channels outside the allow lists.
func (c *Channel) toMessage(m *discordgo.Message) (channel.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return channel.Message{}, false
	}

	c.mu.RLock()
	botID := c.botUserID
	c.mu.RUnlock()

	if m.Author.ID == botID {
		return channel.Message{}, false
	}
	if c.guildID != "" && m.GuildID != c.guildID {
		return channel.Message{}, false
	}
	if len(c.channelIDs) > 0 && !c.channelIDs[m.ChannelID] {
		return channel.Message{}, false
	}

	content := m.Content
	if botID != "" {
		content = strings.ReplaceAll(content, "<@"+botID+">", "")
		content = strings.ReplaceAll(content, "<@!"+botID+">", "")
		content = strings.TrimSpace(content)
	}
	if content == "" {
		return channel.Message{}, false
	}

	return channel.Message{
		ID:        m.ID,
		Channel:   Name,
		ChannelID: m.ChannelID,
		User:      m.Author.Username,
		Content:   content,
		Timestamp: m.Timestamp,
	}, true
}
