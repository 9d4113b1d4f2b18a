// Package telegram is the Telegram channel, receiving messages by long
// polling. Each chat is one conversation keyed by its numeric chat id.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
)

const Name = "telegram"

type Bot struct {
	bot *telego.Bot
	cfg config.TelegramConfig

	mu      sync.RWMutex
	handler channel.Handler
	updates *th.BotHandler
	cancel  context.CancelFunc
	stopped chan struct{}
}

func New(cfg config.TelegramConfig, opts ...telego.BotOption) (*Bot, error) {
	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: bot, cfg: cfg}, nil
}

func (b *Bot) Name() string { return Name }

func (b *Bot) OnMessage(h channel.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *Bot) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		cancel()
		return fmt.Errorf("create handler: %w", err)
	}

	handler.HandleMessage(func(hctx *th.Context, message telego.Message) error {
		b.handleMessage(hctx, message)
		return nil
	})

	stopped := make(chan struct{})
	b.mu.Lock()
	b.updates = handler
	b.cancel = cancel
	b.stopped = stopped
	b.mu.Unlock()

	go func() {
		defer close(stopped)
		if err := handler.Start(); err != nil {
			slog.Error("telegram handler stopped", "error", err)
		}
	}()

	slog.Info("telegram bot polling")
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	handler, cancel, stopped := b.updates, b.cancel, b.stopped
	b.updates, b.cancel = nil, nil
	b.mu.Unlock()

	if handler == nil {
		return nil
	}
	cancel()
	if err := handler.StopWithContext(ctx); err != nil {
		return fmt.Errorf("stop telegram handler: %w", err)
	}
	select {
	case <-stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, message telego.Message) {
	msg, ok := b.toMessage(message)
	if !ok {
		return
	}

	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		slog.Warn("telegram message without handler", "chat_id", msg.ChannelID)
		return
	}

	_ = b.sendChatAction(ctx, message.Chat.ID, telego.ChatActionTyping)
	h.HandleMessage(msg)
}

// toMessage converts a Telegram update into a channel message. It reports
// false for senders outside the allow list and for messages without text.
func (b *Bot) toMessage(message telego.Message) (channel.Message, bool) {
	if message.From == nil {
		return channel.Message{}, false
	}
	userID := message.From.ID
	chatID := message.Chat.ID

	if len(b.cfg.AllowFrom) > 0 && !slices.Contains(b.cfg.AllowFrom, userID) {
		slog.Warn("unauthorized telegram user", "user_id", userID, "chat_id", chatID)
		return channel.Message{}, false
	}

	text := message.Text
	if text == "" {
		text = message.Caption
	}
	if text == "" {
		return channel.Message{}, false
	}

	user := message.From.Username
	if user == "" {
		user = strconv.FormatInt(userID, 10)
	}

	return channel.Message{
		ID:        fmt.Sprintf("%d-%d", chatID, message.MessageID),
		Channel:   Name,
		ChannelID: strconv.FormatInt(chatID, 10),
		User:      user,
		Content:   text,
		Timestamp: time.Unix(message.Date, 0),
	}, true
}

// SendMessage delivers text to the chat identified by channelID, split
// into Telegram-sized chunks.
func (b *Bot) SendMessage(ctx context.Context, channelID, text string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", channelID, err)
	}

	for _, chunk := range channel.SplitText(text, maxMessageLen) {
		msg := tu.Message(tu.ID(chatID), toTelegramMarkdown(chunk)).
			WithParseMode(telego.ModeMarkdown)
		if _, err := b.bot.SendMessage(ctx, msg); err != nil {
			// Agent output is not guaranteed to be valid Markdown.
			plain := tu.Message(tu.ID(chatID), chunk)
			if _, err := b.bot.SendMessage(ctx, plain); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func (b *Bot) sendChatAction(ctx context.Context, chatID int64, action string) error {
	return b.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), action))
}
