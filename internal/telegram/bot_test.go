package telegram

import (
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/teamclaw/teamclaw/internal/config"
)

func TestToTelegramMarkdown(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"**bold**", "*bold*"},
		{"hello **world**!", "hello *world*!"},
		{"**a** and **b**", "*a* and *b*"},
		{"no bold here", "no bold here"},
		{"*already single*", "*already single*"},
	}
	for _, tt := range tests {
		got := toTelegramMarkdown(tt.in)
		if got != tt.want {
			t.Errorf("toTelegramMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToMessage(t *testing.T) {
	b := &Bot{cfg: config.TelegramConfig{AllowFrom: []int64{7}}}

	msg, ok := b.toMessage(telego.Message{
		MessageID: 12,
		Date:      1700000000,
		Chat:      telego.Chat{ID: -100},
		From:      &telego.User{ID: 7, Username: "alice"},
		Text:      "@dev deploy",
	})
	if !ok {
		t.Fatal("expected message to be accepted")
	}
	if msg.Channel != "telegram" || msg.ChannelID != "-100" || msg.User != "alice" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.ID != "-100-12" || msg.Content != "@dev deploy" {
		t.Errorf("unexpected id or content %+v", msg)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("unexpected timestamp %v", msg.Timestamp)
	}

	// Caption is used when there is no text.
	msg, ok = b.toMessage(telego.Message{Chat: telego.Chat{ID: 1}, From: &telego.User{ID: 7}, Caption: "see photo"})
	if !ok || msg.Content != "see photo" || msg.User != "7" {
		t.Errorf("expected caption message from user 7, got %+v (ok=%v)", msg, ok)
	}
}

func TestToMessageRejects(t *testing.T) {
	b := &Bot{cfg: config.TelegramConfig{AllowFrom: []int64{7}}}

	tests := map[string]telego.Message{
		"not allowed": {Chat: telego.Chat{ID: 1}, From: &telego.User{ID: 8}, Text: "hi"},
		"no sender":   {Chat: telego.Chat{ID: 1}, Text: "hi"},
		"no text":     {Chat: telego.Chat{ID: 1}, From: &telego.User{ID: 7}},
	}
	for name, m := range tests {
		if _, ok := b.toMessage(m); ok {
			t.Errorf("%s: expected message to be rejected", name)
		}
	}

	open := &Bot{}
	if _, ok := open.toMessage(tests["not allowed"]); !ok {
		t.Error("empty allow list must accept everyone")
	}
}

func TestSendMessageInvalidChatID(t *testing.T) {
	b := &Bot{}
	err := b.SendMessage(t.Context(), "general", "hi")
	if err == nil || !strings.Contains(err.Error(), "invalid telegram chat id") {
		t.Errorf("expected invalid chat id error, got %v", err)
	}
}
