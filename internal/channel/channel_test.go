package channel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestReplyTarget(t *testing.T) {
	if got := (Message{Channel: "web", ChannelID: "conv-1"}).ReplyTarget(); got != "conv-1" {
		t.Errorf("expected conv-1, got %q", got)
	}
	if got := (Message{Channel: "web"}).ReplyTarget(); got != "web" {
		t.Errorf("expected fallback to channel name, got %q", got)
	}
}

func TestHandlerFunc(t *testing.T) {
	var got Message
	var h Handler = HandlerFunc(func(msg Message) { got = msg })
	h.HandleMessage(Message{ID: "m1"})
	if got.ID != "m1" {
		t.Errorf("handler not called, got %+v", got)
	}
}

func TestSplitText(t *testing.T) {
	// Short message
	chunks := SplitText("hello", 4096)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk, got %d", len(chunks))
	}

	// Exact limit
	chunks = SplitText(strings.Repeat("a", 4096), 4096)
	if len(chunks) != 1 {
		t.Errorf("expected 1 chunk for exact limit, got %d", len(chunks))
	}

	// Over limit
	chunks = SplitText(strings.Repeat("a", 8192), 4096)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(chunks))
	}

	// Split at newline
	msg := []byte(strings.Repeat("a", 5000))
	msg[3000] = '\n'
	chunks = SplitText(string(msg), 4096)
	if len(chunks) != 2 {
		t.Errorf("expected 2 chunks with newline split, got %d", len(chunks))
	}
	if len(chunks[0]) != 3001 { // Up to and including the newline
		t.Errorf("expected first chunk length 3001, got %d", len(chunks[0]))
	}
	if strings.Join(chunks, "") != string(msg) {
		t.Error("chunks must reassemble to the original text")
	}
}

func TestSplitTextMultiByte(t *testing.T) {
	text := "a" + strings.Repeat("é", 3000) + strings.Repeat("日本", 1000)
	chunks := SplitText(text, 2000)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(c); n > 2000 {
			t.Errorf("chunk %d has %d characters, limit 2000", i, n)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks must reassemble to the original text")
	}
}
