package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func newTestChannel(t *testing.T, cfg config.WebConfig, opts ...Option) (*Channel, chan channel.Message) {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	received := make(chan channel.Message, 4)
	c.OnMessage(channel.HandlerFunc(func(msg channel.Message) {
		received <- msg
	}))
	return c, received
}

func TestPostMessage(t *testing.T) {
	c, received := newTestChannel(t, config.WebConfig{})
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := `{"user":"alice","conversation_id":"conv-1","content":"@qa run the tests"}`
	resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	select {
	case msg := <-received:
		if msg.Channel != "web" || msg.ChannelID != "conv-1" || msg.User != "alice" {
			t.Errorf("unexpected message %+v", msg)
		}
		if msg.Content != "@qa run the tests" {
			t.Errorf("unexpected content %q", msg.Content)
		}
		if msg.ID == "" || msg.Timestamp.IsZero() {
			t.Error("expected id and timestamp to be set")
		}
	default:
		t.Fatal("handler was not called")
	}
}

func TestPostMessageValidation(t *testing.T) {
	c, received := newTestChannel(t, config.WebConfig{})
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	for _, body := range []string{`not json`, `{"content":"   "}`} {
		resp, err := http.Post(srv.URL+"/api/messages", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, resp.StatusCode)
		}
	}
	if len(received) != 0 {
		t.Error("invalid requests must not reach the handler")
	}
}

func TestAuth(t *testing.T) {
	c, _ := newTestChannel(t, config.WebConfig{Auth: "s3cret"})
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	do := func(path, token string) int {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+path, strings.NewReader(`{"content":"hi"}`))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := do("/api/messages", ""); code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", code)
	}
	if code := do("/api/messages", "wrong"); code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", code)
	}
	if code := do("/api/messages", "s3cret"); code != http.StatusAccepted {
		t.Errorf("expected 202 with token, got %d", code)
	}

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must be public, got %d", resp.StatusCode)
	}
}

func TestAuthAcceptsBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	c, _ := newTestChannel(t, config.WebConfig{Auth: string(hash)})

	req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	req.Header.Set("Authorization", "Bearer pw")
	if !c.checkAuth(req) {
		t.Error("expected password to match configured hash")
	}
}

func TestSendMessageReachesWebsocket(t *testing.T) {
	c, _ := newTestChannel(t, config.WebConfig{Port: 0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	_, port, err := net.SplitHostPort(c.Addr())
	if err != nil {
		t.Fatalf("split addr %q: %v", c.Addr(), err)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for c.hub.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := c.SendMessage(ctx, "conv-9", "all tests pass"); err != nil {
		t.Fatalf("send: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event struct {
		Type    string `json:"type"`
		Payload Reply  `json:"payload"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if event.Type != "message" || event.Payload.ChannelID != "conv-9" || event.Payload.Content != "all tests pass" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestListMessages(t *testing.T) {
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	s.SaveMessage(&store.Message{MessageID: "m1", Channel: "web", ChannelID: "c1", Sender: "user:alice", Content: "hi"})
	s.SaveMessage(&store.Message{MessageID: "m1", Channel: "web", ChannelID: "c1", Sender: "agent:dev", AgentID: "dev", Content: "hello"})

	c, _ := newTestChannel(t, config.WebConfig{}, WithHistory(s))
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/messages?conversation_id=c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var msgs []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0]["role"] != "user" || msgs[1]["role"] != "assistant" {
		t.Errorf("unexpected roles %v, %v", msgs[0]["role"], msgs[1]["role"])
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{50 * time.Hour, "2d 2h 0m"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestWebsocketConversationFilter(t *testing.T) {
	c, _ := newTestChannel(t, config.WebConfig{Port: 0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop(context.Background())

	_, port, err := net.SplitHostPort(c.Addr())
	if err != nil {
		t.Fatalf("split addr %q: %v", c.Addr(), err)
	}
	dial := func(conv string) *websocket.Conn {
		conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/api/ws?conversation_id="+conv, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		return conn
	}
	one := dial("conv-1")
	defer one.Close()
	two := dial("conv-2")
	defer two.Close()

	deadline := time.Now().Add(2 * time.Second)
	for c.hub.Len() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	// Events are delivered in order, so a leaked conv-2 reply would be
	// read first by the conv-1 client.
	c.SendMessage(ctx, "conv-2", "for two")
	c.SendMessage(ctx, "conv-1", "for one")

	read := func(conn *websocket.Conn) Reply {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var event struct {
			Payload Reply `json:"payload"`
		}
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return event.Payload
	}
	if got := read(one); got.ChannelID != "conv-1" || got.Content != "for one" {
		t.Errorf("conv-1 client got %+v", got)
	}
	if got := read(two); got.ChannelID != "conv-2" || got.Content != "for two" {
		t.Errorf("conv-2 client got %+v", got)
	}
}

func TestWatches(t *testing.T) {
	tests := []struct {
		filter, conversation string
		want                 bool
	}{
		{"", "c1", true},
		{"c1", "", true},
		{"c1", "c1", true},
		{"c1", "c2", false},
	}
	for _, tt := range tests {
		if got := watches(tt.filter, tt.conversation); got != tt.want {
			t.Errorf("watches(%q, %q) = %v, want %v", tt.filter, tt.conversation, got, tt.want)
		}
	}
}

type agentList []store.Agent

func (l agentList) List() ([]store.Agent, error) { return l, nil }

func (l agentList) Get(id string) (*store.Agent, error) {
	for i := range l {
		if l[i].ID == id {
			return &l[i], nil
		}
	}
	return nil, nil
}

func TestAgentsEndpoints(t *testing.T) {
	dir := agentList{
		{ID: "dev", Name: "Developer", Backend: "echo"},
		{ID: "qa", Name: "QA", Backend: "echo", Position: 1},
	}
	c, _ := newTestChannel(t, config.WebConfig{}, WithAgents(dir))
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/agents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var agents []store.Agent
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if len(agents) != 2 || agents[0].ID != "dev" || agents[1].ID != "qa" {
		t.Errorf("unexpected agents %+v", agents)
	}

	resp, err = http.Get(srv.URL + "/api/agents/qa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var one store.Agent
	if err := json.NewDecoder(resp.Body).Decode(&one); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if one.Name != "QA" {
		t.Errorf("unexpected agent %+v", one)
	}

	resp, err = http.Get(srv.URL + "/api/agents/ops")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown agent, got %d", resp.StatusCode)
	}
}
