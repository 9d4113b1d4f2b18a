// Package web is the HTTP channel: users post messages over a small JSON
// API and receive agent replies on a websocket.
//
// A websocket opened with ?conversation_id=X only receives replies and bus
// events carrying that conversation id, plus events that belong to no
// conversation. Without the parameter a client sees every conversation.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const Name = "web"

// AgentDirectory lists the configured agents.
type AgentDirectory interface {
	List() ([]store.Agent, error)
	Get(agentID string) (*store.Agent, error)
}

type Channel struct {
	cfg      config.WebConfig
	authHash []byte
	hub      *Hub
	history  *store.Store
	events   *natsbus.Client
	agents   AgentDirectory

	mu        sync.RWMutex
	handler   channel.Handler
	server    *http.Server
	listener  net.Listener
	eventSub  *nats.Subscription
	stopHub   context.CancelFunc
	startedAt time.Time
}

type Option func(*Channel)

// WithHistory serves stored web conversations on GET /api/messages.
func WithHistory(s *store.Store) Option {
	return func(c *Channel) { c.history = s }
}

// WithEvents forwards every orchestration event on the bus to websocket
// clients.
func WithEvents(client *natsbus.Client) Option {
	return func(c *Channel) { c.events = client }
}

// WithAgents serves the agent directory on GET /api/agents.
func WithAgents(d AgentDirectory) Option {
	return func(c *Channel) { c.agents = d }
}

func New(cfg config.WebConfig, opts ...Option) (*Channel, error) {
	c := &Channel{
		cfg: cfg,
		hub: NewHub(),
	}
	if cfg.Auth != "" {
		hash, err := authHash(cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("hash web password: %w", err)
		}
		c.authHash = hash
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// authHash accepts either a bcrypt hash or a plaintext password, which is
// hashed once so requests are always checked with bcrypt.
func authHash(auth string) ([]byte, error) {
	if _, err := bcrypt.Cost([]byte(auth)); err == nil {
		return []byte(auth), nil
	}
	return bcrypt.GenerateFromPassword([]byte(auth), bcrypt.DefaultCost)
}

func (c *Channel) Name() string { return Name }

func (c *Channel) OnMessage(h channel.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *Channel) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", c.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// The hub outlives ctx so replies still in flight at shutdown reach
	// clients; Stop ends it.
	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	go c.hub.Run(hubCtx)
	if err := c.subscribeEvents(); err != nil {
		stopHub()
		ln.Close()
		return err
	}

	server := &http.Server{Handler: c.Handler()}
	c.mu.Lock()
	c.listener = ln
	c.server = server
	c.stopHub = stopHub
	c.startedAt = time.Now()
	c.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("web server stopped", "error", err)
		}
	}()

	slog.Info("web server listening", "addr", ln.Addr().String())
	return nil
}

func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	server, sub, stopHub := c.server, c.eventSub, c.stopHub
	c.server, c.eventSub, c.stopHub = nil, nil, nil
	c.mu.Unlock()

	if stopHub != nil {
		defer stopHub()
	}
	if sub != nil {
		_ = sub.Unsubscribe()
	}
	c.hub.CloseAll()
	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown web server: %w", err)
	}
	return nil
}

// Addr is the address the server listens on, once started.
func (c *Channel) Addr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// SendMessage pushes a reply to the websocket clients watching channelID.
func (c *Channel) SendMessage(_ context.Context, channelID, text string) error {
	c.hub.Broadcast(Event{
		Type: "message",
		Payload: Reply{
			ChannelID: channelID,
			Content:   text,
		},
		conversation: channelID,
	})
	return nil
}

// Handler returns the channel's HTTP routes wrapped in auth middleware.
func (c *Channel) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", c.handleHealth)
	mux.HandleFunc("POST /api/messages", c.handlePostMessage)
	mux.HandleFunc("GET /api/messages", c.handleListMessages)
	mux.HandleFunc("GET /api/agents", c.handleListAgents)
	mux.HandleFunc("GET /api/agents/{id}", c.handleGetAgent)
	mux.HandleFunc("/api/ws", c.handleWebSocket)
	return c.withMiddleware(mux)
}

func (c *Channel) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.URL.Path != "/api/health" && !c.checkAuth(r) {
			jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth accepts a Bearer token or, for browsers opening a websocket,
// a token query parameter.
func (c *Channel) checkAuth(r *http.Request) bool {
	if c.authHash == nil {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.authHash, []byte(token)) == nil
}

func (c *Channel) subscribeEvents() error {
	if c.events == nil {
		return nil
	}
	sub, err := c.events.Subscribe(natsbus.TopicEventsAll, func(msg *nats.Msg) {
		if !json.Valid(msg.Data) {
			slog.Warn("invalid NATS event payload", "topic", msg.Subject)
			return
		}
		var scope struct {
			ChannelID string `json:"channel_id"`
		}
		_ = json.Unmarshal(msg.Data, &scope)
		c.hub.Broadcast(Event{
			Type:         msg.Subject,
			Payload:      json.RawMessage(msg.Data),
			conversation: scope.ChannelID,
		})
	})
	if err != nil {
		return fmt.Errorf("subscribe events: %w", err)
	}
	c.mu.Lock()
	c.eventSub = sub
	c.mu.Unlock()
	return nil
}
