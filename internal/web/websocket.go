package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`

	// conversation scopes the event to clients watching that conversation.
	// Empty means every client receives it.
	conversation string
}

// Reply is the payload of a "message" event.
type Reply struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
}

// Hub fans events out to websocket clients. Each client watches either one
// conversation or, with an empty filter, all of them.
type Hub struct {
	clients   map[*websocket.Conn]string
	broadcast chan Event
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]string),
		broadcast: make(chan Event, 256),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				slog.Warn("marshal websocket event failed", "type", event.Type, "error", err)
				continue
			}

			h.mu.Lock()
			for client, conversation := range h.clients {
				if !watches(conversation, event.conversation) {
					continue
				}
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func watches(filter, conversation string) bool {
	return filter == "" || conversation == "" || filter == conversation
}

func (h *Hub) Broadcast(event Event) {
	select {
	case h.broadcast <- event:
	default:
		slog.Warn("websocket broadcast channel full, dropping event", "type", event.Type)
	}
}

// Register adds conn. A non-empty conversation limits it to events of that
// conversation and unscoped events.
func (h *Hub) Register(conn *websocket.Conn, conversation string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = conversation
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, conn)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.Close()
		delete(h.clients, client)
	}
}

func (c *Channel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c.hub.Register(conn, r.URL.Query().Get("conversation_id"))
	defer func() {
		c.hub.Unregister(conn)
		conn.Close()
	}()

	// Replies are push only; reading just detects the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
