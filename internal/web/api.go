package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/store"
)

type postMessageRequest struct {
	User           string `json:"user"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
}

func (c *Channel) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var body postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.Content) == "" {
		jsonError(w, "content is required", http.StatusBadRequest)
		return
	}
	if body.User == "" {
		body.User = "anonymous"
	}
	if body.ConversationID == "" {
		body.ConversationID = uuid.New().String()
	}

	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		jsonError(w, "channel not connected", http.StatusServiceUnavailable)
		return
	}

	msg := channel.Message{
		ID:        uuid.New().String(),
		Channel:   Name,
		ChannelID: body.ConversationID,
		User:      body.User,
		Content:   body.Content,
		Timestamp: time.Now(),
	}
	h.HandleMessage(msg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"id":              msg.ID,
		"conversation_id": msg.ChannelID,
	})
}

func (c *Channel) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if c.history == nil {
		jsonError(w, "history not available", http.StatusNotFound)
		return
	}
	convID := r.URL.Query().Get("conversation_id")
	if convID == "" {
		jsonError(w, "conversation_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	msgs, err := c.history.GetConversation(Name, convID, limit)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, messageToAPI(m))
	}
	jsonResponse(w, result)
}

func (c *Channel) handleListAgents(w http.ResponseWriter, r *http.Request) {
	if c.agents == nil {
		jsonError(w, "agents not available", http.StatusNotFound)
		return
	}
	agents, err := c.agents.List()
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if agents == nil {
		agents = []store.Agent{}
	}
	jsonResponse(w, agents)
}

func (c *Channel) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	if c.agents == nil {
		jsonError(w, "agents not available", http.StatusNotFound)
		return
	}
	a, err := c.agents.Get(r.PathValue("id"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if a == nil {
		jsonError(w, "agent not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, a)
}

func (c *Channel) handleHealth(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	startedAt := c.startedAt
	c.mu.RUnlock()

	status := map[string]any{
		"status":  "ok",
		"clients": c.hub.Len(),
	}
	if !startedAt.IsZero() {
		status["uptime"] = formatUptime(time.Since(startedAt))
	}
	jsonResponse(w, status)
}

func messageToAPI(m store.Message) map[string]any {
	return map[string]any{
		"id":       m.ID,
		"role":     mapSenderToRole(m.Sender),
		"agent_id": m.AgentID,
		"content":  m.Content,
		"mentions": m.Mentions,
		"time":     m.CreatedAt.Format(time.RFC3339),
	}
}

func mapSenderToRole(sender string) string {
	if strings.HasPrefix(sender, "agent:") {
		return "assistant"
	}
	return "user"
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
