package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Message is one line of the conversation log: an inbound user message
// (AgentID empty) or an agent reply (Sender is "agent:<id>").
type Message struct {
	ID        int64     `json:"id"`
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	ChannelID string    `json:"channel_id,omitempty"`
	Sender    string    `json:"sender"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Mentions  []string  `json:"mentions,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const messageColumns = `id, message_id, channel, channel_id, sender, agent_id, content, mentions, created_at`

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (*Message, error) {
	m := &Message{}
	var channelID, agentID, mentions sql.NullString
	err := scanner.Scan(&m.ID, &m.MessageID, &m.Channel, &channelID, &m.Sender, &agentID, &m.Content, &mentions, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.ChannelID = channelID.String
	m.AgentID = agentID.String
	if mentions.String != "" {
		if err := json.Unmarshal([]byte(mentions.String), &m.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions: %w", err)
		}
	}
	return m, nil
}

func (s *Store) SaveMessage(msg *Message) error {
	var mentions any
	if len(msg.Mentions) > 0 {
		data, err := json.Marshal(msg.Mentions)
		if err != nil {
			return fmt.Errorf("encode mentions: %w", err)
		}
		mentions = string(data)
	}

	result, err := s.db.Exec(`
		INSERT INTO messages (message_id, channel, channel_id, sender, agent_id, content, mentions)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID, msg.Channel, msg.ChannelID, msg.Sender, msg.AgentID, msg.Content, mentions)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	msg.ID, _ = result.LastInsertId()
	return nil
}

// GetConversation returns the last limit messages of one conversation in
// chronological order.
func (s *Store) GetConversation(channel, channelID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE channel = ? AND COALESCE(channel_id, '') = ?
		ORDER BY id DESC
		LIMIT ?`, channel, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *Store) GetRecentMessages(limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT `+messageColumns+`
		FROM messages
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}
