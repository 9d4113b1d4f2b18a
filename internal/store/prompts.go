package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ScheduledPrompt is a message injected into a channel on a cron schedule.
type ScheduledPrompt struct {
	Name       string     `json:"name"`
	Schedule   string     `json:"schedule"`
	Channel    string     `json:"channel"`
	ChannelID  string     `json:"channel_id,omitempty"`
	Content    string     `json:"content"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

const promptColumns = `name, schedule, channel, channel_id, content, next_run_at, last_run_at, last_status`

func scanPrompt(scanner interface {
	Scan(dest ...any) error
}) (*ScheduledPrompt, error) {
	p := &ScheduledPrompt{}
	var channelID, lastStatus sql.NullString
	var nextRun, lastRun sql.NullInt64
	err := scanner.Scan(&p.Name, &p.Schedule, &p.Channel, &channelID, &p.Content, &nextRun, &lastRun, &lastStatus)
	if err != nil {
		return nil, err
	}
	p.ChannelID = channelID.String
	p.LastStatus = lastStatus.String
	p.NextRunAt = fromUnix(nextRun)
	p.LastRunAt = fromUnix(lastRun)
	return p, nil
}

// SavePrompt upserts a prompt definition, keeping its run history.
func (s *Store) SavePrompt(p *ScheduledPrompt) error {
	_, err := s.db.Exec(`
		INSERT INTO scheduled_prompts (name, schedule, channel, channel_id, content, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schedule = excluded.schedule,
			channel = excluded.channel,
			channel_id = excluded.channel_id,
			content = excluded.content,
			next_run_at = excluded.next_run_at`,
		p.Name, p.Schedule, p.Channel, p.ChannelID, p.Content, toUnix(p.NextRunAt))
	if err != nil {
		return fmt.Errorf("save prompt: %w", err)
	}
	return nil
}

func (s *Store) GetPrompt(name string) (*ScheduledPrompt, error) {
	p, err := scanPrompt(s.db.QueryRow(`SELECT `+promptColumns+` FROM scheduled_prompts WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", err)
	}
	return p, nil
}

func (s *Store) ListPrompts() ([]ScheduledPrompt, error) {
	return s.queryPrompts(`SELECT ` + promptColumns + ` FROM scheduled_prompts ORDER BY name`)
}

func (s *Store) GetDuePrompts(now time.Time) ([]ScheduledPrompt, error) {
	return s.queryPrompts(`
		SELECT `+promptColumns+`
		FROM scheduled_prompts
		WHERE next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now.Unix())
}

func (s *Store) queryPrompts(query string, args ...any) ([]ScheduledPrompt, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []ScheduledPrompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, *p)
	}
	return prompts, rows.Err()
}

func (s *Store) UpdatePromptRun(name, status string, nextRun *time.Time) error {
	_, err := s.db.Exec(`
		UPDATE scheduled_prompts
		SET last_run_at = ?, last_status = ?, next_run_at = ?
		WHERE name = ?`,
		time.Now().Unix(), status, toUnix(nextRun), name)
	if err != nil {
		return fmt.Errorf("update prompt run: %w", err)
	}
	return nil
}

func (s *Store) DeletePromptsNotIn(names []string) error {
	if len(names) == 0 {
		_, err := s.db.Exec(`DELETE FROM scheduled_prompts`)
		return err
	}
	query := `DELETE FROM scheduled_prompts WHERE name NOT IN (`
	args := make([]any, len(names))
	for i, n := range names {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = n
	}
	query += ")"
	_, err := s.db.Exec(query, args...)
	return err
}

func toUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func fromUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}
