// Package scheduler injects configured prompts into channel conversations
// on cron schedules. A scheduled prompt is dispatched like any inbound
// message, so mentions and routing apply to it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/store"
)

// User is the sender recorded on scheduled messages.
const User = "scheduler"

// Publisher announces dispatched prompts, e.g. over NATS.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

type Scheduler struct {
	store        *store.Store
	handler      channel.Handler
	events       Publisher
	pollInterval time.Duration
}

func New(s *store.Store, h channel.Handler, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		store:        s,
		handler:      h,
		pollInterval: cfg.PollInterval,
	}
}

func (s *Scheduler) SetEvents(p Publisher) {
	s.events = p
}

// Sync stores the configured schedules, computing each next run from now,
// and removes prompts no longer configured.
func (s *Scheduler) Sync(schedules []config.ScheduleConfig, now time.Time) error {
	names := make([]string, 0, len(schedules))
	for _, sc := range schedules {
		next, err := NextRun(sc.Cron, now)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", sc.Name, err)
		}
		err = s.store.SavePrompt(&store.ScheduledPrompt{
			Name:      sc.Name,
			Schedule:  sc.Cron,
			Channel:   sc.Channel,
			ChannelID: sc.ChannelID,
			Content:   sc.Content,
			NextRunAt: &next,
		})
		if err != nil {
			return err
		}
		names = append(names, sc.Name)
	}
	if err := s.store.DeletePromptsNotIn(names); err != nil {
		return fmt.Errorf("prune schedules: %w", err)
	}
	return nil
}

// Start polls for due prompts until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s.pollInterval == 0 {
		s.pollInterval = 30 * time.Second
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.pollInterval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case now := <-ticker.C:
			s.poll(now)
		}
	}
}

func (s *Scheduler) poll(now time.Time) {
	prompts, err := s.store.GetDuePrompts(now)
	if err != nil {
		slog.Error("failed to get due prompts", "error", err)
		return
	}

	for _, p := range prompts {
		s.execute(p, now)
	}
}

func (s *Scheduler) execute(p store.ScheduledPrompt, now time.Time) {
	slog.Info("dispatching scheduled prompt", "name", p.Name, "channel", p.Channel, "channel_id", p.ChannelID)

	s.handler.HandleMessage(channel.Message{
		ID:        uuid.New().String(),
		Channel:   p.Channel,
		ChannelID: p.ChannelID,
		User:      User,
		Content:   p.Content,
		Timestamp: now,
	})

	status := "dispatched"
	var nextRun *time.Time
	next, err := NextRun(p.Schedule, now)
	if err != nil {
		// Leaving next_run_at empty parks the prompt until the next sync.
		slog.Error("failed to compute next run", "name", p.Name, "schedule", p.Schedule, "error", err)
		status = "error"
	} else {
		nextRun = &next
	}

	if err := s.store.UpdatePromptRun(p.Name, status, nextRun); err != nil {
		slog.Error("failed to update prompt run", "name", p.Name, "error", err)
	}

	s.publish(p, status, nextRun)
}

func (s *Scheduler) publish(p store.ScheduledPrompt, status string, nextRun *time.Time) {
	if s.events == nil {
		return
	}
	event := map[string]any{
		"name":       p.Name,
		"channel":    p.Channel,
		"channel_id": p.ChannelID,
		"status":     status,
	}
	if nextRun != nil {
		event["next_run_at"] = nextRun.UTC().Format(time.RFC3339)
	}
	if err := s.events.PublishJSON(natsbus.TopicEventsSchedule, event); err != nil {
		slog.Warn("publish schedule event failed", "name", p.Name, "error", err)
	}
}

// NextRun returns the first tick of the cron expression strictly after t.
func NextRun(expr string, after time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(expr, after, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick for %q: %w", expr, err)
	}
	return next, nil
}
