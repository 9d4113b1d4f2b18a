package scheduler

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/store"
)

type recorder struct {
	mu   sync.Mutex
	msgs []channel.Message
}

func (r *recorder) HandleMessage(msg channel.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

type events struct {
	topics []string
}

func (e *events) PublishJSON(topic string, _ any) error {
	e.topics = append(e.topics, topic)
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *recorder) {
	t.Helper()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	rec := &recorder{}
	return New(s, rec, config.SchedulerConfig{PollInterval: time.Second}), s, rec
}

func TestNextRun(t *testing.T) {
	base := time.Date(2025, 3, 10, 8, 30, 0, 0, time.Local)

	next, err := NextRun("0 9 * * *", base)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	want := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	next, err = NextRun("* * * * *", base)
	if err != nil {
		t.Fatalf("NextRun: %v", err)
	}
	if !next.After(base) {
		t.Errorf("expected next run after %v, got %v", base, next)
	}

	if _, err := NextRun("not a cron", base); err == nil {
		t.Error("expected error for invalid expression")
	}
}

func TestSync(t *testing.T) {
	sched, s, _ := newTestScheduler(t)
	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.Local)

	err := sched.Sync([]config.ScheduleConfig{
		{Name: "standup", Cron: "0 9 * * 1-5", Channel: "slack", ChannelID: "C1", Content: "@pm standup summary"},
		{Name: "report", Cron: "0 18 * * *", Channel: "web", Content: "daily report"},
	}, now)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	prompts, err := s.ListPrompts()
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(prompts))
	}

	standup, _ := s.GetPrompt("standup")
	if standup == nil || standup.NextRunAt == nil {
		t.Fatal("expected standup with next run")
	}
	if want := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local); !standup.NextRunAt.Equal(want) {
		t.Errorf("expected next run %v, got %v", want, *standup.NextRunAt)
	}

	// Removing a schedule from config removes it from the store.
	if err := sched.Sync([]config.ScheduleConfig{
		{Name: "report", Cron: "0 18 * * *", Channel: "web", Content: "daily report"},
	}, now); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if p, _ := s.GetPrompt("standup"); p != nil {
		t.Error("expected standup to be removed")
	}
}

func TestSyncInvalidCron(t *testing.T) {
	sched, _, _ := newTestScheduler(t)
	err := sched.Sync([]config.ScheduleConfig{{Name: "bad", Cron: "whenever", Channel: "web"}}, time.Now())
	if err == nil {
		t.Error("expected error for invalid cron")
	}
}

func TestPollDispatchesDuePrompts(t *testing.T) {
	sched, s, rec := newTestScheduler(t)
	ev := &events{}
	sched.SetEvents(ev)

	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.Local)
	if err := sched.Sync([]config.ScheduleConfig{
		{Name: "standup", Cron: "0 9 * * *", Channel: "slack", ChannelID: "C1", Content: "@pm standup summary"},
		{Name: "later", Cron: "0 18 * * *", Channel: "web", Content: "evening"},
	}, now); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// Nothing is due yet.
	sched.poll(now)
	if len(rec.msgs) != 0 {
		t.Fatalf("expected no dispatch, got %d", len(rec.msgs))
	}

	at := time.Date(2025, 3, 10, 9, 0, 30, 0, time.Local)
	sched.poll(at)
	if len(rec.msgs) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(rec.msgs))
	}
	msg := rec.msgs[0]
	if msg.Channel != "slack" || msg.ChannelID != "C1" || msg.User != "scheduler" || msg.Content != "@pm standup summary" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.ID == "" || !msg.Timestamp.Equal(at) {
		t.Errorf("expected id and timestamp, got %+v", msg)
	}

	p, _ := s.GetPrompt("standup")
	if p.LastStatus != "dispatched" || p.LastRunAt == nil {
		t.Errorf("expected run recorded, got %+v", p)
	}
	if want := time.Date(2025, 3, 11, 9, 0, 0, 0, time.Local); p.NextRunAt == nil || !p.NextRunAt.Equal(want) {
		t.Errorf("expected next run %v, got %v", want, p.NextRunAt)
	}

	// Polling again at the same time does not dispatch twice.
	sched.poll(at)
	if len(rec.msgs) != 1 {
		t.Errorf("expected still 1 dispatch, got %d", len(rec.msgs))
	}
	if len(ev.topics) != 1 || ev.topics[0] != "events.schedule" {
		t.Errorf("unexpected events %v", ev.topics)
	}
}
