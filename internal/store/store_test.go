package store

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/teamclaw/teamclaw/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAgentCRUD(t *testing.T) {
	s := newTestStore(t)

	a := &Agent{ID: "dev", Name: "Developer", Description: "Codes things", Backend: "echo", Position: 0}
	if err := s.SaveAgent(a); err != nil {
		t.Fatalf("save agent: %v", err)
	}

	got, err := s.GetAgent("dev")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil {
		t.Fatal("expected agent, got nil")
	}
	if got.Name != "Developer" {
		t.Errorf("expected name 'Developer', got '%s'", got.Name)
	}
	if got.Description != "Codes things" {
		t.Errorf("expected description 'Codes things', got '%s'", got.Description)
	}

	// Update
	a.Name = "Senior Developer"
	if err := s.SaveAgent(a); err != nil {
		t.Fatalf("update agent: %v", err)
	}
	got, _ = s.GetAgent("dev")
	if got.Name != "Senior Developer" {
		t.Errorf("expected 'Senior Developer', got '%s'", got.Name)
	}

	// Not found
	got, err = s.GetAgent("nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent agent")
	}

	// Ordering follows position, not insertion
	_ = s.SaveAgent(&Agent{ID: "ops", Name: "Ops", Backend: "echo", Position: 2})
	_ = s.SaveAgent(&Agent{ID: "review", Name: "Reviewer", Backend: "echo", Position: 1})
	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("list agents: %v", err)
	}
	var ids []string
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	if !slices.Equal(ids, []string{"dev", "review", "ops"}) {
		t.Errorf("expected position order, got %v", ids)
	}

	// DeleteAgentsNotIn
	if err := s.DeleteAgentsNotIn([]string{"dev", "review"}); err != nil {
		t.Fatalf("delete agents not in: %v", err)
	}
	agents, _ = s.ListAgents()
	if len(agents) != 2 {
		t.Errorf("expected 2 agents after delete, got %d", len(agents))
	}
}

func TestMessageLog(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		_ = s.SaveMessage(&Message{
			MessageID: "m" + string(rune('A'+i)),
			Channel:   "web",
			ChannelID: "room-1",
			Sender:    "user:1",
			Content:   "message " + string(rune('A'+i)),
			Mentions:  []string{"dev"},
		})
	}
	_ = s.SaveMessage(&Message{
		MessageID: "mA",
		Channel:   "web",
		ChannelID: "room-1",
		Sender:    "agent:dev",
		AgentID:   "dev",
		Content:   "reply",
	})
	_ = s.SaveMessage(&Message{MessageID: "other", Channel: "slack", Sender: "user:2", Content: "elsewhere"})

	messages, err := s.GetConversation("web", "room-1", 10)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}
	// Should be in chronological order
	if messages[0].Content != "message A" {
		t.Errorf("expected first message 'message A', got '%s'", messages[0].Content)
	}
	if !slices.Equal(messages[0].Mentions, []string{"dev"}) {
		t.Errorf("expected mentions round trip, got %v", messages[0].Mentions)
	}
	if messages[5].AgentID != "dev" || messages[5].Mentions != nil {
		t.Errorf("unexpected reply row %+v", messages[5])
	}

	// Limit keeps the newest
	messages, err = s.GetConversation("web", "room-1", 2)
	if err != nil {
		t.Fatalf("get conversation limited: %v", err)
	}
	if len(messages) != 2 || messages[1].Content != "reply" {
		t.Errorf("expected newest 2 messages, got %+v", messages)
	}

	// Empty channel id
	messages, _ = s.GetConversation("slack", "", 10)
	if len(messages) != 1 {
		t.Errorf("expected 1 slack message, got %d", len(messages))
	}

	recent, err := s.GetRecentMessages(3)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(recent) != 3 || recent[0].Content != "elsewhere" {
		t.Errorf("expected newest first, got %+v", recent)
	}
}

func TestWorkflowRunCRUD(t *testing.T) {
	s := newTestStore(t)

	run := &WorkflowRun{
		ID:        "run-1",
		MessageID: "m1",
		Channel:   "web",
		Task:      "@dev build and then test",
		Status:    "pending",
		Subtasks: []Subtask{
			{ID: "st-1", Description: "build", AssignedAgentID: "dev", Status: "pending"},
			{ID: "st-2", Description: "test", AssignedAgentID: "review", Status: "pending"},
		},
	}
	if err := s.SaveWorkflowRun(run); err != nil {
		t.Fatalf("save workflow run: %v", err)
	}

	got, err := s.GetWorkflowRun("run-1")
	if err != nil {
		t.Fatalf("get workflow run: %v", err)
	}
	if got == nil {
		t.Fatal("expected run")
	}
	if got.Task != run.Task || len(got.Subtasks) != 2 {
		t.Fatalf("unexpected run %+v", got)
	}
	if got.Subtasks[0].ID != "st-1" || got.Subtasks[1].Position != 1 {
		t.Errorf("expected subtasks in order, got %+v", got.Subtasks)
	}

	if err := s.UpdateSubtask("st-2", "completed", "all green"); err != nil {
		t.Fatalf("update subtask: %v", err)
	}
	got, _ = s.GetWorkflowRun("run-1")
	if got.Subtasks[1].Status != "completed" || got.Subtasks[1].Result != "all green" {
		t.Errorf("expected completed subtask, got %+v", got.Subtasks[1])
	}
	if err := s.UpdateSubtask("missing", "failed", ""); err == nil {
		t.Error("expected error for missing subtask")
	}

	runs, err := s.ListWorkflowRuns(10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}

	missing, err := s.GetWorkflowRun("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil run, got %+v, %v", missing, err)
	}
}

func TestScheduledPrompts(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	_ = s.SavePrompt(&ScheduledPrompt{Name: "due", Schedule: "* * * * *", Channel: "web", Content: "@dev status", NextRunAt: &past})
	_ = s.SavePrompt(&ScheduledPrompt{Name: "later", Schedule: "0 9 * * *", Channel: "web", Content: "hi", NextRunAt: &future})

	due, err := s.GetDuePrompts(time.Now())
	if err != nil {
		t.Fatalf("get due prompts: %v", err)
	}
	if len(due) != 1 || due[0].Name != "due" {
		t.Fatalf("expected only 'due', got %+v", due)
	}

	if err := s.UpdatePromptRun("due", "success", &future); err != nil {
		t.Fatalf("update prompt run: %v", err)
	}
	due, _ = s.GetDuePrompts(time.Now())
	if len(due) != 0 {
		t.Errorf("expected no due prompts, got %d", len(due))
	}

	got, err := s.GetPrompt("due")
	if err != nil || got == nil {
		t.Fatalf("get prompt: %v", err)
	}
	if got.LastStatus != "success" || got.LastRunAt == nil {
		t.Errorf("expected run recorded, got %+v", got)
	}

	// Re-saving the definition keeps run history
	_ = s.SavePrompt(&ScheduledPrompt{Name: "due", Schedule: "*/5 * * * *", Channel: "web", Content: "@dev status", NextRunAt: &future})
	got, _ = s.GetPrompt("due")
	if got.Schedule != "*/5 * * * *" || got.LastStatus != "success" {
		t.Errorf("expected updated schedule with history, got %+v", got)
	}

	if err := s.DeletePromptsNotIn([]string{"later"}); err != nil {
		t.Fatalf("delete prompts: %v", err)
	}
	all, _ := s.ListPrompts()
	if len(all) != 1 || all[0].Name != "later" {
		t.Errorf("expected only 'later', got %+v", all)
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveAgent(&Agent{ID: "dev", Name: "dev", Backend: "echo"}); err != nil {
		t.Fatalf("save agent: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snap.db")
	if err := s.Snapshot(path); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	copy, err := New(config.StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer copy.Close()

	a, err := copy.GetAgent("dev")
	if err != nil || a == nil {
		t.Fatalf("expected agent in snapshot, got %v, %v", a, err)
	}

	if err := s.Snapshot(path); err == nil {
		t.Error("expected error snapshotting over an existing file")
	}
}
