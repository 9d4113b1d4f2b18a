// Package workflow turns a complex task into an ordered list of subtasks.
// It only plans; nothing in this package executes subtasks.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Subtask is one unit of a decomposed task. Status transitions after
// pending belong to whatever executes the subtask.
type Subtask struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	AssignedAgentID string `json:"assignedAgentId"`
	Status          Status `json:"status"`
	Result          string `json:"result,omitempty"`
}

type Result struct {
	Success     bool      `json:"success"`
	Subtasks    []Subtask `json:"subtasks"`
	FinalResult string    `json:"finalResult,omitempty"`
}

// Decomposer splits a task into ordered subtasks. Implementations always
// report success, give every subtask a fresh id and leave it pending.
type Decomposer interface {
	Decompose(ctx context.Context, task string) (Result, error)
}

// Placeholder wraps the whole task in a single subtask assigned to
// DefaultAgent.
type Placeholder struct {
	DefaultAgent string
}

func (p Placeholder) Decompose(_ context.Context, task string) (Result, error) {
	return Result{
		Success:  true,
		Subtasks: []Subtask{newSubtask(task, p.DefaultAgent)},
	}, nil
}

// Step is a planned subtask before it is stamped with an id and status.
type Step struct {
	Description string
	AgentID     string
}

// Planner proposes the steps for a task, typically by asking an LLM.
type Planner interface {
	Plan(ctx context.Context, task string, agentIDs []string) ([]Step, error)
}

// PlannerFunc adapts a function to a Planner.
type PlannerFunc func(ctx context.Context, task string, agentIDs []string) ([]Step, error)

func (f PlannerFunc) Plan(ctx context.Context, task string, agentIDs []string) ([]Step, error) {
	return f(ctx, task, agentIDs)
}

// Planned decomposes through a Planner and falls back to a single
// placeholder subtask when the planner fails or returns nothing. Steps
// assigned to agents outside AgentIDs are reassigned to the first agent.
type Planned struct {
	Planner  Planner
	AgentIDs []string
}

func NewPlanned(p Planner, agentIDs []string) (*Planned, error) {
	if len(agentIDs) == 0 {
		return nil, fmt.Errorf("planned decomposer needs at least one agent")
	}
	return &Planned{Planner: p, AgentIDs: agentIDs}, nil
}

func (d *Planned) Decompose(ctx context.Context, task string) (Result, error) {
	fallback := Placeholder{DefaultAgent: d.AgentIDs[0]}

	steps, err := d.Planner.Plan(ctx, task, d.AgentIDs)
	if err != nil {
		slog.Warn("workflow planner failed, using single subtask", "error", err)
		return fallback.Decompose(ctx, task)
	}
	if len(steps) == 0 {
		return fallback.Decompose(ctx, task)
	}

	subtasks := make([]Subtask, 0, len(steps))
	for _, s := range steps {
		agentID := s.AgentID
		if !slices.Contains(d.AgentIDs, agentID) {
			slog.Debug("planner assigned unknown agent, reassigning", "agent", agentID, "default", d.AgentIDs[0])
			agentID = d.AgentIDs[0]
		}
		subtasks = append(subtasks, newSubtask(s.Description, agentID))
	}
	return Result{Success: true, Subtasks: subtasks}, nil
}

func newSubtask(description, agentID string) Subtask {
	return Subtask{
		ID:              uuid.New().String(),
		Description:     description,
		AssignedAgentID: agentID,
		Status:          StatusPending,
	}
}
