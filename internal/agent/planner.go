package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/teamclaw/teamclaw/internal/workflow"
)

// Planner asks Claude to split a complex task into steps, each assigned to
// one member of the team.
type Planner struct {
	claude       *Claude
	descriptions map[string]string
}

const plannerInstruction = "You are the planner of a team of agents. You split work into steps and answer only with JSON."

// NewPlanner builds a planner. cfg.SystemPrompt, when set, describes the
// team and is followed by the planning instruction.
func NewPlanner(cfg ClaudeConfig, descriptions map[string]string) (*Planner, error) {
	cfg.SystemPrompt = plannerSystemPrompt(cfg.SystemPrompt)
	c, err := NewClaude("planner", cfg)
	if err != nil {
		return nil, err
	}
	return &Planner{claude: c, descriptions: descriptions}, nil
}

func plannerSystemPrompt(team string) string {
	if team == "" {
		return plannerInstruction
	}
	return team + "\n\n" + plannerInstruction
}

func (p *Planner) Plan(ctx context.Context, task string, agentIDs []string) ([]workflow.Step, error) {
	res, err := p.claude.Execute(ctx, buildPlanningPrompt(p.descriptions, agentIDs, task))
	if err != nil {
		return nil, err
	}
	return parsePlan(res.Content)
}

func buildPlanningPrompt(descs map[string]string, agentIDs []string, task string) string {
	var sb strings.Builder
	sb.WriteString("Split the user's task into a short ordered list of steps and assign each step to one agent.\n\n")
	sb.WriteString("Available agents:\n")
	for _, id := range agentIDs {
		if d := descs[id]; d != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", id, d)
		} else {
			fmt.Fprintf(&sb, "- %s\n", id)
		}
	}
	sb.WriteString("\nTask: ")
	sb.WriteString(task)
	sb.WriteString("\n\nRespond with ONLY a JSON array like ")
	sb.WriteString(`[{"description": "...", "agent": "<agent id>"}]`)
	sb.WriteString(", nothing else.")
	return sb.String()
}

type planStep struct {
	Description string `json:"description"`
	Agent       string `json:"agent"`
}

// parsePlan extracts the JSON array from the model's reply, tolerating
// surrounding prose or code fences.
func parsePlan(text string) ([]workflow.Step, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no plan in planner reply")
	}

	var raw []planStep
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}

	steps := make([]workflow.Step, 0, len(raw))
	for _, s := range raw {
		if strings.TrimSpace(s.Description) == "" {
			continue
		}
		steps = append(steps, workflow.Step{Description: s.Description, AgentID: s.Agent})
	}
	return steps, nil
}
