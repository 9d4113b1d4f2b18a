package routing

import (
	"slices"

	"github.com/teamclaw/teamclaw/internal/channel"
)

// RouteType distinguishes a direct single-agent reply from a workflow.
type RouteType string

const (
	RouteDirect   RouteType = "direct"
	RouteWorkflow RouteType = "workflow"
)

// Result is the routing decision for a message. AgentID is set only for
// direct routes.
type Result struct {
	Type    RouteType `json:"type"`
	AgentID string    `json:"agentId,omitempty"`
	Task    string    `json:"task"`
}

// Route decides how msg is dispatched given the registered agent ids, in
// registration order. Only the first mention is considered for targeting;
// a mention of an unknown agent is treated as no mention at all and goes
// to the first agent. Messages without a valid mention are never promoted
// to a workflow.
//
// agentIDs must not be empty. If it is, Route returns a direct result with
// an empty AgentID, which callers must treat as undeliverable.
func Route(msg channel.Message, agentIDs []string) Result {
	if len(msg.Mentions) == 0 || !slices.Contains(agentIDs, msg.Mentions[0]) {
		return defaultRoute(msg, agentIDs)
	}

	target := msg.Mentions[0]
	if ClassifyTask(msg.Content) == TaskSimple {
		return Result{Type: RouteDirect, AgentID: target, Task: msg.Content}
	}
	return Result{Type: RouteWorkflow, Task: msg.Content}
}

func defaultRoute(msg channel.Message, agentIDs []string) Result {
	r := Result{Type: RouteDirect, Task: msg.Content}
	if len(agentIDs) > 0 {
		r.AgentID = agentIDs[0]
	}
	return r
}
