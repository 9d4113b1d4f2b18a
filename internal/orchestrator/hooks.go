package orchestrator

import (
	"log/slog"

	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/routing"
	"github.com/teamclaw/teamclaw/internal/store"
	"github.com/teamclaw/teamclaw/internal/workflow"
)

// MessageLog persists inbound messages and agent replies.
type MessageLog interface {
	SaveMessage(msg *store.Message) error
}

// WorkflowRecorder persists decomposed workflows for later execution.
type WorkflowRecorder interface {
	SaveWorkflowRun(run *store.WorkflowRun) error
}

// Publisher fans out orchestration events, e.g. over NATS.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

type Option func(*Orchestrator)

func WithDecomposer(d workflow.Decomposer) Option {
	return func(o *Orchestrator) { o.decomposer = d }
}

func WithMessageLog(l MessageLog) Option {
	return func(o *Orchestrator) { o.messages = l }
}

func WithWorkflowRecorder(r WorkflowRecorder) Option {
	return func(o *Orchestrator) { o.workflows = r }
}

func WithEvents(p Publisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// All hooks below are best effort: a failing store or bus is logged and
// never changes the outcome of a message.

func (o *Orchestrator) recordInbound(msg channel.Message) {
	if o.messages != nil {
		err := o.messages.SaveMessage(&store.Message{
			MessageID: msg.ID,
			Channel:   msg.Channel,
			ChannelID: msg.ChannelID,
			Sender:    "user:" + msg.User,
			Content:   msg.Content,
			Mentions:  msg.Mentions,
		})
		if err != nil {
			slog.Error("log inbound message failed", "message", msg.ID, "error", err)
		}
	}
	o.publish(natsbus.TopicEventsMessage(msg.Channel), msg)
}

func (o *Orchestrator) recordResponse(msg channel.Message, resp AgentResponse) {
	if o.messages != nil {
		err := o.messages.SaveMessage(&store.Message{
			MessageID: msg.ID,
			Channel:   msg.Channel,
			ChannelID: msg.ChannelID,
			Sender:    "agent:" + resp.AgentID,
			AgentID:   resp.AgentID,
			Content:   resp.Content,
		})
		if err != nil {
			slog.Error("log agent response failed", "message", msg.ID, "agent", resp.AgentID, "error", err)
		}
	}
	o.publish(natsbus.TopicEventsResponse(resp.AgentID), map[string]any{
		"message_id": msg.ID,
		"channel":    msg.Channel,
		"channel_id": msg.ChannelID,
		"response":   resp,
	})
}

func (o *Orchestrator) recordWorkflow(msg channel.Message, runID, task string, res workflow.Result) {
	if o.workflows != nil {
		run := &store.WorkflowRun{
			ID:        runID,
			MessageID: msg.ID,
			Channel:   msg.Channel,
			Task:      task,
			Status:    string(workflow.StatusPending),
		}
		for _, st := range res.Subtasks {
			run.Subtasks = append(run.Subtasks, store.Subtask{
				ID:              st.ID,
				Description:     st.Description,
				AssignedAgentID: st.AssignedAgentID,
				Status:          string(st.Status),
				Result:          st.Result,
			})
		}
		if err := o.workflows.SaveWorkflowRun(run); err != nil {
			slog.Error("record workflow failed", "message", msg.ID, "run", runID, "error", err)
		}
	}
	o.publish(natsbus.TopicEventsWorkflow, map[string]any{
		"run_id":     runID,
		"message_id": msg.ID,
		"task":       task,
		"subtasks":   res.Subtasks,
	})
}

func (o *Orchestrator) publishRoute(msg channel.Message, route routing.Result) {
	o.publish(natsbus.TopicEventsRoute(string(route.Type)), map[string]any{
		"message_id": msg.ID,
		"channel":    msg.Channel,
		"route":      route,
	})
}

func (o *Orchestrator) publishDropped(msg channel.Message, agentID, reason string) {
	o.publish(natsbus.TopicEventsDropped, map[string]any{
		"message_id": msg.ID,
		"channel":    msg.Channel,
		"agent_id":   agentID,
		"reason":     reason,
	})
}

func (o *Orchestrator) publish(topic string, v any) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishJSON(topic, v); err != nil {
		slog.Warn("publish event failed", "topic", topic, "error", err)
	}
}
