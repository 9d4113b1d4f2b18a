package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/teamclaw/teamclaw/internal/natsbus"
)

type executeRequest struct {
	AgentID string `json:"agentId"`
	Task    string `json:"task"`
}

type executeReply struct {
	Result
	Error string `json:"error,omitempty"`
}

// Remote forwards tasks over NATS to an agent process serving
// natsbus.TopicAgentExecute.
type Remote struct {
	id      string
	client  *natsbus.Client
	timeout time.Duration
}

func NewRemote(id string, client *natsbus.Client, timeout time.Duration) *Remote {
	return &Remote{id: id, client: client, timeout: timeout}
}

func (r *Remote) ID() string { return r.id }

func (r *Remote) Execute(ctx context.Context, task string) (Result, error) {
	data, err := json.Marshal(executeRequest{AgentID: r.id, Task: task})
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	msg, err := r.client.RequestContext(ctx, natsbus.TopicAgentExecute(r.id), data)
	if err != nil {
		return Result{}, fmt.Errorf("request agent %s: %w", r.id, err)
	}

	var reply executeReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	if reply.Error != "" {
		return Result{}, fmt.Errorf("agent %s: %s", r.id, reply.Error)
	}
	return reply.Result, nil
}

// Serve answers execute requests for a on the bus. It is the worker side
// of Remote and lets an agent run in a separate process.
func Serve(ctx context.Context, client *natsbus.Client, a Agent) (*nats.Subscription, error) {
	return client.Subscribe(natsbus.TopicAgentExecute(a.ID()), func(msg *nats.Msg) {
		var req executeRequest
		var reply executeReply
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			reply.Error = fmt.Sprintf("decode request: %v", err)
		} else if res, err := Run(ctx, a, req.Task); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Result = res
		}

		data, err := json.Marshal(reply)
		if err != nil {
			slog.Error("marshal agent reply failed", "agent", a.ID(), "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Error("respond to agent request failed", "agent", a.ID(), "error", err)
		}
	})
}
