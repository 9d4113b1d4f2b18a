// Package orchestrator connects channels to agents: every inbound message
// is parsed for mentions, routed, dispatched to an agent or the workflow
// decomposer, and the agent's reply is relayed back to its channel.
//
// Messages are handled concurrently and independently. Replies may be
// relayed out of arrival order, even within one conversation; callers that
// need ordering must serialize at the channel adapter.
//
// Channels and agents must be registered before Start. Registering while
// messages are being dispatched is not supported.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamclaw/teamclaw/internal/agent"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/routing"
	"github.com/teamclaw/teamclaw/internal/workflow"
)

// ErrChannelNotFound is returned when a reply targets a channel name that
// was never registered.
var ErrChannelNotFound = errors.New("channel not registered")

// AgentResponse is an agent's reply on its way back to a channel.
type AgentResponse struct {
	AgentID   string           `json:"agentId"`
	Content   string           `json:"content"`
	ToolCalls []agent.ToolCall `json:"toolCalls,omitempty"`
}

// Outcome reports what happened to a handled message.
type Outcome string

const (
	OutcomeReplied  Outcome = "replied"
	OutcomeSilent   Outcome = "silent" // agent had nothing to say
	OutcomeWorkflow Outcome = "workflow"
	OutcomeDropped  Outcome = "dropped"
	OutcomeFailed   Outcome = "failed"
)

// Orchestrator routes inbound channel messages to registered agents and
// relays their replies. It implements channel.Handler.
type Orchestrator struct {
	channels map[string]channel.Channel
	chOrder  []string
	agents   map[string]agent.Agent
	order    []string
	mu       sync.RWMutex

	decomposer workflow.Decomposer
	messages   MessageLog
	workflows  WorkflowRecorder
	events     Publisher

	// runMu guards closed and wg.Add against a concurrent Stop.
	runMu   sync.Mutex
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns an Orchestrator with no channels or agents registered.
func New(opts ...Option) *Orchestrator {
	baseCtx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		channels: make(map[string]channel.Channel),
		agents:   make(map[string]agent.Agent),
		baseCtx:  baseCtx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterChannel stores ch under name and subscribes the orchestrator to
// its inbound messages. Registering a name again replaces the adapter.
func (o *Orchestrator) RegisterChannel(name string, ch channel.Channel) {
	o.mu.Lock()
	if _, ok := o.channels[name]; !ok {
		o.chOrder = append(o.chOrder, name)
	}
	o.channels[name] = ch
	o.mu.Unlock()

	ch.OnMessage(o)
}

// RegisterAgent adds a under its id. Re-registering an id replaces the
// agent but keeps its position in the routing order.
func (o *Orchestrator) RegisterAgent(a agent.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.agents[a.ID()]; !ok {
		o.order = append(o.order, a.ID())
	}
	o.agents[a.ID()] = a
}

// AgentIDs returns the registered agent ids in registration order. The
// first id is the default route.
func (o *Orchestrator) AgentIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.order...)
}

func (o *Orchestrator) agent(id string) (agent.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	return a, ok
}

func (o *Orchestrator) channel(name string) (channel.Channel, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ch, ok := o.channels[name]
	return ch, ok
}

func (o *Orchestrator) channelsInOrder() []channel.Channel {
	o.mu.RLock()
	defer o.mu.RUnlock()
	chs := make([]channel.Channel, 0, len(o.chOrder))
	for _, name := range o.chOrder {
		chs = append(chs, o.channels[name])
	}
	return chs
}

// Start starts every registered channel in registration order and stops
// at the first failure. Message handling inherits ctx's values but not its
// cancellation: in-flight messages are only cancelled by Stop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	o.cancel()
	o.baseCtx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	o.runMu.Unlock()

	for _, ch := range o.channelsInOrder() {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
		slog.Info("channel started", "channel", ch.Name())
	}
	return nil
}

// Stop refuses new messages, waits for in-flight ones until ctx is done,
// then stops every channel in registration order. In-flight replies are
// still relayed through their channels while Stop waits; messages running
// past the deadline are cancelled.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.runMu.Lock()
	o.closed = true
	cancel := o.cancel
	o.runMu.Unlock()

	var errs []error
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for in-flight messages: %w", ctx.Err()))
	}
	cancel()

	for _, ch := range o.channelsInOrder() {
		if err := ch.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop channel %s: %w", ch.Name(), err))
			continue
		}
		slog.Info("channel stopped", "channel", ch.Name())
	}
	return errors.Join(errs...)
}

// HandleMessage handles msg on its own goroutine. It implements
// channel.Handler.
func (o *Orchestrator) HandleMessage(msg channel.Message) {
	o.runMu.Lock()
	if o.closed {
		o.runMu.Unlock()
		slog.Warn("orchestrator stopped, dropping message", "channel", msg.Channel, "user", msg.User)
		return
	}
	ctx := o.baseCtx
	o.wg.Add(1)
	o.runMu.Unlock()

	go func() {
		defer o.wg.Done()
		o.Process(ctx, msg)
	}()
}

// Wait blocks until every message passed to HandleMessage is handled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Process handles msg synchronously and reports the outcome. Failures are
// logged here and never returned: one message cannot affect another.
func (o *Orchestrator) Process(ctx context.Context, msg channel.Message) Outcome {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Mentions = routing.ParseMentions(msg.Content)

	o.recordInbound(msg)

	ids := o.AgentIDs()
	if len(ids) == 0 {
		slog.Warn("no agents registered, dropping message", "message", msg.ID, "channel", msg.Channel)
		o.publishDropped(msg, "", "no agents registered")
		return OutcomeDropped
	}

	route := routing.Route(msg, ids)
	slog.Debug("message routed", "message", msg.ID, "channel", msg.Channel,
		"mentions", msg.Mentions, "route", route.Type, "agent", route.AgentID)
	o.publishRoute(msg, route)

	if route.Type == routing.RouteWorkflow {
		return o.dispatchWorkflow(ctx, msg, route, ids)
	}
	return o.dispatchDirect(ctx, msg, route)
}

func (o *Orchestrator) dispatchDirect(ctx context.Context, msg channel.Message, route routing.Result) Outcome {
	ag, ok := o.agent(route.AgentID)
	if !ok {
		// No reply is sent to the user for a stale or missing agent.
		slog.Warn("routed agent not registered, dropping message", "message", msg.ID, "agent", route.AgentID)
		o.publishDropped(msg, route.AgentID, "agent not registered")
		return OutcomeDropped
	}

	res, err := agent.Run(ctx, ag, route.Task)
	if err != nil {
		slog.Error("agent execution failed", "message", msg.ID, "agent", route.AgentID, "error", err)
		return OutcomeFailed
	}

	if strings.TrimSpace(res.Content) == "" || routing.IsDecline(res.Content) {
		slog.Info("agent chose not to respond", "message", msg.ID, "agent", route.AgentID)
		return OutcomeSilent
	}

	resp := AgentResponse{
		AgentID:   route.AgentID,
		Content:   res.Content,
		ToolCalls: res.ToolCalls,
	}
	if err := o.relay(ctx, msg, resp); err != nil {
		if errors.Is(err, ErrChannelNotFound) {
			slog.Warn("origin channel not registered, dropping reply", "message", msg.ID, "channel", msg.Channel)
			o.publishDropped(msg, route.AgentID, "channel not registered")
			return OutcomeDropped
		}
		slog.Error("relay response failed", "message", msg.ID, "channel", msg.Channel, "error", err)
		return OutcomeFailed
	}

	o.recordResponse(msg, resp)
	return OutcomeReplied
}

func (o *Orchestrator) relay(ctx context.Context, msg channel.Message, resp AgentResponse) error {
	ch, ok := o.channel(msg.Channel)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, msg.Channel)
	}
	return ch.SendMessage(ctx, msg.ReplyTarget(), resp.Content)
}

func (o *Orchestrator) dispatchWorkflow(ctx context.Context, msg channel.Message, route routing.Result, ids []string) Outcome {
	d := o.decomposer
	if d == nil {
		d = workflow.Placeholder{DefaultAgent: ids[0]}
	}

	res, err := d.Decompose(ctx, route.Task)
	if err != nil {
		slog.Error("workflow decomposition failed", "message", msg.ID, "error", err)
		return OutcomeFailed
	}

	runID := uuid.New().String()
	for i, st := range res.Subtasks {
		slog.Info("workflow subtask", "run", runID, "index", i, "subtask", st.ID,
			"agent", st.AssignedAgentID, "status", st.Status, "description", st.Description)
	}

	o.recordWorkflow(msg, runID, route.Task, res)
	return OutcomeWorkflow
}
