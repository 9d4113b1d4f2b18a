package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/orchestrator"
	"github.com/teamclaw/teamclaw/internal/registry"
	"github.com/teamclaw/teamclaw/internal/routing"
	"github.com/teamclaw/teamclaw/internal/workflow"
)

var routeDispatch bool

var routeCmd = &cobra.Command{
	Use:   "route <text>",
	Short: "Show how a message would be routed",
	Long: `Parses mentions, classifies the task and prints the routing decision for
the configured agents as JSON. With --dispatch the message is also handled
by the orchestrator and the agent's reply is printed. Remote agents are not
available in this mode.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		text := strings.Join(args, " ")
		if err := printRoute(cmd.OutOrStdout(), text, cfg.AgentIDs()); err != nil {
			return err
		}
		if !routeDispatch {
			return nil
		}
		return dispatch(cmd.Context(), cmd.OutOrStdout(), cfg, text)
	},
}

func init() {
	routeCmd.Flags().BoolVar(&routeDispatch, "dispatch", false, "run the message through the orchestrator")
}

type routeReport struct {
	Mentions []string         `json:"mentions"`
	Kind     routing.TaskKind `json:"kind"`
	Route    routing.Result   `json:"route"`
}

func printRoute(w io.Writer, text string, agentIDs []string) error {
	msg := channel.Message{Channel: cliChannelName, Content: text}
	msg.Mentions = routing.ParseMentions(text)

	report := routeReport{
		Mentions: msg.Mentions,
		Kind:     routing.ClassifyTask(text),
		Route:    routing.Route(msg, agentIDs),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func dispatch(ctx context.Context, w io.Writer, cfg *config.Config, text string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	reg := registry.New(nil, cfg.Agents, cfg.Provider)
	agents, err := reg.Build()
	if err != nil {
		return err
	}

	orch := orchestrator.New(orchestrator.WithDecomposer(workflow.Placeholder{DefaultAgent: defaultAgent(cfg)}))
	for _, a := range agents {
		orch.RegisterAgent(a)
	}
	out := &writerChannel{w: w}
	orch.RegisterChannel(cliChannelName, out)

	if ctx == nil {
		ctx = context.Background()
	}
	outcome := orch.Process(ctx, channel.Message{
		Channel:   cliChannelName,
		User:      currentUser(),
		Content:   text,
		Timestamp: time.Now(),
	})
	fmt.Fprintf(w, "outcome: %s\n", outcome)
	return nil
}

const cliChannelName = "cli"

// writerChannel is a send-only channel that prints replies.
type writerChannel struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *writerChannel) Name() string                { return cliChannelName }
func (c *writerChannel) Start(context.Context) error { return nil }
func (c *writerChannel) Stop(context.Context) error  { return nil }
func (c *writerChannel) OnMessage(channel.Handler)   {}

func (c *writerChannel) SendMessage(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "reply: %s\n", text)
	return err
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "cli"
}
