package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teamclaw/teamclaw/internal/agent"
	"github.com/teamclaw/teamclaw/internal/channel"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/discord"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/orchestrator"
	"github.com/teamclaw/teamclaw/internal/registry"
	"github.com/teamclaw/teamclaw/internal/scheduler"
	"github.com/teamclaw/teamclaw/internal/slack"
	"github.com/teamclaw/teamclaw/internal/store"
	"github.com/teamclaw/teamclaw/internal/telegram"
	"github.com/teamclaw/teamclaw/internal/web"
	"github.com/teamclaw/teamclaw/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the gateway service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGateway()
	},
}

func runGateway() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("starting teamclaw gateway", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SQLite store
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()
	slog.Info("store initialized", "path", cfg.Store.Path)

	// Embedded NATS
	bus, err := natsbus.New(cfg.NATS)
	if err != nil {
		return fmt.Errorf("init nats: %w", err)
	}
	defer bus.Close()
	slog.Info("nats started", "port", bus.Port())

	client, err := natsbus.NewClient(bus)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer func() {
		if err := client.Flush(); err != nil {
			slog.Warn("flush nats events failed", "error", err)
		}
		client.Close()
	}()

	// Agent registry
	reg := registry.New(db, cfg.Agents, cfg.Provider)
	reg.SetBus(client)
	if err := reg.Sync(); err != nil {
		return fmt.Errorf("sync agent registry: %w", err)
	}
	agents, err := reg.Build()
	if err != nil {
		return err
	}

	decomposer, err := buildDecomposer(cfg, reg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(
		orchestrator.WithDecomposer(decomposer),
		orchestrator.WithMessageLog(db),
		orchestrator.WithWorkflowRecorder(db),
		orchestrator.WithEvents(client),
	)
	for _, a := range agents {
		orch.RegisterAgent(a)
	}

	channels, err := buildChannels(cfg, db, client, reg)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		slog.Warn("no channels enabled, only scheduled prompts will be handled")
	}
	for _, ch := range channels {
		orch.RegisterChannel(ch.Name(), ch)
	}

	if err := orch.Start(ctx); err != nil {
		shutdown(orch)
		return err
	}

	// Scheduler
	sched := scheduler.New(db, orch, cfg.Scheduler)
	sched.SetEvents(client)
	if err := sched.Sync(cfg.Schedules, time.Now()); err != nil {
		shutdown(orch)
		return fmt.Errorf("sync schedules: %w", err)
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Start(ctx)
	}()

	slog.Info("gateway ready", "agents", orch.AgentIDs(), "channels", len(channels))

	<-ctx.Done()
	slog.Info("shutting down")
	<-schedDone
	shutdown(orch)
	return nil
}

func shutdown(orch *orchestrator.Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orch.Stop(ctx); err != nil {
		slog.Error("shutdown failed", "error", err)
	}
}

// defaultAgent is the agent unplanned workflows are assigned to.
func defaultAgent(cfg *config.Config) string {
	if cfg.Workflow.DefaultAgent != "" {
		return cfg.Workflow.DefaultAgent
	}
	return cfg.Agents[0].ID
}

// buildDecomposer returns the configured workflow decomposer. The default
// agent is listed first so unplanned work lands on it.
func buildDecomposer(cfg *config.Config, reg *registry.Registry) (workflow.Decomposer, error) {
	def := defaultAgent(cfg)
	if cfg.Workflow.Planner != config.PlannerAnthropic {
		return workflow.Placeholder{DefaultAgent: def}, nil
	}

	descriptions := make(map[string]string)
	for id, p := range reg.Profiles() {
		descriptions[id] = p.Description
	}
	planner, err := agent.NewPlanner(agent.ClaudeConfig{
		APIKey:       cfg.Provider.AnthropicAPIKey,
		BaseURL:      cfg.Provider.BaseURL,
		Model:        cfg.Provider.Model,
		MaxTokens:    cfg.Provider.MaxTokens,
		SystemPrompt: reg.TeamPrompt(),
	}, descriptions)
	if err != nil {
		return nil, fmt.Errorf("init workflow planner: %w", err)
	}

	ids := []string{def}
	for _, id := range cfg.AgentIDs() {
		if id != def {
			ids = append(ids, id)
		}
	}
	return workflow.NewPlanned(planner, ids)
}

func buildChannels(cfg *config.Config, db *store.Store, client *natsbus.Client, agents web.AgentDirectory) ([]channel.Channel, error) {
	var channels []channel.Channel

	if cfg.Channels.Web.Enabled {
		ch, err := web.New(cfg.Channels.Web,
			web.WithHistory(db),
			web.WithEvents(client),
			web.WithAgents(agents),
		)
		if err != nil {
			return nil, fmt.Errorf("init web channel: %w", err)
		}
		channels = append(channels, ch)
	}

	if cfg.Channels.Telegram.Token != "" {
		bot, err := telegram.New(cfg.Channels.Telegram)
		if err != nil {
			return nil, fmt.Errorf("init telegram channel: %w", err)
		}
		channels = append(channels, bot)
	} else {
		slog.Debug("telegram token not set, channel disabled")
	}

	if sc := cfg.Channels.Slack; sc.BotToken != "" && sc.AppToken != "" {
		channels = append(channels, slack.New(sc))
	}

	if cfg.Channels.Discord.Token != "" {
		channels = append(channels, discord.New(cfg.Channels.Discord))
	}

	return channels, nil
}
