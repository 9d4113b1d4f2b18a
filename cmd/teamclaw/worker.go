package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teamclaw/teamclaw/internal/agent"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/registry"
)

var (
	workerNATSURL string
	workerBackend string
)

var workerCmd = &cobra.Command{
	Use:   "worker <agent-id>",
	Short: "Serve one agent over NATS for a gateway's remote backend",
	Long: `Runs a configured agent in this process and answers the gateway's
execute requests on agent.<id>.execute. Pair it with "backend: remote" on the
gateway side to run agents on other machines.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(args[0])
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerNATSURL, "nats", "", "NATS server URL (default nats://127.0.0.1:<nats.port>)")
	workerCmd.Flags().StringVar(&workerBackend, "backend", config.BackendEcho, "local backend to run the agent with (echo or anthropic)")
}

func runWorker(agentID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := workerNATSURL
	if url == "" {
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.NATS.Port)
	}

	reg := registry.New(nil, cfg.Agents, cfg.Provider)
	a, err := reg.BuildLocal(agentID, workerBackend)
	if err != nil {
		return err
	}

	client, err := natsbus.NewClientFromURL(url)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := agent.Serve(ctx, client, a)
	if err != nil {
		return fmt.Errorf("serve agent %s: %w", agentID, err)
	}
	defer sub.Unsubscribe()

	slog.Info("worker serving agent", "agent", agentID, "backend", workerBackend, "nats", url)
	<-ctx.Done()
	return nil
}
