package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

var ErrNoAgents = errors.New("no agents configured")

// agentIDPattern matches ids that can be addressed with an @mention.
var agentIDPattern = regexp.MustCompile(`^\w+$`)

type Config struct {
	Agents    []AgentDefinition `yaml:"agents"`
	Channels  ChannelsConfig    `yaml:"channels"`
	Provider  ProviderConfig    `yaml:"provider"`
	NATS      NATSConfig        `yaml:"nats"`
	Store     StoreConfig       `yaml:"store"`
	Workflow  WorkflowConfig    `yaml:"workflow"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Schedules []ScheduleConfig  `yaml:"schedules"`
	Log       LogConfig         `yaml:"log"`
}

// AgentDefinition describes one agent. The order of Config.Agents is the
// routing order: the first agent receives unaddressed messages.
type AgentDefinition struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	SystemPrompt string        `yaml:"system_prompt"`
	Backend      string        `yaml:"backend"` // echo, anthropic, remote
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
}

const (
	BackendEcho      = "echo"
	BackendAnthropic = "anthropic"
	BackendRemote    = "remote"
)

type ChannelsConfig struct {
	Web      WebConfig      `yaml:"web"`
	Telegram TelegramConfig `yaml:"telegram"`
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from"`
}

type SlackConfig struct {
	BotToken   string   `yaml:"bot_token"`
	AppToken   string   `yaml:"app_token"`
	ChannelIDs []string `yaml:"channel_ids"`
}

type DiscordConfig struct {
	Token      string   `yaml:"token"`
	GuildID    string   `yaml:"guild_id"`
	ChannelIDs []string `yaml:"channel_ids"`
}

type ProviderConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
	MaxTokens       int64  `yaml:"max_tokens"`
}

type NATSConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WorkflowConfig struct {
	// DefaultAgent receives placeholder subtasks. Empty means the first agent.
	DefaultAgent string `yaml:"default_agent"`
	// Planner decomposes complex tasks: "placeholder" (single subtask) or
	// "anthropic" (Claude proposes steps for the team).
	Planner string `yaml:"planner"`
}

const (
	PlannerPlaceholder = "placeholder"
	PlannerAnthropic   = "anthropic"
)

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScheduleConfig is a prompt injected into a channel conversation on a
// cron schedule, routed like any user message.
type ScheduleConfig struct {
	Name      string `yaml:"name"`
	Cron      string `yaml:"cron"`
	Channel   string `yaml:"channel"`
	ChannelID string `yaml:"channel_id"`
	Content   string `yaml:"content"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func defaults() Config {
	return Config{
		Channels: ChannelsConfig{
			Web: WebConfig{
				Enabled: true,
				Port:    8080,
			},
		},
		Provider: ProviderConfig{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/teamclaw.db",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("TEAMCLAW_CONFIG")
	if path == "" {
		path = "config/teamclaw.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	cfg.applyAgentDefaults()

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TEAMCLAW_TELEGRAM_TOKEN"); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := os.Getenv("TEAMCLAW_SLACK_BOT_TOKEN"); v != "" {
		cfg.Channels.Slack.BotToken = v
	}
	if v := os.Getenv("TEAMCLAW_SLACK_APP_TOKEN"); v != "" {
		cfg.Channels.Slack.AppToken = v
	}
	if v := os.Getenv("TEAMCLAW_DISCORD_TOKEN"); v != "" {
		cfg.Channels.Discord.Token = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Provider.AnthropicAPIKey = v
	}
	if v := os.Getenv("TEAMCLAW_WEB_PASSWORD"); v != "" {
		cfg.Channels.Web.Auth = v
	}
	if v := os.Getenv("TEAMCLAW_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Channels.Web.Port = port
		}
	}
	if v := os.Getenv("TEAMCLAW_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("TEAMCLAW_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TEAMCLAW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) applyAgentDefaults() {
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.Name == "" {
			a.Name = a.ID
		}
		if a.Backend == "" {
			a.Backend = BackendEcho
		}
		if a.Backend == BackendRemote && a.Timeout == 0 {
			a.Timeout = 2 * time.Minute
		}
	}
}

// AgentIDs returns the configured agent ids in routing order.
func (c *Config) AgentIDs() []string {
	ids := make([]string, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.ID)
	}
	return ids
}

// Validate checks the parts of the config the gateway cannot run without.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return ErrNoAgents
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if !agentIDPattern.MatchString(a.ID) {
			return fmt.Errorf("agent id %q: must contain only letters, digits and underscores", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true

		switch a.Backend {
		case BackendEcho, BackendRemote:
		case BackendAnthropic:
			if c.Provider.AnthropicAPIKey == "" {
				return fmt.Errorf("agent %q uses anthropic backend but no api key is set", a.ID)
			}
		default:
			return fmt.Errorf("agent %q: unknown backend %q", a.ID, a.Backend)
		}
	}

	if c.Workflow.DefaultAgent != "" && !seen[c.Workflow.DefaultAgent] {
		return fmt.Errorf("workflow default agent %q is not configured", c.Workflow.DefaultAgent)
	}

	switch c.Workflow.Planner {
	case "", PlannerPlaceholder:
	case PlannerAnthropic:
		if c.Provider.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic workflow planner needs an api key")
		}
	default:
		return fmt.Errorf("unknown workflow planner %q", c.Workflow.Planner)
	}

	gx := gronx.New()
	for _, s := range c.Schedules {
		if s.Name == "" {
			return fmt.Errorf("schedule without a name")
		}
		if !gx.IsValid(s.Cron) {
			return fmt.Errorf("schedule %q: invalid cron expression %q", s.Name, s.Cron)
		}
		if s.Channel == "" {
			return fmt.Errorf("schedule %q: channel is required", s.Name)
		}
	}

	return nil
}
