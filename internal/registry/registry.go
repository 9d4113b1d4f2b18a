package registry

import (
	"fmt"

	"github.com/teamclaw/teamclaw/internal/agent"
	"github.com/teamclaw/teamclaw/internal/config"
	"github.com/teamclaw/teamclaw/internal/natsbus"
	"github.com/teamclaw/teamclaw/internal/routing"
	"github.com/teamclaw/teamclaw/internal/store"
)

// Registry is the read-once snapshot of configured agents. It mirrors the
// definitions into the store and builds the agent backends.
type Registry struct {
	store    *store.Store
	agents   []config.AgentDefinition
	provider config.ProviderConfig
	bus      *natsbus.Client
}

func New(s *store.Store, agents []config.AgentDefinition, provider config.ProviderConfig) *Registry {
	return &Registry{
		store:    s,
		agents:   agents,
		provider: provider,
	}
}

// SetBus provides the NATS client used by remote agents.
func (r *Registry) SetBus(client *natsbus.Client) {
	r.bus = client
}

// Sync writes the configured agents to the store in routing order and
// removes agents no longer configured.
func (r *Registry) Sync() error {
	ids := make([]string, 0, len(r.agents))
	for i, def := range r.agents {
		ids = append(ids, def.ID)

		a := &store.Agent{
			ID:           def.ID,
			Name:         def.Name,
			Description:  def.Description,
			SystemPrompt: def.SystemPrompt,
			Backend:      def.Backend,
			Model:        def.Model,
			Position:     i,
		}
		if a.Name == "" {
			a.Name = def.ID
		}
		if err := r.store.SaveAgent(a); err != nil {
			return fmt.Errorf("save agent %s: %w", def.ID, err)
		}
	}

	if err := r.store.DeleteAgentsNotIn(ids); err != nil {
		return fmt.Errorf("delete stale agents: %w", err)
	}
	return nil
}

func (r *Registry) Get(agentID string) (*store.Agent, error) {
	return r.store.GetAgent(agentID)
}

func (r *Registry) List() ([]store.Agent, error) {
	return r.store.ListAgents()
}

func (r *Registry) GetDefinition(agentID string) (config.AgentDefinition, bool) {
	for _, def := range r.agents {
		if def.ID == agentID {
			return def, true
		}
	}
	return config.AgentDefinition{}, false
}

// IDs returns the agent ids in routing order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for _, def := range r.agents {
		ids = append(ids, def.ID)
	}
	return ids
}

func (r *Registry) ResolveModel(agentID string) string {
	if def, ok := r.GetDefinition(agentID); ok && def.Model != "" {
		return def.Model
	}
	return r.provider.Model
}

// Profiles returns the metadata each agent shows to the others.
func (r *Registry) Profiles() map[string]routing.Profile {
	profiles := make(map[string]routing.Profile, len(r.agents))
	for _, def := range r.agents {
		profiles[def.ID] = routing.Profile{
			Name:         def.Name,
			Description:  def.Description,
			SystemPrompt: def.SystemPrompt,
		}
	}
	return profiles
}

// SystemPrompt renders the prompt for agentID with every other registered
// agent listed as a participant.
func (r *Registry) SystemPrompt(agentID string) string {
	return routing.BuildSystemPrompt(agentID, r.Profiles(), r.IDs())
}

// TeamPrompt renders the group prompt listing every registered agent.
func (r *Registry) TeamPrompt() string {
	return routing.BuildSystemPrompt("", r.Profiles(), r.IDs())
}

// Build constructs the agent backend for every definition, in routing order.
func (r *Registry) Build() ([]agent.Agent, error) {
	agents := make([]agent.Agent, 0, len(r.agents))
	for _, def := range r.agents {
		a, err := r.build(def)
		if err != nil {
			return nil, fmt.Errorf("build agent %s: %w", def.ID, err)
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// BuildLocal constructs agentID with an in-process backend, for a worker
// serving an agent that the gateway reaches over the remote backend.
func (r *Registry) BuildLocal(agentID, backend string) (agent.Agent, error) {
	def, ok := r.GetDefinition(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s not configured", agentID)
	}
	if backend == config.BackendRemote {
		return nil, fmt.Errorf("worker backend must be local, got %q", backend)
	}
	def.Backend = backend
	return r.build(def)
}

func (r *Registry) build(def config.AgentDefinition) (agent.Agent, error) {
	switch def.Backend {
	case "", config.BackendEcho:
		return agent.NewEcho(def.ID), nil
	case config.BackendAnthropic:
		return agent.NewClaude(def.ID, agent.ClaudeConfig{
			APIKey:       r.provider.AnthropicAPIKey,
			BaseURL:      r.provider.BaseURL,
			Model:        r.ResolveModel(def.ID),
			MaxTokens:    r.provider.MaxTokens,
			SystemPrompt: r.SystemPrompt(def.ID),
		})
	case config.BackendRemote:
		if r.bus == nil {
			return nil, fmt.Errorf("remote backend needs a nats connection")
		}
		return agent.NewRemote(def.ID, r.bus, def.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", def.Backend)
	}
}
