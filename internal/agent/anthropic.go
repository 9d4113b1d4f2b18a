package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeConfig configures an Anthropic-backed agent.
type ClaudeConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int64
	SystemPrompt string
}

// Claude answers each task with a single Messages API call. Tool use
// blocks in the reply are forwarded as tool calls, not executed.
type Claude struct {
	id     string
	client anthropic.Client
	model  anthropic.Model
	tokens int64
	system string
}

func NewClaude(id string, cfg ClaudeConfig) (*Claude, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	tokens := cfg.MaxTokens
	if tokens <= 0 {
		tokens = 4096
	}

	return &Claude{
		id:     id,
		client: anthropic.NewClient(opts...),
		model:  model,
		tokens: tokens,
		system: cfg.SystemPrompt,
	}, nil
}

func (c *Claude) ID() string { return c.id }

func (c *Claude) Execute(ctx context.Context, task string) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.tokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(task)),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	var calls []ToolCall
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal(variant.Input, &args); err != nil {
				slog.Warn("tool call input is not an object", "agent", c.id, "tool", variant.Name, "error", err)
			}
			calls = append(calls, ToolCall{Name: variant.Name, Args: args})
		}
	}

	slog.Debug("anthropic reply", "agent", c.id,
		"input_tokens", resp.Usage.InputTokens, "output_tokens", resp.Usage.OutputTokens)

	return Result{
		Success:   true,
		Content:   sb.String(),
		ToolCalls: calls,
	}, nil
}
