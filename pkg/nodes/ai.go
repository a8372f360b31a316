package nodes

import (
	"context"
	"errors"

	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/aretw0/nodeweave/pkg/registry"
	"github.com/aretw0/nodeweave/pkg/schema"
)

// ErrNoAIClient is returned by AI nodes when no client is configured.
var ErrNoAIClient = errors.New("no AI client configured")

type chatSettings struct {
	Model       string  `mapstructure:"model"`
	System      string  `mapstructure:"system"`
	Prompt      string  `mapstructure:"prompt"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

func aiChat() registry.Definition {
	return registry.Definition{
		Type:        "ai.chat",
		Description: "Sends a prompt to the configured language model",
		Category:    "ai",
		Inputs:      []string{"prompt", "system"},
		Outputs:     []string{"text", "usage"},
		Defaults:    map[string]any{"max_tokens": 1024, "temperature": 0.7},
		ConfigSchema: schema.Schema{
			"model":       schema.Optional(schema.String()),
			"max_tokens":  schema.Number(),
			"temperature": schema.Number(),
		},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			if inv.AI == nil {
				return nil, ErrNoAIClient
			}
			var s chatSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			prompt := firstString(inv.Inputs["prompt"], s.Prompt)
			if prompt == "" {
				return nil, errors.New("prompt is empty")
			}

			resp, err := inv.AI.Complete(ctx, ports.AIRequest{
				Kind:        ports.AIText,
				Model:       s.Model,
				System:      firstString(inv.Inputs["system"], s.System),
				Prompt:      prompt,
				MaxTokens:   s.MaxTokens,
				Temperature: s.Temperature,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"text": resp.Text,
				"usage": map[string]any{
					"model":             resp.Model,
					"prompt_tokens":     resp.Usage.PromptTokens,
					"completion_tokens": resp.Usage.CompletionTokens,
					"total_tokens":      resp.Usage.TotalTokens,
				},
			}, nil
		}),
	}
}

type imageSettings struct {
	Model  string `mapstructure:"model"`
	Prompt string `mapstructure:"prompt"`
	Size   string `mapstructure:"size"`
}

func aiImage() registry.Definition {
	return registry.Definition{
		Type:        "ai.image",
		Description: "Generates an image from a prompt",
		Category:    "ai",
		Inputs:      []string{"prompt"},
		Outputs:     []string{"image"},
		Defaults:    map[string]any{"size": "1024x1024"},
		Behavior: registry.BehaviorFunc(func(ctx context.Context, inv *registry.Invocation) (map[string]any, error) {
			if inv.AI == nil {
				return nil, ErrNoAIClient
			}
			var s imageSettings
			if err := decode(inv.Config, &s); err != nil {
				return nil, err
			}
			prompt := firstString(inv.Inputs["prompt"], s.Prompt)
			if prompt == "" {
				return nil, errors.New("prompt is empty")
			}

			resp, err := inv.AI.Complete(ctx, ports.AIRequest{
				Kind:   ports.AIImage,
				Model:  s.Model,
				Prompt: prompt,
				Size:   s.Size,
			})
			if err != nil {
				return nil, err
			}
			if resp.Image == nil {
				return nil, errors.New("model returned no image")
			}
			return map[string]any{"image": *resp.Image}, nil
		}),
	}
}
