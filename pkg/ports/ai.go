package ports

import (
	"context"

	"github.com/aretw0/nodeweave/pkg/domain"
)

// AIKind selects the modality of an AI request.
type AIKind string

const (
	AIText  AIKind = "text"
	AIImage AIKind = "image"
)

// AIRequest is the opaque request handed to an AIClient by AI node types.
type AIRequest struct {
	Kind        AIKind  `json:"kind"`
	Model       string  `json:"model,omitempty"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	// Size is the requested image size, e.g. "1024x1024".
	Size string `json:"size,omitempty"`
}

// AIUsage reports token consumption when the provider exposes it.
type AIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AIResponse carries either text or an image.
type AIResponse struct {
	Model string       `json:"model"`
	Text  string       `json:"text,omitempty"`
	Image *domain.Blob `json:"image,omitempty"`
	Usage AIUsage      `json:"usage"`
}

// AIClient is the capability AI-typed nodes call. The wire protocol lives in adapters.
type AIClient interface {
	Complete(ctx context.Context, req AIRequest) (AIResponse, error)
}
