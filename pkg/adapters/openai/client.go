// Package openai implements ports.AIClient on top of the OpenAI API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/nodeweave/pkg/domain"
	"github.com/aretw0/nodeweave/pkg/ports"
	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultChatModel  = openai.GPT3Dot5Turbo
	DefaultImageModel = openai.CreateImageModelDallE3
	DefaultImageSize  = openai.CreateImageSize1024x1024
	DefaultTimeout    = 60 * time.Second
)

// Client wraps the OpenAI client with the defaults AI nodes fall back to.
type Client struct {
	client         *openai.Client
	chatModel      string
	imageModel     string
	requestTimeout time.Duration
}

// Option configures the Client.
type Option func(*settings)

type settings struct {
	baseURL    string
	chatModel  string
	imageModel string
	timeout    time.Duration
}

// WithBaseURL points the client at an OpenAI compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// WithChatModel sets the model used when a node does not name one.
func WithChatModel(model string) Option {
	return func(s *settings) {
		s.chatModel = model
	}
}

// WithImageModel sets the image model used when a node does not name one.
func WithImageModel(model string) Option {
	return func(s *settings) {
		s.imageModel = model
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.timeout = d
	}
}

// NewClient creates a new OpenAI client wrapper.
func NewClient(apiKey string, opts ...Option) *Client {
	s := settings{
		chatModel:  DefaultChatModel,
		imageModel: DefaultImageModel,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		chatModel:      s.chatModel,
		imageModel:     s.imageModel,
		requestTimeout: s.timeout,
	}
}

var _ ports.AIClient = (*Client)(nil)

// Complete dispatches on the request kind.
func (c *Client) Complete(ctx context.Context, req ports.AIRequest) (ports.AIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	switch req.Kind {
	case ports.AIText, "":
		return c.chat(ctx, req)
	case ports.AIImage:
		return c.image(ctx, req)
	default:
		return ports.AIResponse{}, fmt.Errorf("unsupported AI request kind: %s", req.Kind)
	}
}

func (c *Client) chat(ctx context.Context, req ports.AIRequest) (ports.AIResponse, error) {
	model := req.Model
	if model == "" {
		model = c.chatModel
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ports.AIResponse{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ports.AIResponse{}, errors.New("no choices returned from API")
	}

	return ports.AIResponse{
		Model: model,
		Text:  resp.Choices[0].Message.Content,
		Usage: ports.AIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) image(ctx context.Context, req ports.AIRequest) (ports.AIResponse, error) {
	model := req.Model
	if model == "" {
		model = c.imageModel
	}
	size := req.Size
	if size == "" {
		size = DefaultImageSize
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          model,
		Size:           size,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return ports.AIResponse{}, fmt.Errorf("failed to create image: %w", err)
	}
	if len(resp.Data) == 0 {
		return ports.AIResponse{}, errors.New("no images returned from API")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return ports.AIResponse{}, fmt.Errorf("decode image: %w", err)
	}
	return ports.AIResponse{
		Model: model,
		Image: &domain.Blob{MediaType: mimetype.Detect(data).String(), Data: data},
	}, nil
}
