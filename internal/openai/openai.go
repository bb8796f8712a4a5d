package openai

import (
	"context"
	"fmt"

	"github.com/extractify-ai/extractify/internal/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI is a provider for OpenAI and compatible chat completion endpoints
type OpenAI struct {
	client *goopenai.Client
	apiKey string
}

// New returns a new OpenAI provider. baseURL may be empty for the public API.
func New(apiKey, baseURL string) *OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(cfg), apiKey: apiKey}
}

func (o *OpenAI) Name() string { return providers.OpenAI }

// Generate sends the prompt as a single user message
func (o *OpenAI) Generate(ctx context.Context, config providers.Config) (string, error) {
	if o.apiKey == "" {
		return "", fmt.Errorf("openai: %w", providers.ErrMissingAPIKey)
	}

	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: config.Model,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: config.Prompt,
			},
		},
		Temperature: float32(config.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}
	if resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: %w", providers.ErrEmptyResponse)
	}

	return resp.Choices[0].Message.Content, nil
}
