package providers

import (
	"context"
	"errors"
)

// Names accepted by configuration.
const (
	Gemini = "gemini"
	OpenAI = "openai"
	Ollama = "ollama"
)

var (
	ErrMissingAPIKey   = errors.New("api key not configured")
	ErrUnknownProvider = errors.New("unknown generation provider")
	ErrEmptyResponse   = errors.New("provider returned no text")
)

// Config represents the configuration for a single generation request
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// Provider defines the interface for an LLM provider
type Provider interface {
	Name() string
	Generate(ctx context.Context, config Config) (string, error)
}
