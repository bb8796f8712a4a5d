// Package app wires configuration into the OCR engine, generation provider
// and services shared by the CLI commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/extractify-ai/extractify/internal/config"
	"github.com/extractify-ai/extractify/internal/gemini"
	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/ocr"
	"github.com/extractify-ai/extractify/internal/ollama"
	"github.com/extractify-ai/extractify/internal/openai"
	"github.com/extractify-ai/extractify/internal/providers"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config   config.Config
	Engine   ocr.Engine
	Provider providers.Provider
	Service  *generation.Service
	Fetcher  *imaging.Fetcher
}

// New builds every component described by cfg.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	engine, err := NewEngine(ctx, cfg)
	if err != nil {
		return nil, err
	}
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("Pipeline configured", "ocr_engine", engine.Name(), "provider", provider.Name(), "model", cfg.Model)
	return &App{
		Config:   cfg,
		Engine:   engine,
		Provider: provider,
		Service: generation.NewService(engine, provider, generation.Options{
			Model:             cfg.Model,
			Temperature:       cfg.Temperature,
			GenerationTimeout: cfg.GenerationTimeout,
			OCRTimeout:        cfg.OCRTimeout,
		}),
		Fetcher: imaging.NewFetcher(cfg.MaxUploadBytes),
	}, nil
}

// Close releases engine resources such as gRPC connections.
func (a *App) Close() error {
	if c, ok := a.Engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewProvider returns the generation provider named by cfg.Provider.
func NewProvider(cfg config.Config) (providers.Provider, error) {
	switch cfg.Provider {
	case providers.Gemini:
		return gemini.New(cfg.GeminiAPIKey), nil
	case providers.OpenAI:
		return openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case providers.Ollama:
		return ollama.New(cfg.OllamaURL), nil
	default:
		return nil, fmt.Errorf("%w: %s", providers.ErrUnknownProvider, cfg.Provider)
	}
}

// NewEngine returns the OCR engine named by cfg.OCREngine.
func NewEngine(ctx context.Context, cfg config.Config) (ocr.Engine, error) {
	switch cfg.OCREngine {
	case ocr.EngineTesseract:
		return ocr.NewTesseract(cfg.OCRLanguages), nil
	case ocr.EngineVision:
		v, err := ocr.NewVision(ctx, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, err
		}
		return v, nil
	case ocr.EngineOpenAI:
		return ocr.NewOpenAIVision(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OCRModel), nil
	case ocr.EngineOllama:
		return ocr.NewOllamaVision(cfg.OllamaURL, cfg.OCRModel), nil
	default:
		return nil, fmt.Errorf("%w: %s", ocr.ErrUnknownEngine, cfg.OCREngine)
	}
}
