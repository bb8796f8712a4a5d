// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over the file; API keys are only
// read from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/ocr"
	"github.com/extractify-ai/extractify/internal/ollama"
	"github.com/extractify-ai/extractify/internal/providers"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`

	OCREngine    string   `yaml:"ocr_engine"`
	OCRModel     string   `yaml:"ocr_model"`
	OCRLanguages []string `yaml:"ocr_languages"`

	GeminiAPIKey          string `yaml:"-"`
	OpenAIAPIKey          string `yaml:"-"`
	GoogleCredentialsFile string `yaml:"-"`
	OpenAIBaseURL         string `yaml:"openai_base_url"`
	OllamaURL             string `yaml:"ollama_url"`

	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	GenerationTimeout  time.Duration `yaml:"generation_timeout"`
	OCRTimeout         time.Duration `yaml:"ocr_timeout"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Port:               "8888",
		LogLevel:           "info",
		Provider:           providers.Gemini,
		OCREngine:          ocr.EngineTesseract,
		OCRLanguages:       []string{"eng"},
		OllamaURL:          ollama.DefaultURL,
		MaxUploadBytes:     imaging.DefaultMaxBytes,
		GenerationTimeout:  2 * time.Minute,
		OCRTimeout:         2 * time.Minute,
		SessionIdleTimeout: 24 * time.Hour,
	}
}

// Load builds a Config from defaults, the YAML file at path (if any) and the
// environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Debug("Loaded config file", "path", path)
	}

	envErr := cfg.applyEnv()
	cfg.fillModels()

	if err := errors.Join(envErr, cfg.Validate()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Provider = getEnv("GENERATION_PROVIDER", c.Provider)
	c.Model = getEnv("GENERATION_MODEL", c.Model)
	c.OCREngine = getEnv("OCR_ENGINE", c.OCREngine)
	c.OCRModel = getEnv("OCR_MODEL", c.OCRModel)
	c.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OllamaURL = getEnv("OLLAMA_URL", getEnv("OLLAMA_HOST", c.OllamaURL))

	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.GoogleCredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")

	if langs := os.Getenv("OCR_LANGUAGES"); langs != "" {
		c.OCRLanguages = splitList(langs)
	}

	var errs []error
	if v := os.Getenv("GENERATION_TEMPERATURE"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("GENERATION_TEMPERATURE: %w", err))
		}
		c.Temperature = t
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES: %w", err))
		}
		c.MaxUploadBytes = n
	}
	for key, dst := range map[string]*time.Duration{
		"GENERATION_TIMEOUT":   &c.GenerationTimeout,
		"OCR_TIMEOUT":          &c.OCRTimeout,
		"SESSION_IDLE_TIMEOUT": &c.SessionIdleTimeout,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		*dst = d
	}
	return errors.Join(errs...)
}

// fillModels picks a default model for the chosen provider and OCR engine.
func (c *Config) fillModels() {
	if c.Model == "" {
		c.Model = DefaultModel(c.Provider)
	}
	if c.OCRModel == "" {
		switch c.OCREngine {
		case ocr.EngineOpenAI:
			c.OCRModel = "gpt-4o"
		case ocr.EngineOllama:
			c.OCRModel = "mistral-small3.2:24b"
		}
	}
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case providers.Gemini:
		return "gemini-2.0-flash"
	case providers.OpenAI:
		return "gpt-4o-mini"
	case providers.Ollama:
		return "mistral-small3.2:24b"
	default:
		return ""
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{providers.Gemini, providers.OpenAI, providers.Ollama}, c.Provider) {
		errs = append(errs, fmt.Errorf("%w: %q", providers.ErrUnknownProvider, c.Provider))
	}
	if !slices.Contains(ocr.Engines, c.OCREngine) {
		errs = append(errs, fmt.Errorf("%w: %q", ocr.ErrUnknownEngine, c.OCREngine))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload bytes must be positive"))
	}
	if c.GenerationTimeout <= 0 || c.OCRTimeout <= 0 || c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
