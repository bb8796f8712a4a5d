package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/extractify-ai/extractify/internal/ocr"
	"github.com/extractify-ai/extractify/internal/providers"
)

// clearEnv blanks every variable Load reads so the host environment does not
// leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "GENERATION_PROVIDER", "GENERATION_MODEL", "GENERATION_TEMPERATURE",
		"OCR_ENGINE", "OCR_MODEL", "OCR_LANGUAGES", "OPENAI_BASE_URL", "OLLAMA_URL", "OLLAMA_HOST",
		"GEMINI_API_KEY", "OPENAI_API_KEY", "GOOGLE_APPLICATION_CREDENTIALS",
		"MAX_UPLOAD_BYTES", "GENERATION_TIMEOUT", "OCR_TIMEOUT", "SESSION_IDLE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != providers.Gemini {
		t.Errorf("Expected gemini, got %s", cfg.Provider)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Errorf("Expected default gemini model, got %s", cfg.Model)
	}
	if cfg.OCREngine != ocr.EngineTesseract {
		t.Errorf("Expected tesseract, got %s", cfg.OCREngine)
	}
	if cfg.Port != "8888" {
		t.Errorf("Expected 8888, got %s", cfg.Port)
	}
	if cfg.GeminiAPIKey != "" {
		t.Error("Expected no embedded api key")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "extractify.yaml")
	content := `port: "9000"
provider: ollama
ocr_engine: ollama
ocr_languages: [eng, deu]
generation_timeout: 45s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "7000")
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("OCR_LANGUAGES", "eng, fra")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "7000" {
		t.Errorf("Expected env to win, got %s", cfg.Port)
	}
	if cfg.Provider != providers.Ollama {
		t.Errorf("Expected ollama from file, got %s", cfg.Provider)
	}
	if cfg.GenerationTimeout != 45*time.Second {
		t.Errorf("Expected 45s, got %v", cfg.GenerationTimeout)
	}
	if cfg.OCRModel != "mistral-small3.2:24b" {
		t.Errorf("Expected default ollama OCR model, got %s", cfg.OCRModel)
	}
	if len(cfg.OCRLanguages) != 2 || cfg.OCRLanguages[1] != "fra" {
		t.Errorf("Expected [eng fra], got %v", cfg.OCRLanguages)
	}
	if cfg.GeminiAPIKey != "from-env" {
		t.Errorf("Expected key from env, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENERATION_PROVIDER", "bard")
	t.Setenv("OCR_ENGINE", "abbyy")
	t.Setenv("OCR_TIMEOUT", "soon")

	_, err := Load("")
	if err == nil {
		t.Fatal("Expected error")
	}
	if !errors.Is(err, providers.ErrUnknownProvider) {
		t.Errorf("Expected unknown provider error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Model = "m"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}

	cfg.OCREngine = "abbyy"
	if err := cfg.Validate(); !errors.Is(err, ocr.ErrUnknownEngine) {
		t.Errorf("Expected unknown engine error, got %v", err)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}
