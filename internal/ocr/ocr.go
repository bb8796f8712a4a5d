// Package ocr recognizes text in cropped images. Several engines are
// available; all of them return raw text which callers pass through Sanitize
// before storing it.
package ocr

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

var (
	ErrEmptyImage    = errors.New("no image data to recognize")
	ErrUnknownEngine = errors.New("unknown ocr engine")
)

// Engine recognizes text in an encoded image
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Engine names accepted by configuration.
const (
	EngineTesseract = "tesseract"
	EngineVision    = "vision"
	EngineOpenAI    = "openai"
	EngineOllama    = "ollama"
)

// Engines lists the recognized engine names.
var Engines = []string{EngineTesseract, EngineVision, EngineOpenAI, EngineOllama}

const punctuation = ".,!?-"

// Sanitize keeps ASCII word characters, whitespace and basic punctuation,
// drops everything else and trims the result.
func Sanitize(raw string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) || strings.ContainsRune(punctuation, r) {
			return r
		}
		return -1
	}, raw))
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
