package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract runs the local Tesseract engine through gosseract.
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract constructs a Tesseract engine for the given language codes.
func NewTesseract(languages []string) *Tesseract {
	return &Tesseract{languages: languages, clientFactory: gosseract.NewClient}
}

func (e *Tesseract) Name() string { return EngineTesseract }

// Recognize performs OCR on a single image. Tesseract cannot be interrupted
// mid-page, so ctx is only checked before starting.
func (e *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}

	slog.Info("Extracted OCR text", "engine", EngineTesseract, "length", len(text))
	return text, nil
}
