package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const ocrPrompt = `You are performing OCR (Optical Character Recognition) on a photographed or scanned document.

Your task is to extract ALL visible text from the image exactly as it appears, preserving:
- Line breaks
- Capitalization
- Punctuation
- Order of text elements

INSTRUCTIONS:
1. Read the image carefully from top to bottom
2. Transcribe every piece of visible text
3. Do not add any interpretation, commentary, or explanations
4. If text is unclear, transcribe what you can see and skip what you cannot

OUTPUT FORMAT:
Provide ONLY the extracted text. Do not include phrases like "Here is the text:" or "The image contains:".`

// OpenAIVision transcribes images with an OpenAI-compatible vision model.
type OpenAIVision struct {
	client *openai.Client
	model  string
}

// NewOpenAIVision builds an engine around a go-openai client. baseURL may be
// empty to use the public endpoint.
func NewOpenAIVision(apiKey, baseURL, model string) *OpenAIVision {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIVision{client: openai.NewClientWithConfig(cfg), model: model}
}

func (e *OpenAIVision) Name() string { return EngineOpenAI }

func (e *OpenAIVision) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: ocrPrompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: "data:" + http.DetectContentType(image) + ";base64," + base64.StdEncoding.EncodeToString(image),
						},
					},
				},
			},
		},
		MaxTokens:   2000,
		Temperature: 0,
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API for OCR: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no OCR response from OpenAI")
	}

	text := resp.Choices[0].Message.Content
	slog.Info("Extracted OCR text", "engine", EngineOpenAI, "model", e.model, "length", len(text))
	return text, nil
}

// OllamaVision transcribes images with a vision model served by Ollama.
type OllamaVision struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaVision(baseURL, model string) *OllamaVision {
	return &OllamaVision{baseURL: baseURL, model: model, httpClient: &http.Client{}}
}

func (e *OllamaVision) Name() string { return EngineOllama }

func (e *OllamaVision) Recognize(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}

	requestBody := map[string]interface{}{
		"model":  e.model,
		"prompt": ocrPrompt,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.0,
		},
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal OCR request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/generate", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create OCR request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama API for OCR: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama OCR API returned status %d: %s", resp.StatusCode, string(body))
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode Ollama OCR response: %w", err)
	}

	slog.Info("Extracted OCR text", "engine", EngineOllama, "model", e.model, "length", len(ollamaResp.Response))
	return ollamaResp.Response, nil
}
