package generation

import (
	"fmt"

	"github.com/extractify-ai/extractify/internal/session"
)

// SummaryFallback is stored as the summary when generation fails.
const SummaryFallback = "Unable to generate summary. Please try again."

const (
	summaryPrompt = "Summarize this text, make it structured and handle lists: %s"
	answerPrompt  = "Analyze this text and provide insights. Use markdown formatting for structure, including lists and paragraphs: %s"
	chatPrompt    = "Context: %s\n\nQuestion: %s"
)

func buildPrompt(field session.Field, text string) string {
	if field == session.FieldAnswer {
		return fmt.Sprintf(answerPrompt, text)
	}
	return fmt.Sprintf(summaryPrompt, text)
}

func buildChatPrompt(text, question string) string {
	return fmt.Sprintf(chatPrompt, text, question)
}
