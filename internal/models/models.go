package models

import "time"

// Role identifies who authored a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks whether a user message got a reply
type MessageStatus string

const (
	StatusPending  MessageStatus = "pending"
	StatusAnswered MessageStatus = "answered"
	StatusFailed   MessageStatus = "failed"
)

// ChatMessage is one entry of a session's chat log
type ChatMessage struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// ImageItem describes an image held by a session's intake
type ImageItem struct {
	MIMEType    string `json:"mime_type"`
	ImageWidth  int    `json:"image_width"`
	ImageHeight int    `json:"image_height"`
	DataURL     string `json:"data_url,omitempty"`
}

// SessionView is the JSON shape of a session returned by the API
type SessionView struct {
	ID            string        `json:"id"`
	ExtractedText string        `json:"extracted_text"`
	Summary       string        `json:"summary"`
	Answer        string        `json:"answer"`
	SummaryError  string        `json:"summary_error,omitempty"`
	AnswerError   string        `json:"answer_error,omitempty"`
	Image         *ImageItem    `json:"image,omitempty"`
	Cropped       *ImageItem    `json:"cropped,omitempty"`
	Messages      []ChatMessage `json:"messages"`
	CreatedAt     time.Time     `json:"created_at"`
}
