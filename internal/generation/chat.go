package generation

import (
	"context"
	"strings"
	"time"

	"github.com/extractify-ai/extractify/internal/models"
	"github.com/extractify-ai/extractify/internal/session"
	"github.com/google/uuid"
)

// Send appends input to the chat log and asks the provider about it. On
// success the assistant reply is appended and returned. On failure the user
// message is marked failed, no reply is added, and the failed user message is
// returned together with a *StageError.
//
// Sends on the same state run one at a time so replies keep their order.
func (s *Service) Send(ctx context.Context, st *session.State, input string) (models.ChatMessage, error) {
	if strings.TrimSpace(input) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	release := st.LockTurn()
	defer release()

	text, epoch := st.Source()
	if text == "" {
		return models.ChatMessage{}, ErrNoText
	}

	user := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleUser,
		Content:   input,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	if !st.AppendMessage(epoch, user) {
		return models.ChatMessage{}, ErrStale
	}

	reply, err := s.call(ctx, buildChatPrompt(text, input))
	if err != nil {
		st.UpdateMessage(epoch, user.ID, func(m *models.ChatMessage) {
			m.Status = models.StatusFailed
			m.Error = err.Error()
		})
		user.Status = models.StatusFailed
		user.Error = err.Error()
		return user, &StageError{Stage: StageChat, Err: err}
	}

	st.UpdateMessage(epoch, user.ID, func(m *models.ChatMessage) {
		m.Status = models.StatusAnswered
	})
	assistant := models.ChatMessage{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if !st.AppendMessage(epoch, assistant) {
		return models.ChatMessage{}, &StageError{Stage: StageChat, Err: ErrStale}
	}
	return assistant, nil
}

// ClearChat empties the chat log. It waits for a running send to finish so a
// reply is never left without its question.
func (s *Service) ClearChat(st *session.State) {
	release := st.LockTurn()
	defer release()
	st.ClearMessages()
}
