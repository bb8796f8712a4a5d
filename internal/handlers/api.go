package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/extractify-ai/extractify/internal/format"
	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/models"
	"github.com/extractify-ai/extractify/internal/session"
)

type outcomeResponse struct {
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Error    string `json:"error,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
}

type chatResponse struct {
	Message  models.ChatMessage   `json:"message"`
	Messages []models.ChatMessage `json:"messages"`
	Error    string               `json:"error,omitempty"`
}

// apiRequireText answers 409 with a redirect hint when nothing has been
// extracted yet.
func (h *Handler) apiRequireText(w http.ResponseWriter, sess *session.Session) bool {
	if sess.State.ExtractedText() != "" {
		return true
	}
	h.writeJSON(w, http.StatusConflict, map[string]string{
		"error":    generation.ErrNoText.Error(),
		"redirect": "/",
	})
	return false
}

// HandleAPISession returns the session on GET and discards it on DELETE.
func (h *Handler) HandleAPISession(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	sess := h.session(w, r)

	switch r.Method {
	case http.MethodGet:
		h.writeJSON(w, http.StatusOK, sess.View(r.URL.Query().Get("images") == "1"))
	case http.MethodDelete:
		h.sessionStore.Delete(sess.ID)
		http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1})
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAPIExtract runs OCR on the cropped region.
func (h *Handler) HandleAPIExtract(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	text, err := h.service.ExtractText(r.Context(), sess)
	if err != nil {
		h.writeError(w, err.Error(), statusFor(err))
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"extracted_text": text,
		"next":           "/summary",
	})
}

func (h *Handler) HandleAPISummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sess := h.session(w, r)
	if !h.apiRequireText(w, sess) {
		return
	}
	h.writeOutcome(w, h.service.Summary(r.Context(), sess.State))
}

func (h *Handler) HandleAPIRegenerate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)
	if !h.apiRequireText(w, sess) {
		return
	}
	h.writeOutcome(w, h.service.RegenerateSummary(r.Context(), sess.State))
}

func (h *Handler) HandleAPIAnswer(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	sess := h.session(w, r)
	if !h.apiRequireText(w, sess) {
		return
	}
	h.writeOutcome(w, h.service.Answer(r.Context(), sess.State))
}

func (h *Handler) writeOutcome(w http.ResponseWriter, out generation.Outcome) {
	resp := outcomeResponse{
		Text:     out.Text,
		HTML:     string(format.HTML(out.Text)),
		Fallback: out.Fallback,
		Pending:  out.Pending,
	}
	code := http.StatusOK
	switch {
	case out.Pending:
		code = http.StatusAccepted
	case out.Err != nil:
		resp.Error = out.Err.Error()
		if !out.Fallback {
			code = statusFor(out.Err)
		}
	}
	h.writeJSON(w, code, resp)
}

// HandleAPIChat lists messages on GET, sends one on POST and clears the log
// on DELETE.
func (h *Handler) HandleAPIChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	sess := h.session(w, r)

	switch r.Method {
	case http.MethodGet:
		if !h.apiRequireText(w, sess) {
			return
		}
		h.writeJSON(w, http.StatusOK, chatResponse{Messages: nonNil(sess.State.Messages())})
	case http.MethodPost:
		if !h.apiRequireText(w, sess) {
			return
		}
		var request struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
			return
		}

		msg, err := h.service.Send(r.Context(), sess.State, request.Message)
		resp := chatResponse{Message: msg, Messages: nonNil(sess.State.Messages())}
		var stageErr *generation.StageError
		switch {
		case err == nil:
			h.writeJSON(w, http.StatusOK, resp)
		case errors.As(err, &stageErr):
			resp.Error = err.Error()
			h.writeJSON(w, statusFor(err), resp)
		default:
			h.writeError(w, err.Error(), statusFor(err))
		}
	case http.MethodDelete:
		h.service.ClearChat(sess.State)
		w.WriteHeader(http.StatusNoContent)
	}
}

func nonNil(messages []models.ChatMessage) []models.ChatMessage {
	if messages == nil {
		return []models.ChatMessage{}
	}
	return messages
}
