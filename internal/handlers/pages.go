package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/extractify-ai/extractify/internal/format"
	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/models"
	"github.com/extractify-ai/extractify/internal/session"
)

type pageData struct {
	Title         string
	Active        string
	Error         string
	Pending       bool
	Fallback      bool
	Image         *models.ImageItem
	Cropped       *models.ImageItem
	ImageURL      template.URL
	CropURL       template.URL
	ExtractedText string
	Content       template.HTML
	Messages      []messageView
}

type messageView struct {
	models.ChatMessage
	HTML template.HTML
}

func (h *Handler) render(w http.ResponseWriter, name string, code int, data pageData) {
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Unable to render page", "page", name, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("Unable to write page", "page", name, "err", err)
	}
}

// requireText sends the browser back to the intake view when nothing has
// been extracted yet.
func requireText(w http.ResponseWriter, r *http.Request, sess *session.Session) bool {
	if sess.State.ExtractedText() != "" {
		return true
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return false
}

// HandleIntake renders the image selection and crop view. A ?image= query
// parameter fetches that URL into the session first.
func (h *Handler) HandleIntake(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	sess := h.session(w, r)

	if imageURL := r.URL.Query().Get("image"); imageURL != "" {
		img, err := h.fetcher.Fetch(r.Context(), imageURL)
		if err != nil {
			slog.Error("Failed to fetch image from URL", "url", imageURL, "error", err)
			h.renderIntake(w, sess, "Failed to process image URL: "+err.Error(), statusFor(err))
			return
		}
		sess.SelectImage(img)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	h.renderIntake(w, sess, "", http.StatusOK)
}

func (h *Handler) renderIntake(w http.ResponseWriter, sess *session.Session, errMsg string, code int) {
	data := pageData{Title: "Image", Active: "intake", Error: errMsg}
	if img := sess.Selected(); img != nil {
		data.Image = &models.ImageItem{MIMEType: img.MIMEType, ImageWidth: img.Width, ImageHeight: img.Height}
		data.ImageURL = template.URL(img.DataURL())
	}
	if crop := sess.Cropped(); crop != nil {
		data.Cropped = &models.ImageItem{MIMEType: crop.MIMEType, ImageWidth: crop.Width, ImageHeight: crop.Height}
		data.CropURL = template.URL(crop.DataURL())
	}
	h.render(w, "intake", code, data)
}

// HandleExtract runs OCR on the cropped region and moves on to the summary.
func (h *Handler) HandleExtract(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)

	if _, err := h.service.ExtractText(r.Context(), sess); err != nil {
		h.renderIntake(w, sess, "Text extraction failed: "+err.Error(), statusFor(err))
		return
	}
	http.Redirect(w, r, "/summary", http.StatusSeeOther)
}

// HandleSummary shows the extracted text and its summary, generating the
// summary on first visit.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	sess := h.session(w, r)
	if !requireText(w, r, sess) {
		return
	}

	out := h.service.Summary(r.Context(), sess.State)
	h.renderOutcome(w, r, sess, "summary", "Summary", out)
}

// HandleRegenerate requests a fresh summary and shows the summary view.
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)
	if !requireText(w, r, sess) {
		return
	}

	h.service.RegenerateSummary(r.Context(), sess.State)
	http.Redirect(w, r, "/summary", http.StatusSeeOther)
}

// HandleAnswer shows the analysis of the extracted text.
func (h *Handler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	sess := h.session(w, r)
	if !requireText(w, r, sess) {
		return
	}

	out := h.service.Answer(r.Context(), sess.State)
	h.renderOutcome(w, r, sess, "answer", "Analysis", out)
}

func (h *Handler) renderOutcome(w http.ResponseWriter, r *http.Request, sess *session.Session, name, title string, out generation.Outcome) {
	if errors.Is(out.Err, generation.ErrNoText) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := pageData{
		Title:         title,
		Active:        name,
		Pending:       out.Pending,
		Fallback:      out.Fallback,
		ExtractedText: sess.State.ExtractedText(),
		Content:       format.HTML(out.Text),
	}
	if out.Err != nil && !out.Fallback {
		data.Error = out.Err.Error()
	}
	h.render(w, name, http.StatusOK, data)
}

// HandleChat shows the chat log on GET and sends a message on POST.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet, http.MethodHead, http.MethodPost) {
		return
	}
	sess := h.session(w, r)
	if !requireText(w, r, sess) {
		return
	}

	if r.Method == http.MethodPost {
		_, err := h.service.Send(r.Context(), sess.State, r.FormValue("message"))
		var stageErr *generation.StageError
		if err != nil && !errors.Is(err, generation.ErrEmptyMessage) && !errors.As(err, &stageErr) {
			h.renderChat(w, sess, err.Error(), statusFor(err))
			return
		}
		http.Redirect(w, r, "/chat", http.StatusSeeOther)
		return
	}

	h.renderChat(w, sess, "", http.StatusOK)
}

// HandleChatClear empties the chat log.
func (h *Handler) HandleChatClear(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	sess := h.session(w, r)
	h.service.ClearChat(sess.State)
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

func (h *Handler) renderChat(w http.ResponseWriter, sess *session.Session, errMsg string, code int) {
	messages := sess.State.Messages()
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, messageView{ChatMessage: m, HTML: chatHTML(m)})
	}
	h.render(w, "chat", code, pageData{
		Title:    "Chat",
		Active:   "chat",
		Error:    errMsg,
		Messages: views,
	})
}

// chatHTML formats assistant replies; user input is shown as escaped text.
func chatHTML(m models.ChatMessage) template.HTML {
	if m.Role == models.RoleAssistant {
		return format.HTML(m.Content)
	}
	return template.HTML(strings.ReplaceAll(template.HTMLEscapeString(m.Content), "\n", "<br>"))
}
