package handlers

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/session"
	"github.com/extractify-ai/extractify/internal/storage"
	"github.com/google/uuid"
)

// CookieName holds the session id.
const CookieName = "extractify_session"

//go:embed templates/*.html
var templateFS embed.FS

var pages = parsePages("intake", "summary", "answer", "chat")

func parsePages(names ...string) map[string]*template.Template {
	layout := template.Must(template.ParseFS(templateFS, "templates/layout.html"))
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.Must(layout.Clone()).ParseFS(templateFS, "templates/"+name+".html"))
	}
	return out
}

type Handler struct {
	sessionStore   *storage.SessionStore
	service        *generation.Service
	fetcher        *imaging.Fetcher
	maxUploadBytes int64
}

func New(store *storage.SessionStore, service *generation.Service, fetcher *imaging.Fetcher, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = imaging.DefaultMaxBytes
	}
	return &Handler{
		sessionStore:   store,
		service:        service,
		fetcher:        fetcher,
		maxUploadBytes: maxUploadBytes,
	}
}

// Register adds every route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/", h.HandleIntake)
	mux.HandleFunc("/upload", h.HandleUpload)
	mux.HandleFunc("/crop", h.HandleCrop)
	mux.HandleFunc("/extract", h.HandleExtract)
	mux.HandleFunc("/summary", h.HandleSummary)
	mux.HandleFunc("/summary/regenerate", h.HandleRegenerate)
	mux.HandleFunc("/answer", h.HandleAnswer)
	mux.HandleFunc("/chat", h.HandleChat)
	mux.HandleFunc("/chat/clear", h.HandleChatClear)

	mux.HandleFunc("/api/session", h.HandleAPISession)
	mux.HandleFunc("/api/image", h.HandleAPIImage)
	mux.HandleFunc("/api/crop", h.HandleAPICrop)
	mux.HandleFunc("/api/extract", h.HandleAPIExtract)
	mux.HandleFunc("/api/summary", h.HandleAPISummary)
	mux.HandleFunc("/api/summary/regenerate", h.HandleAPIRegenerate)
	mux.HandleFunc("/api/answer", h.HandleAPIAnswer)
	mux.HandleFunc("/api/chat", h.HandleAPIChat)

	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	if code >= http.StatusInternalServerError {
		slog.Error(message)
	} else {
		slog.Warn(message)
	}
	h.writeJSON(w, code, map[string]string{"error": message})
}

// Session helpers

// session returns the caller's session, creating one and setting the cookie
// when the request carries no known id.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	if c, err := r.Cookie(CookieName); err == nil {
		if sess, ok := h.sessionStore.Get(c.Value); ok {
			sess.Touch(time.Now())
			return sess
		}
	}

	sess := session.New(uuid.NewString())
	h.sessionStore.Set(sess.ID, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	slog.Info("Session created", "session_id", sess.ID)
	return sess
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	var stageErr *generation.StageError
	switch {
	case errors.Is(err, imaging.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, generation.ErrEmptyMessage),
		errors.Is(err, errNoUpload),
		errors.Is(err, imaging.ErrNotImage),
		errors.Is(err, imaging.ErrEmptyRegion),
		errors.Is(err, imaging.ErrUnsupportedURL):
		return http.StatusBadRequest
	case errors.Is(err, generation.ErrNoText),
		errors.Is(err, generation.ErrStale),
		errors.Is(err, session.ErrNoImage),
		errors.Is(err, session.ErrNoCrop),
		errors.Is(err, session.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, generation.ErrEmptyText):
		return http.StatusUnprocessableEntity
	case errors.As(err, &stageErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
