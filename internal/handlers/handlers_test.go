package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/models"
	"github.com/extractify-ai/extractify/internal/providers"
	"github.com/extractify-ai/extractify/internal/storage"
)

type stubEngine struct{ text string }

func (e stubEngine) Name() string { return "stub" }

func (e stubEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	return e.text, nil
}

type stubProvider struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, config providers.Config) (string, error) {
	p.calls.Add(1)
	if p.fail.Load() {
		return "", errors.New("provider unavailable")
	}
	switch {
	case strings.HasPrefix(config.Prompt, "Summarize"):
		return "**Greeting**\n\nHello World", nil
	case strings.HasPrefix(config.Prompt, "Analyze"):
		return "- first point\n- second point", nil
	default:
		return "It greets the world", nil
	}
}

type testEnv struct {
	server   *httptest.Server
	provider *stubProvider
	store    *storage.SessionStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	provider := &stubProvider{}
	store := storage.New()
	svc := generation.NewService(stubEngine{text: "Hello World!@#"}, provider, generation.Options{Model: "stub"})
	h := New(store, svc, imaging.NewFetcher(0), 0)

	mux := http.NewServeMux()
	h.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testEnv{server: server, provider: provider, store: store}
}

func (e *testEnv) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 16))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(data)
	mw.Close()
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, c *http.Client, method, url, contentType string, body io.Reader) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

// prepare runs the intake through the JSON API until text is extracted.
func prepare(t *testing.T, env *testEnv, c *http.Client) {
	t.Helper()
	body, ct := multipartBody(t, "file", "page.png", testPNG(t))
	if resp, text := do(t, c, "POST", env.server.URL+"/api/image", ct, body); resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", resp.StatusCode, text)
	}
	if resp, text := do(t, c, "POST", env.server.URL+"/api/crop", "application/json", strings.NewReader(`{"full":true}`)); resp.StatusCode != http.StatusOK {
		t.Fatalf("crop: expected 200, got %d: %s", resp.StatusCode, text)
	}
	resp, text := do(t, c, "POST", env.server.URL+"/api/extract", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extract: expected 200, got %d: %s", resp.StatusCode, text)
	}
	var out map[string]string
	json.Unmarshal([]byte(text), &out)
	if out["extracted_text"] != "Hello World!" {
		t.Fatalf("Expected sanitized text, got %q", out["extracted_text"])
	}
}

func TestGateRedirectsWithoutText(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	for _, path := range []string{"/summary", "/answer", "/chat"} {
		t.Run(path, func(t *testing.T) {
			resp, _ := do(t, c, "GET", env.server.URL+path, "", nil)
			if resp.StatusCode != http.StatusSeeOther {
				t.Errorf("Expected 303, got %d", resp.StatusCode)
			}
			if loc := resp.Header.Get("Location"); loc != "/" {
				t.Errorf("Expected redirect to /, got %q", loc)
			}
		})
	}

	for _, path := range []string{"/api/summary", "/api/answer", "/api/chat"} {
		t.Run(path, func(t *testing.T) {
			resp, text := do(t, c, "GET", env.server.URL+path, "", nil)
			if resp.StatusCode != http.StatusConflict {
				t.Errorf("Expected 409, got %d", resp.StatusCode)
			}
			var out map[string]string
			json.Unmarshal([]byte(text), &out)
			if out["redirect"] != "/" {
				t.Errorf("Expected redirect hint, got %v", out)
			}
		})
	}

	if n := env.provider.calls.Load(); n != 0 {
		t.Errorf("Expected no provider calls, got %d", n)
	}
}

func TestEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	prepare(t, env, c)

	resp, body := do(t, c, "GET", env.server.URL+"/summary", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "<strong>Greeting</strong></p><p>Hello World") {
		t.Errorf("Expected formatted summary in page, got:\n%s", body)
	}
	if !strings.Contains(body, "Hello World!") {
		t.Error("Expected extracted text in page")
	}

	resp, text := do(t, c, "GET", env.server.URL+"/api/summary", "", nil)
	var out outcomeResponse
	json.Unmarshal([]byte(text), &out)
	if resp.StatusCode != http.StatusOK || out.Text != "**Greeting**\n\nHello World" {
		t.Errorf("Unexpected summary response %d: %s", resp.StatusCode, text)
	}
	if n := env.provider.calls.Load(); n != 1 {
		t.Errorf("Expected summary to be generated once, got %d calls", n)
	}

	resp, body = do(t, c, "GET", env.server.URL+"/answer", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "<ul><li>first point") {
		t.Errorf("Expected formatted analysis, got %d:\n%s", resp.StatusCode, body)
	}
}

func TestRegenerate(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	prepare(t, env, c)

	do(t, c, "GET", env.server.URL+"/api/summary", "", nil)
	resp, _ := do(t, c, "POST", env.server.URL+"/summary/regenerate", "", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/summary" {
		t.Errorf("Expected redirect to /summary, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
	if n := env.provider.calls.Load(); n != 2 {
		t.Errorf("Expected 2 provider calls, got %d", n)
	}
}

func TestSummaryFallback(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	prepare(t, env, c)
	env.provider.fail.Store(true)

	resp, text := do(t, c, "GET", env.server.URL+"/api/summary", "", nil)
	var out outcomeResponse
	json.Unmarshal([]byte(text), &out)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 with fallback, got %d", resp.StatusCode)
	}
	if !out.Fallback || out.Text != generation.SummaryFallback || out.Error == "" {
		t.Errorf("Unexpected fallback response: %+v", out)
	}

	resp, _ = do(t, c, "GET", env.server.URL+"/api/answer", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 for failed analysis, got %d", resp.StatusCode)
	}
}

func TestChatAPI(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	prepare(t, env, c)

	resp, _ := do(t, c, "POST", env.server.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"   "}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank message, got %d", resp.StatusCode)
	}
	if n := env.provider.calls.Load(); n != 0 {
		t.Errorf("Expected no provider calls, got %d", n)
	}

	resp, text := do(t, c, "POST", env.server.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"What does it say?"}`))
	var out chatResponse
	json.Unmarshal([]byte(text), &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, text)
	}
	if out.Message.Role != models.RoleAssistant || out.Message.Content != "It greets the world" {
		t.Errorf("Unexpected reply: %+v", out.Message)
	}
	if len(out.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(out.Messages))
	}

	env.provider.fail.Store(true)
	resp, text = do(t, c, "POST", env.server.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"again?"}`))
	out = chatResponse{}
	json.Unmarshal([]byte(text), &out)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", resp.StatusCode)
	}
	if out.Message.Status != models.StatusFailed || len(out.Messages) != 3 {
		t.Errorf("Expected failed user message and no reply, got %+v", out)
	}

	resp, _ = do(t, c, "DELETE", env.server.URL+"/api/chat", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	_, text = do(t, c, "GET", env.server.URL+"/api/chat", "", nil)
	out = chatResponse{}
	json.Unmarshal([]byte(text), &out)
	if len(out.Messages) != 0 {
		t.Errorf("Expected empty log after clear, got %d", len(out.Messages))
	}
}

func TestHTMLFlow(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	body, ct := multipartBody(t, "file", "page.png", testPNG(t))
	resp, _ := do(t, c, "POST", env.server.URL+"/upload", ct, body)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("Expected 303 after upload, got %d", resp.StatusCode)
	}

	_, page := do(t, c, "GET", env.server.URL+"/", "", nil)
	if !strings.Contains(page, "data:image/png;base64,") {
		t.Error("Expected image preview on intake page")
	}

	form := url.Values{"x": {"2"}, "y": {"2"}, "width": {"10"}, "height": {"10"}}
	resp, _ = do(t, c, "POST", env.server.URL+"/crop", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("Expected 303 after crop, got %d", resp.StatusCode)
	}

	resp, _ = do(t, c, "POST", env.server.URL+"/extract", "", nil)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/summary" {
		t.Fatalf("Expected redirect to /summary, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	chat := url.Values{"message": {"hello?"}}
	resp, _ = do(t, c, "POST", env.server.URL+"/chat", "application/x-www-form-urlencoded", strings.NewReader(chat.Encode()))
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("Expected 303 after chat, got %d", resp.StatusCode)
	}
	_, page = do(t, c, "GET", env.server.URL+"/chat", "", nil)
	if !strings.Contains(page, "hello?") || !strings.Contains(page, "It greets the world") {
		t.Errorf("Expected chat exchange on page, got:\n%s", page)
	}
}

func TestExtractWithoutCrop(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	resp, _ := do(t, c, "POST", env.server.URL+"/api/extract", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
}

func TestUploadRejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)

	body, ct := multipartBody(t, "file", "notes.txt", []byte("just text"))
	resp, _ := do(t, c, "POST", env.server.URL+"/api/image", ct, body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	first := env.client(t)
	second := env.client(t)
	prepare(t, env, first)

	resp, _ := do(t, second, "GET", env.server.URL+"/summary", "", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("Expected second visitor to be redirected, got %d", resp.StatusCode)
	}
	if env.store.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", env.store.Len())
	}
}

func TestSelectingNewImageResetsText(t *testing.T) {
	env := newTestEnv(t)
	c := env.client(t)
	prepare(t, env, c)

	body, ct := multipartBody(t, "file", "other.png", testPNG(t))
	do(t, c, "POST", env.server.URL+"/api/image", ct, body)

	resp, _ := do(t, c, "GET", env.server.URL+"/summary", "", nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("Expected redirect after new image, got %d", resp.StatusCode)
	}
}

func TestHealthcheck(t *testing.T) {
	env := newTestEnv(t)
	resp, body := do(t, env.client(t), "GET", env.server.URL+"/healthcheck", "", nil)
	if resp.StatusCode != http.StatusOK || body != "OK" {
		t.Errorf("Expected OK, got %d %q", resp.StatusCode, body)
	}
}
