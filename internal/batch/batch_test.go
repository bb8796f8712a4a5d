package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/providers"
	"gopkg.in/yaml.v3"
)

type echoEngine struct{}

func (echoEngine) Name() string { return "echo" }

func (echoEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	return "Invoice #42: total $10", nil
}

type summaryProvider struct{}

func (summaryProvider) Name() string { return "summary" }

func (summaryProvider) Generate(ctx context.Context, config providers.Config) (string, error) {
	if strings.HasPrefix(config.Prompt, "Analyze") {
		return "", errors.New("analysis disabled")
	}
	return "An invoice", nil
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func setupDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"))
	writePNG(t, filepath.Join(dir, "a.PNG"))
	os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("not really a jpeg"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644)
	os.Mkdir(filepath.Join(dir, "nested.png"), 0o755)
	return dir
}

func TestCollect(t *testing.T) {
	dir := setupDir(t)
	paths, err := Collect(dir)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	if got := strings.Join(names, ","); got != "a.PNG,b.png,c.jpg" {
		t.Errorf("Expected a.PNG,b.png,c.jpg, got %s", got)
	}
}

func TestRun(t *testing.T) {
	dir := setupDir(t)
	paths, _ := Collect(dir)

	r := &Runner{
		Service:     generation.NewService(echoEngine{}, summaryProvider{}, generation.Options{}),
		Concurrency: 2,
		Summarize:   true,
	}
	rows, err := r.Run(t.Context(), paths)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}

	if rows[0].File != "a.PNG" || rows[0].ExtractedText != "Invoice 42 total 10" {
		t.Errorf("Unexpected first row: %+v", rows[0])
	}
	if rows[1].Summary != "An invoice" {
		t.Errorf("Expected summary, got %q", rows[1].Summary)
	}
	if rows[2].Error == "" {
		t.Error("Expected error for undecodable image")
	}

	stats := Summarize(rows)
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestRunRecordsStageFailures(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page.png"))

	r := &Runner{
		Service: generation.NewService(echoEngine{}, summaryProvider{}, generation.Options{}),
		Analyze: true,
	}
	rows, err := r.Run(t.Context(), []string{filepath.Join(dir, "page.png")})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(rows[0].Error, "analysis disabled") {
		t.Errorf("Expected analysis error, got %q", rows[0].Error)
	}
	if rows[0].ExtractedText == "" {
		t.Error("Expected extracted text to be kept")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Service: generation.NewService(echoEngine{}, summaryProvider{}, generation.Options{})}
	if _, err := r.Run(ctx, []string{"x.png"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParquetRoundTrip(t *testing.T) {
	rows := []Row{
		{File: "a.png", ExtractedText: "hello", Summary: "greeting", DurationMS: 12},
		{File: "b.png", Error: "no text recognized in image", DurationMS: 3},
	}
	path := filepath.Join(t.TempDir(), "out.parquet")
	if err := SaveFile(path, "parquet", NewReport("gemini", "m", "tesseract", rows)); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	got, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet failed: %v", err)
	}
	if len(got) != 2 || got[0].Summary != "greeting" || got[1].Error == "" {
		t.Errorf("Unexpected rows: %+v", got)
	}
}

func TestYAMLReport(t *testing.T) {
	rows := []Row{{File: "a.png", ExtractedText: "hello", DurationMS: 20}}
	var buf bytes.Buffer
	if err := WriteYAML(&buf, NewReport("ollama", "llama3", "tesseract", rows)); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	var report Report
	if err := yaml.Unmarshal(buf.Bytes(), &report); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if report.Provider != "ollama" || report.Stats.Succeeded != 1 {
		t.Errorf("Unexpected report: %+v", report)
	}
	if report.Stats.AvgDuration != 20*time.Millisecond {
		t.Errorf("Expected 20ms average, got %v", report.Stats.AvgDuration)
	}
}

func TestSaveFileUnknownFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := SaveFile(path, "csv", Report{}); err == nil {
		t.Error("Expected error for unsupported format")
	}
}
