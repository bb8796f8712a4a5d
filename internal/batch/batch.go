// Package batch runs the extraction pipeline over a directory of images
// without the web interface.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/extractify-ai/extractify/internal/generation"
	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/session"
	"golang.org/x/sync/errgroup"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Row is the outcome for a single image.
type Row struct {
	File          string `parquet:"file" yaml:"file"`
	ExtractedText string `parquet:"extracted_text" yaml:"extractedtext"`
	Summary       string `parquet:"summary" yaml:"summary,omitempty"`
	Answer        string `parquet:"answer" yaml:"answer,omitempty"`
	Error         string `parquet:"error" yaml:"error,omitempty"`
	DurationMS    int64  `parquet:"duration_ms" yaml:"durationms"`
}

// Runner processes images with bounded concurrency.
type Runner struct {
	Service     *generation.Service
	Concurrency int
	MaxBytes    int64
	Summarize   bool
	Analyze     bool
}

// Collect lists the image files directly inside dir, sorted by name.
func Collect(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(paths)
	return paths, nil
}

// Run processes every path and returns one row per input, in input order.
// Per-file failures are recorded in Row.Error; only cancellation aborts.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Row, error) {
	rows := make([]Row, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slog.Info("Processing image", "file", path, "progress", fmt.Sprintf("%d/%d", i+1, len(paths)))
			rows[i] = r.process(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rows, err
	}
	return rows, nil
}

func (r *Runner) process(ctx context.Context, path string) Row {
	start := time.Now()
	row := Row{File: filepath.Base(path)}

	finish := func(err error) Row {
		row.Error = err.Error()
		row.DurationMS = time.Since(start).Milliseconds()
		slog.Error("Failed to process image", "file", path, "error", err)
		return row
	}

	f, err := os.Open(path)
	if err != nil {
		return finish(err)
	}
	img, err := imaging.Decode(f, r.MaxBytes)
	f.Close()
	if err != nil {
		return finish(err)
	}

	sess := session.New(path)
	sess.SelectImage(img)
	if _, err := sess.CropFull(); err != nil {
		return finish(err)
	}

	text, err := r.Service.ExtractText(ctx, sess)
	if err != nil {
		return finish(err)
	}
	row.ExtractedText = text

	if r.Summarize {
		out := r.Service.Summary(ctx, sess.State)
		if out.Err != nil {
			return finish(out.Err)
		}
		row.Summary = out.Text
	}
	if r.Analyze {
		out := r.Service.Answer(ctx, sess.State)
		if out.Err != nil {
			return finish(out.Err)
		}
		row.Answer = out.Text
	}

	row.DurationMS = time.Since(start).Milliseconds()
	return row
}

// Stats summarizes a batch run.
type Stats struct {
	Total       int           `yaml:"total"`
	Succeeded   int           `yaml:"succeeded"`
	Failed      int           `yaml:"failed"`
	AvgDuration time.Duration `yaml:"avgduration"`
	TotalChars  int           `yaml:"totalchars"`
}

// Summarize aggregates rows into Stats.
func Summarize(rows []Row) Stats {
	s := Stats{Total: len(rows)}
	var total time.Duration
	for _, row := range rows {
		total += time.Duration(row.DurationMS) * time.Millisecond
		if row.Error != "" {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.TotalChars += len(row.ExtractedText)
	}
	if s.Total > 0 {
		s.AvgDuration = total / time.Duration(s.Total)
	}
	return s
}
