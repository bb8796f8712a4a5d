// Package generation runs the pipeline stages that turn a cropped image into
// text and text into summaries, analyses and chat replies. Results are written
// back into the session's shared state.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/extractify-ai/extractify/internal/ocr"
	"github.com/extractify-ai/extractify/internal/providers"
	"github.com/extractify-ai/extractify/internal/session"
)

// Stage identifies the pipeline step that failed.
type Stage string

const (
	StageOCR     Stage = "ocr"
	StageSummary Stage = "summary"
	StageAnswer  Stage = "answer"
	StageChat    Stage = "chat"
)

var (
	ErrNoText       = errors.New("no image processed")
	ErrEmptyText    = errors.New("no text recognized in image")
	ErrEmptyMessage = errors.New("message is empty")
	ErrStale        = errors.New("extracted text changed while generating")
)

// StageError wraps a failure of a single pipeline stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Outcome is the result of a summary or analysis request.
type Outcome struct {
	Text string
	Err  error
	// Fallback is set when Text is the placeholder shown after a failure.
	Fallback bool
	// Pending is set when another request for the same value is running.
	Pending bool
}

// Options configures a Service.
type Options struct {
	Model             string
	Temperature       float64
	GenerationTimeout time.Duration
	OCRTimeout        time.Duration
}

type Service struct {
	engine   ocr.Engine
	provider providers.Provider
	opts     Options
}

func NewService(engine ocr.Engine, provider providers.Provider, opts Options) *Service {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = 2 * time.Minute
	}
	if opts.OCRTimeout <= 0 {
		opts.OCRTimeout = 2 * time.Minute
	}
	return &Service{engine: engine, provider: provider, opts: opts}
}

// ExtractText recognizes the session's cropped image, sanitizes the result
// and stores it as the new extracted text. A result for an image or crop that
// was replaced while OCR ran is dropped with ErrStale.
func (s *Service) ExtractText(ctx context.Context, sess *session.Session) (string, error) {
	crop, gen, err := sess.BeginExtract()
	if err != nil {
		return "", err
	}
	defer sess.EndExtract(gen)

	ocrCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.OCRTimeout)
	defer cancel()

	start := time.Now()
	raw, err := s.engine.Recognize(ocrCtx, crop.Data)
	if err != nil {
		slog.Error("OCR failed", "session", sess.ID, "engine", s.engine.Name(), "error", err)
		return "", &StageError{Stage: StageOCR, Err: err}
	}

	text := ocr.Sanitize(raw)
	if text == "" {
		return "", &StageError{Stage: StageOCR, Err: ErrEmptyText}
	}

	if !sess.CommitExtract(gen, crop, text) {
		slog.Warn("Dropped stale OCR result", "session", sess.ID, "engine", s.engine.Name())
		return "", &StageError{Stage: StageOCR, Err: ErrStale}
	}
	slog.Info("Extracted text", "session", sess.ID, "engine", s.engine.Name(), "length", len(text), "duration", time.Since(start))
	return text, nil
}

// Summary returns the stored summary, generating it first when the text is
// set and no summary exists yet.
func (s *Service) Summary(ctx context.Context, st *session.State) Outcome {
	return s.ensure(ctx, st, session.FieldSummary, false)
}

// RegenerateSummary always requests a new summary for the current text.
func (s *Service) RegenerateSummary(ctx context.Context, st *session.State) Outcome {
	return s.ensure(ctx, st, session.FieldSummary, true)
}

// Answer returns the stored analysis, generating it first when needed.
func (s *Service) Answer(ctx context.Context, st *session.State) Outcome {
	return s.ensure(ctx, st, session.FieldAnswer, false)
}

func (s *Service) ensure(ctx context.Context, st *session.State, field session.Field, force bool) Outcome {
	snap := st.Snapshot()
	if snap.ExtractedText == "" {
		return Outcome{Err: ErrNoText}
	}

	current, stageErr := snap.Summary, snap.SummaryError
	if field == session.FieldAnswer {
		current, stageErr = snap.Answer, snap.AnswerError
	}

	if !force && current != "" {
		return Outcome{Text: current, Fallback: field == session.FieldSummary && stageErr != ""}
	}
	if !st.Begin(field, snap.Epoch, !force) {
		return Outcome{Text: current, Pending: true}
	}
	defer st.End(field, snap.Epoch)

	return s.generate(ctx, st, field, snap.Epoch, buildPrompt(field, snap.ExtractedText))
}

func (s *Service) generate(ctx context.Context, st *session.State, field session.Field, epoch uint64, prompt string) Outcome {
	stage := StageSummary
	if field == session.FieldAnswer {
		stage = StageAnswer
	}

	text, err := s.call(ctx, prompt)
	if err != nil {
		slog.Error("Generation failed", "stage", stage, "provider", s.provider.Name(), "error", err)
		stageErr := &StageError{Stage: stage, Err: err}
		if field == session.FieldSummary {
			st.Commit(field, epoch, SummaryFallback)
			st.Fail(field, epoch, err.Error())
			return Outcome{Text: SummaryFallback, Err: stageErr, Fallback: true}
		}
		st.Fail(field, epoch, err.Error())
		return Outcome{Err: stageErr}
	}

	if !st.Commit(field, epoch, text) {
		slog.Warn("Dropped stale result", "stage", stage)
		return Outcome{Err: &StageError{Stage: stage, Err: ErrStale}}
	}
	return Outcome{Text: text}
}

// call runs one provider request. The request is detached from the caller's
// cancellation so that a closed connection still lets the result land in the
// session; only the generation timeout bounds it.
func (s *Service) call(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.GenerationTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.provider.Generate(genCtx, providers.Config{
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
		Prompt:      prompt,
	})
	if err != nil {
		return "", err
	}
	slog.Info("Generated text", "provider", s.provider.Name(), "model", s.opts.Model, "length", len(text), "duration", time.Since(start))
	return text, nil
}
