// Package session holds the per-visitor state shared by every view: the
// intake images, the extracted text and everything derived from it.
package session

import (
	"sync"

	"github.com/extractify-ai/extractify/internal/models"
)

// Field names a value derived from the extracted text.
type Field int

const (
	FieldSummary Field = iota
	FieldAnswer
)

func (f Field) String() string {
	switch f {
	case FieldSummary:
		return "summary"
	case FieldAnswer:
		return "answer"
	default:
		return "unknown"
	}
}

// State is the shared text state. Every write to the extracted text bumps the
// epoch and clears derived values, so results computed for older text can be
// detected and dropped.
type State struct {
	mu            sync.Mutex
	extractedText string
	epoch         uint64
	derived       map[Field]string
	errs          map[Field]string
	inFlight      map[Field]uint64
	messages      []models.ChatMessage

	// turn serializes chat sends
	turn sync.Mutex
}

// Snapshot is a consistent copy of State.
type Snapshot struct {
	ExtractedText string
	Summary       string
	Answer        string
	SummaryError  string
	AnswerError   string
	SummaryBusy   bool
	AnswerBusy    bool
	Messages      []models.ChatMessage
	Epoch         uint64
}

func NewState() *State {
	return &State{
		derived:  make(map[Field]string),
		errs:     make(map[Field]string),
		inFlight: make(map[Field]uint64),
	}
}

// SetExtractedText replaces the source text and returns the new epoch.
// Summary, answer, stage errors and the chat log are reset.
func (s *State) SetExtractedText(text string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extractedText = text
	s.epoch++
	clear(s.derived)
	clear(s.errs)
	clear(s.inFlight)
	s.messages = nil
	return s.epoch
}

func (s *State) ExtractedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractedText
}

// Source returns the extracted text and the epoch it belongs to.
func (s *State) Source() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extractedText, s.epoch
}

func (s *State) Summary() string { return s.get(FieldSummary) }
func (s *State) Answer() string  { return s.get(FieldAnswer) }

func (s *State) get(f Field) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.derived[f]
}

// SetSummary overwrites the summary for the current text.
func (s *State) SetSummary(text string) { s.set(FieldSummary, text) }

// SetAnswer overwrites the analysis for the current text.
func (s *State) SetAnswer(text string) { s.set(FieldAnswer, text) }

func (s *State) set(f Field, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derived[f] = text
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ExtractedText: s.extractedText,
		Summary:       s.derived[FieldSummary],
		Answer:        s.derived[FieldAnswer],
		SummaryError:  s.errs[FieldSummary],
		AnswerError:   s.errs[FieldAnswer],
		SummaryBusy:   s.busy(FieldSummary),
		AnswerBusy:    s.busy(FieldAnswer),
		Messages:      append([]models.ChatMessage(nil), s.messages...),
		Epoch:         s.epoch,
	}
}

func (s *State) busy(f Field) bool {
	e, ok := s.inFlight[f]
	return ok && e == s.epoch
}

// Begin marks f as being generated for epoch. It returns false when the epoch
// is stale, a request for f is already running, or onlyIfEmpty is set and f
// already has a value.
func (s *State) Begin(f Field, epoch uint64, onlyIfEmpty bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.busy(f) || s.extractedText == "" {
		return false
	}
	if onlyIfEmpty && s.derived[f] != "" {
		return false
	}
	s.inFlight[f] = epoch
	return true
}

// End releases the in-flight mark taken by Begin for the same epoch.
func (s *State) End(f Field, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.inFlight[f]; ok && e == epoch {
		delete(s.inFlight, f)
	}
}

// Commit stores text for f if epoch is still current and clears any stage
// error. It reports whether the value was stored.
func (s *State) Commit(f Field, epoch uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.derived[f] = text
	delete(s.errs, f)
	return true
}

// Fail records a stage error for f if epoch is still current.
func (s *State) Fail(f Field, epoch uint64, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.errs[f] = reason
	return true
}

// Messages returns a copy of the chat log.
func (s *State) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.messages...)
}

// AppendMessage adds msg to the chat log if epoch is still current.
func (s *State) AppendMessage(epoch uint64, msg models.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	s.messages = append(s.messages, msg)
	return true
}

// UpdateMessage applies fn to the message with id if epoch is still current.
func (s *State) UpdateMessage(epoch uint64, id string, fn func(*models.ChatMessage)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			fn(&s.messages[i])
			return true
		}
	}
	return false
}

// ClearMessages empties the chat log.
func (s *State) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// LockTurn serializes chat sends; call the returned func to release.
func (s *State) LockTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}
