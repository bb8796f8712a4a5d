package session

import (
	"errors"
	"sync"
	"time"

	"github.com/extractify-ai/extractify/internal/imaging"
	"github.com/extractify-ai/extractify/internal/models"
)

var (
	ErrNoImage = errors.New("no image selected")
	ErrNoCrop  = errors.New("no cropped image available")
	ErrBusy    = errors.New("text extraction already running")
)

// Session is one visitor's workspace: the image intake plus the shared
// text state.
type Session struct {
	ID        string
	CreatedAt time.Time
	State     *State

	mu       sync.RWMutex
	selected *imaging.Image
	cropped  *imaging.Image
	lastSeen time.Time

	// gen counts image selections; OCR results carry the gen they ran for.
	gen     uint64
	ocrGen  uint64
	ocrBusy bool
}

func New(id string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		State:     NewState(),
		lastSeen:  now,
	}
}

// SelectImage replaces the intake image. Any previous crop is dropped and the
// extracted text is reset, which clears everything derived from it.
func (s *Session) SelectImage(img *imaging.Image) {
	s.mu.Lock()
	s.selected = img
	s.cropped = nil
	s.gen++
	s.mu.Unlock()
	s.State.SetExtractedText("")
}

func (s *Session) Selected() *imaging.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

func (s *Session) Cropped() *imaging.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cropped
}

// Crop cuts region out of the selected image and keeps it as the OCR input.
func (s *Session) Crop(region imaging.Region) (*imaging.Image, error) {
	src := s.Selected()
	if src == nil {
		return nil, ErrNoImage
	}
	out, err := src.Crop(region)
	if err != nil {
		return nil, err
	}
	return s.setCropped(src, out), nil
}

// CropFull uses the whole selected image as the OCR input.
func (s *Session) CropFull() (*imaging.Image, error) {
	src := s.Selected()
	if src == nil {
		return nil, ErrNoImage
	}
	out, err := src.Full()
	if err != nil {
		return nil, err
	}
	return s.setCropped(src, out), nil
}

// setCropped stores out unless the selection changed while cropping.
func (s *Session) setCropped(src, out *imaging.Image) *imaging.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == src {
		s.cropped = out
	}
	return out
}

// BeginExtract marks OCR as running for the current selection and returns
// the crop to recognize together with the selection generation. Only one
// extraction per selection runs at a time.
func (s *Session) BeginExtract() (*imaging.Image, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cropped == nil {
		return nil, 0, ErrNoCrop
	}
	if s.ocrBusy && s.ocrGen == s.gen {
		return nil, 0, ErrBusy
	}
	s.ocrBusy = true
	s.ocrGen = s.gen
	return s.cropped, s.gen, nil
}

// EndExtract releases the mark taken by BeginExtract for gen.
func (s *Session) EndExtract(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ocrBusy && s.ocrGen == gen {
		s.ocrBusy = false
	}
}

// CommitExtract stores text as the extracted text only if the selection is
// still gen and crop is still the current crop. It reports whether the text
// was stored.
func (s *Session) CommitExtract(gen uint64, crop *imaging.Image, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.cropped != crop {
		return false
	}
	s.State.SetExtractedText(text)
	return true
}

// Touch records activity on the session.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}

// View renders the session for the JSON API. Image previews are included only
// when withImages is set.
func (s *Session) View(withImages bool) models.SessionView {
	snap := s.State.Snapshot()
	view := models.SessionView{
		ID:            s.ID,
		ExtractedText: snap.ExtractedText,
		Summary:       snap.Summary,
		Answer:        snap.Answer,
		SummaryError:  snap.SummaryError,
		AnswerError:   snap.AnswerError,
		Messages:      snap.Messages,
		CreatedAt:     s.CreatedAt,
	}
	if view.Messages == nil {
		view.Messages = []models.ChatMessage{}
	}
	if img := s.Selected(); img != nil {
		view.Image = imageItem(img, withImages)
	}
	if img := s.Cropped(); img != nil {
		view.Cropped = imageItem(img, withImages)
	}
	return view
}

func imageItem(img *imaging.Image, withData bool) *models.ImageItem {
	item := &models.ImageItem{
		MIMEType:    img.MIMEType,
		ImageWidth:  img.Width,
		ImageHeight: img.Height,
	}
	if withData {
		item.DataURL = img.DataURL()
	}
	return item
}
