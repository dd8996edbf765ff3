// Package deck defines the domain model: decks (presentations), their slides,
// and the aggregate batch generation state.
package deck

import (
	"time"

	"github.com/google/uuid"
)

// GenerationStatus describes the whole batch, not any one slide.
type GenerationStatus string

const (
	BatchIdle      GenerationStatus = "idle"
	BatchRunning   GenerationStatus = "running"
	BatchPaused    GenerationStatus = "paused"
	BatchCompleted GenerationStatus = "completed"
	BatchError     GenerationStatus = "error"
)

// Progress is derived from the slide collection. Completed counts slides
// whose status is completed or skipped. It is never assigned independently;
// callers mutate slides and then call RecomputeProgress.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// DeckStyle is the shared style configuration applied to every slide's
// generation request.
type DeckStyle struct {
	// StyleText is free-form style guidance appended to every instruction.
	StyleText string `json:"style_text,omitempty"`
	// BaseImageRef references the deck's base style reference image in the
	// asset store. Generation requires it unless the provider allows
	// unreferenced generation.
	BaseImageRef string `json:"base_image_ref,omitempty"`
	AspectRatio  string `json:"aspect_ratio,omitempty"`
	ImageSize    string `json:"image_size,omitempty"`
	// Provider and Model override the configured defaults for this deck.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Deck is the container that owns a batch of slides. Multiple decks may
// exist; exactly one is active (displayed) at a time, but generation jobs may
// be in flight for a deck that is not active.
type Deck struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Topic     string           `json:"topic,omitempty"`
	Style     DeckStyle        `json:"style"`
	Slides    []Slide          `json:"slides"`
	Status    GenerationStatus `json:"generation_status"`
	Progress  Progress         `json:"progress"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// New creates an empty deck with no slides.
func New(title, topic string) *Deck {
	now := time.Now().UTC()
	return &Deck{
		ID:        uuid.New().String(),
		Title:     title,
		Topic:     topic,
		Status:    BatchIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Slide returns a pointer to the slide with the given id, or nil.
func (d *Deck) Slide(id string) *Slide {
	for i := range d.Slides {
		if d.Slides[i].ID == id {
			return &d.Slides[i]
		}
	}
	return nil
}

// SlideByPage returns a pointer to the slide with the given page number, or nil.
func (d *Deck) SlideByPage(page int) *Slide {
	for i := range d.Slides {
		if d.Slides[i].PageNumber == page {
			return &d.Slides[i]
		}
	}
	return nil
}

// RecomputeProgress derives Progress from the slide collection. It must be
// called after every slide mutation; several slides can settle in the same
// tick, so incrementing a counter would drift.
func (d *Deck) RecomputeProgress() {
	p := Progress{Total: len(d.Slides)}
	for i := range d.Slides {
		switch d.Slides[i].Status {
		case SlideCompleted, SlideSkipped:
			p.Completed++
		}
	}
	d.Progress = p
}

// CountStatus returns the number of slides in the given status.
func (d *Deck) CountStatus(status SlideStatus) int {
	n := 0
	for i := range d.Slides {
		if d.Slides[i].Status == status {
			n++
		}
	}
	return n
}

// Done reports whether every slide is completed or skipped.
func (d *Deck) Done() bool {
	for i := range d.Slides {
		switch d.Slides[i].Status {
		case SlideCompleted, SlideSkipped:
		default:
			return false
		}
	}
	return true
}

// Touch updates the modification timestamp.
func (d *Deck) Touch() {
	d.UpdatedAt = time.Now().UTC()
}
