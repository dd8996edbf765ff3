package deck

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlideStatus represents the current state of a single slide's generation job.
type SlideStatus string

const (
	SlidePending   SlideStatus = "pending"
	SlideRunning   SlideStatus = "running"
	SlideCompleted SlideStatus = "completed"
	SlideFailed    SlideStatus = "failed"
	SlideSkipped   SlideStatus = "skipped"
)

// legalTransitions is the slide state machine. Anything not listed here is
// rejected by Transition.
var legalTransitions = map[SlideStatus][]SlideStatus{
	SlidePending:   {SlideRunning, SlideSkipped},
	SlideRunning:   {SlideCompleted, SlideFailed, SlidePending},
	SlideCompleted: {SlideRunning},
	SlideFailed:    {SlideRunning, SlideSkipped, SlidePending},
	SlideSkipped:   {},
}

// SlideResult holds the output of a successful generation run.
// ImageRef and PreviewRef point into the asset store; when persistence was
// skipped (storage failure is non-fatal) the refs are empty and ImageData
// carries the raw bytes for in-memory display.
type SlideResult struct {
	ImageRef    string    `json:"image_ref,omitempty"`
	PreviewRef  string    `json:"preview_ref,omitempty"`
	ImageData   []byte    `json:"image_data,omitempty"`
	PreviewData []byte    `json:"preview_data,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Attempts    int       `json:"attempts"`
}

// ManualImage is a user-supplied image that takes precedence over a generated
// result for display. It is independent of slide status.
type ManualImage struct {
	ImageRef    string    `json:"image_ref,omitempty"`
	PreviewRef  string    `json:"preview_ref,omitempty"`
	ImageData   []byte    `json:"image_data,omitempty"`
	PreviewData []byte    `json:"preview_data,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Supplement carries free-form notes and references to auxiliary images that
// are fed into the generation call alongside the deck's base reference image.
type Supplement struct {
	Text      string   `json:"text,omitempty"`
	ImageRefs []string `json:"image_refs,omitempty"`
}

// Slide is one page's generation job and its current state.
type Slide struct {
	ID         string      `json:"id"`
	PageNumber int         `json:"page_number"`
	Heading    string      `json:"heading"`
	Points     []string    `json:"points,omitempty"`
	ImageDesc  string      `json:"image_desc,omitempty"`
	Script     string      `json:"script,omitempty"`
	Supplement *Supplement `json:"supplement,omitempty"`
	TitlePage  bool        `json:"title_page,omitempty"`

	Status SlideStatus  `json:"status"`
	Result *SlideResult `json:"result,omitempty"`
	Manual *ManualImage `json:"manual,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// NewSlide creates a pending slide from outline content.
func NewSlide(entry OutlineEntry) Slide {
	return Slide{
		ID:         uuid.New().String(),
		PageNumber: entry.PageNumber,
		Heading:    entry.Heading,
		Points:     entry.Points,
		ImageDesc:  entry.ImageDesc,
		Script:     entry.Script,
		Supplement: entry.Supplement,
		TitlePage:  entry.PageNumber == 1 && entry.TitlePage,
		Status:     SlidePending,
	}
}

// Transition moves the slide to a new status, enforcing the state machine.
// Moving away from failed clears the error message.
func (s *Slide) Transition(to SlideStatus) error {
	for _, allowed := range legalTransitions[s.Status] {
		if to == allowed {
			if s.Status == SlideFailed {
				s.Error = ""
			}
			s.Status = to
			return nil
		}
	}
	return fmt.Errorf("illegal slide transition %s -> %s", s.Status, to)
}

// Attempts returns the number of completed generation attempts.
func (s *Slide) Attempts() int {
	if s.Result == nil {
		return 0
	}
	return s.Result.Attempts
}

// HasImage reports whether the slide has something to display: either a
// generated result or a manual upload.
func (s *Slide) HasImage() bool {
	return s.Result != nil || s.Manual != nil
}
