package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

// SlideSummary is a brief view of a slide's generation state.
type SlideSummary struct {
	ID         string           `json:"id"`
	PageNumber int              `json:"page_number"`
	Heading    string           `json:"heading"`
	Status     deck.SlideStatus `json:"status"`
	Attempts   int              `json:"attempts"`
	HasImage   bool             `json:"has_image"`
	HasManual  bool             `json:"has_manual"`
	Error      string           `json:"error,omitempty"`
}

// ListSlidesResponse is the response for listing a deck's slides.
type ListSlidesResponse struct {
	DeckID   string                `json:"deck_id"`
	Status   deck.GenerationStatus `json:"generation_status"`
	Progress deck.Progress         `json:"progress"`
	Slides   []SlideSummary        `json:"slides"`
}

// ListSlidesEndpoint handles GET /api/decks/{deck_id}/slides.
type ListSlidesEndpoint struct{}

var _ api.Endpoint = (*ListSlidesEndpoint)(nil)

func (e *ListSlidesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/decks/{deck_id}/slides", e.handler
}

func (e *ListSlidesEndpoint) RequiresInit() bool { return true }

func (e *ListSlidesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deck_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck_id is required")
		return
	}

	d, err := svcctx.StoreFrom(r.Context()).GetDeck(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, "deck not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp := ListSlidesResponse{
		DeckID:   d.ID,
		Status:   d.Status,
		Progress: d.Progress,
		Slides:   make([]SlideSummary, 0, len(d.Slides)),
	}
	for i := range d.Slides {
		s := &d.Slides[i]
		resp.Slides = append(resp.Slides, SlideSummary{
			ID:         s.ID,
			PageNumber: s.PageNumber,
			Heading:    s.Heading,
			Status:     s.Status,
			Attempts:   s.Attempts(),
			HasImage:   s.HasImage(),
			HasManual:  s.Manual != nil,
			Error:      s.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListSlidesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "slides <deck-id>",
		Short: "List a deck's slides with generation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSlidesResponse
			if err := client.Get(cmd.Context(), "/api/decks/"+args[0]+"/slides", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// handleSlideOp runs a per-slide operation and responds 202 with the deck's
// current batch state.
func handleSlideOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, deckID, slideID string) error) {
	deckID := r.PathValue("deck_id")
	slideID := r.PathValue("slide_id")
	if deckID == "" || slideID == "" {
		writeError(w, http.StatusBadRequest, "deck_id and slide_id are required")
		return
	}

	if err := op(r.Context(), deckID, slideID); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	d, err := svcctx.StoreFrom(r.Context()).GetDeck(r.Context(), deckID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, BatchStateResponse{
		DeckID:   d.ID,
		Status:   d.Status,
		Progress: d.Progress,
	})
}

// slideCommand builds a CLI command that posts to a per-slide action route.
func slideCommand(use, short, action string, getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <deck-id> <slide-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BatchStateResponse
			path := fmt.Sprintf("/api/decks/%s/slides/%s/%s", args[0], args[1], action)
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RunSlideEndpoint handles POST /api/decks/{deck_id}/slides/{slide_id}/run.
type RunSlideEndpoint struct{}

var _ api.Endpoint = (*RunSlideEndpoint)(nil)

func (e *RunSlideEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/slides/{slide_id}/run", e.handler
}

func (e *RunSlideEndpoint) RequiresInit() bool { return true }

func (e *RunSlideEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleSlideOp(w, r, svcctx.ManagerFrom(r.Context()).RunOne)
}

func (e *RunSlideEndpoint) Command(getServerURL func() string) *cobra.Command {
	return slideCommand("run", "Generate a single slide", "run", getServerURL)
}

// RetrySlideEndpoint handles POST /api/decks/{deck_id}/slides/{slide_id}/retry.
type RetrySlideEndpoint struct{}

var _ api.Endpoint = (*RetrySlideEndpoint)(nil)

func (e *RetrySlideEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/slides/{slide_id}/retry", e.handler
}

func (e *RetrySlideEndpoint) RequiresInit() bool { return true }

func (e *RetrySlideEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleSlideOp(w, r, svcctx.ManagerFrom(r.Context()).RetryOne)
}

func (e *RetrySlideEndpoint) Command(getServerURL func() string) *cobra.Command {
	return slideCommand("retry-slide", "Re-run a single slide", "retry", getServerURL)
}

// StopSlideEndpoint handles POST /api/decks/{deck_id}/slides/{slide_id}/stop.
type StopSlideEndpoint struct{}

var _ api.Endpoint = (*StopSlideEndpoint)(nil)

func (e *StopSlideEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/slides/{slide_id}/stop", e.handler
}

func (e *StopSlideEndpoint) RequiresInit() bool { return true }

func (e *StopSlideEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleSlideOp(w, r, svcctx.ManagerFrom(r.Context()).StopOne)
}

func (e *StopSlideEndpoint) Command(getServerURL func() string) *cobra.Command {
	return slideCommand("stop", "Cancel a slide's in-flight generation", "stop", getServerURL)
}

// SkipSlideEndpoint handles POST /api/decks/{deck_id}/slides/{slide_id}/skip.
type SkipSlideEndpoint struct{}

var _ api.Endpoint = (*SkipSlideEndpoint)(nil)

func (e *SkipSlideEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/slides/{slide_id}/skip", e.handler
}

func (e *SkipSlideEndpoint) RequiresInit() bool { return true }

func (e *SkipSlideEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleSlideOp(w, r, svcctx.ManagerFrom(r.Context()).Skip)
}

func (e *SkipSlideEndpoint) Command(getServerURL func() string) *cobra.Command {
	return slideCommand("skip", "Exclude a slide from generation", "skip", getServerURL)
}
