package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/outline"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

// SynthesizeOutlineRequest is the request body for outline synthesis.
type SynthesizeOutlineRequest struct {
	Topic      string `json:"topic,omitempty"`
	SlideCount int    `json:"slide_count,omitempty"`
	Language   string `json:"language,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// SynthesizeOutlineEndpoint handles POST /api/decks/{deck_id}/outline.
// It generates a fresh outline and replaces the deck's slide set, preserving
// results and manual uploads for pages that survive.
type SynthesizeOutlineEndpoint struct{}

var _ api.Endpoint = (*SynthesizeOutlineEndpoint)(nil)

func (e *SynthesizeOutlineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/outline", e.handler
}

func (e *SynthesizeOutlineEndpoint) RequiresInit() bool { return true }

func (e *SynthesizeOutlineEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deck_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck_id is required")
		return
	}

	var req SynthesizeOutlineRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
			return
		}
	}

	st := svcctx.StoreFrom(r.Context())
	d, err := st.GetDeck(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, "deck not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = d.Topic
	}
	if topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required (in request or on the deck)")
		return
	}

	synth := svcctx.SynthesizerFrom(r.Context())
	if synth == nil {
		writeError(w, http.StatusServiceUnavailable, "outline synthesizer not configured")
		return
	}

	// A regeneration replaces the slide set; stop any batch in flight first so
	// no job finishes into a slide that is about to be swapped out.
	if d.Status == deck.BatchRunning {
		if err := svcctx.ManagerFrom(r.Context()).Pause(r.Context(), id); err != nil {
			writeError(w, errorStatus(err), err.Error())
			return
		}
	}

	entries, err := synth.Synthesize(r.Context(), &outline.Request{
		Topic:      topic,
		Title:      d.Title,
		SlideCount: req.SlideCount,
		Language:   req.Language,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("outline synthesis failed: %v", err))
		return
	}

	var updated *deck.Deck
	err = st.UpdateDeck(r.Context(), id, func(d *deck.Deck) error {
		d.Topic = topic
		d.Slides = deck.MergeOutline(d.Slides, entries)
		d.RecomputeProgress()
		d.Touch()
		updated = d
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (e *SynthesizeOutlineEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		topic      string
		slideCount int
		language   string
		notes      string
	)
	cmd := &cobra.Command{
		Use:   "outline <deck-id>",
		Short: "Synthesize an outline for a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var d deck.Deck
			req := SynthesizeOutlineRequest{
				Topic:      topic,
				SlideCount: slideCount,
				Language:   language,
				Notes:      notes,
			}
			if err := client.Post(cmd.Context(), "/api/decks/"+args[0]+"/outline", req, &d); err != nil {
				return err
			}
			return api.Output(d)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "Topic to outline (defaults to the deck's topic)")
	cmd.Flags().IntVar(&slideCount, "slides", 0, "Number of slides to generate")
	cmd.Flags().StringVar(&language, "language", "", "Outline language")
	cmd.Flags().StringVar(&notes, "notes", "", "Extra guidance for the outline")
	return cmd
}
