package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/batch"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

// DeckSummary is a brief listing of a deck.
type DeckSummary struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Topic     string                `json:"topic,omitempty"`
	Status    deck.GenerationStatus `json:"generation_status"`
	Progress  deck.Progress         `json:"progress"`
	Slides    int                   `json:"slides"`
	Active    bool                  `json:"active,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

func summarize(d *deck.Deck, activeID string) DeckSummary {
	return DeckSummary{
		ID:        d.ID,
		Title:     d.Title,
		Topic:     d.Topic,
		Status:    d.Status,
		Progress:  d.Progress,
		Slides:    len(d.Slides),
		Active:    d.ID == activeID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// errorStatus maps service errors to HTTP status codes. Unknown ids are 404;
// everything else from a mutation is a conflict with current state.
func errorStatus(err error) int {
	if errors.Is(err, store.ErrDeckNotFound) || errors.Is(err, batch.ErrSlideNotFound) {
		return http.StatusNotFound
	}
	return http.StatusConflict
}

// CreateDeckRequest is the request body for creating a deck.
type CreateDeckRequest struct {
	Title   string              `json:"title"`
	Topic   string              `json:"topic,omitempty"`
	Style   deck.DeckStyle      `json:"style,omitempty"`
	Outline []deck.OutlineEntry `json:"outline,omitempty"`
}

// CreateDeckEndpoint handles POST /api/decks.
type CreateDeckEndpoint struct{}

var _ api.Endpoint = (*CreateDeckEndpoint)(nil)

func (e *CreateDeckEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks", e.handler
}

func (e *CreateDeckEndpoint) RequiresInit() bool { return true }

func (e *CreateDeckEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateDeckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())

	d := deck.New(req.Title, req.Topic)
	d.Style = req.Style
	if len(req.Outline) > 0 {
		d.Slides = deck.BuildSlides(req.Outline)
		d.RecomputeProgress()
	}

	if err := st.PutDeck(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// The first deck becomes active automatically.
	if active, err := st.ActiveDeckID(r.Context()); err == nil && active == "" {
		if err := st.SetActiveDeck(r.Context(), d.ID); err != nil {
			svcctx.LoggerFrom(r.Context()).Warn("failed to activate new deck", "deck_id", d.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, d)
}

func (e *CreateDeckEndpoint) Command(getServerURL func() string) *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "create <title>",
		Short: "Create a new deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var d deck.Deck
			if err := client.Post(cmd.Context(), "/api/decks", CreateDeckRequest{Title: args[0], Topic: topic}, &d); err != nil {
				return err
			}
			return api.Output(d)
		},
	}
	cmd.Flags().StringVar(&topic, "topic", "", "Deck topic for outline synthesis")
	return cmd
}

// ListDecksResponse is the response for listing decks.
type ListDecksResponse struct {
	Decks []DeckSummary `json:"decks"`
	Total int           `json:"total"`
}

// ListDecksEndpoint handles GET /api/decks.
type ListDecksEndpoint struct{}

var _ api.Endpoint = (*ListDecksEndpoint)(nil)

func (e *ListDecksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/decks", e.handler
}

func (e *ListDecksEndpoint) RequiresInit() bool { return true }

func (e *ListDecksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())

	decks, err := st.ListDecks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	active, _ := st.ActiveDeckID(r.Context())

	resp := ListDecksResponse{Decks: make([]DeckSummary, 0, len(decks)), Total: len(decks)}
	for _, d := range decks {
		resp.Decks = append(resp.Decks, summarize(d, active))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListDecksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all decks",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListDecksResponse
			if err := client.Get(cmd.Context(), "/api/decks", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetDeckEndpoint handles GET /api/decks/{deck_id}.
type GetDeckEndpoint struct{}

var _ api.Endpoint = (*GetDeckEndpoint)(nil)

func (e *GetDeckEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/decks/{deck_id}", e.handler
}

func (e *GetDeckEndpoint) RequiresInit() bool { return true }

func (e *GetDeckEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, d)
}

func (e *GetDeckEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <deck-id>",
		Short: "Get a deck by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var d deck.Deck
			if err := client.Get(cmd.Context(), "/api/decks/"+args[0], &d); err != nil {
				return err
			}
			return api.Output(d)
		},
	}
}

// DeleteDeckEndpoint handles DELETE /api/decks/{deck_id}.
type DeleteDeckEndpoint struct{}

var _ api.Endpoint = (*DeleteDeckEndpoint)(nil)

func (e *DeleteDeckEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/decks/{deck_id}", e.handler
}

func (e *DeleteDeckEndpoint) RequiresInit() bool { return true }

func (e *DeleteDeckEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deck_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck_id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if _, err := st.GetDeck(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, "deck not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// Stop in-flight jobs before removing the deck so nothing writes to it
	// after deletion.
	svcctx.ManagerFrom(r.Context()).Drop(r.Context(), id)

	if err := st.DeleteDeck(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if as := svcctx.AssetsFrom(r.Context()); as != nil {
		if err := as.DeleteDeck(r.Context(), id); err != nil {
			svcctx.LoggerFrom(r.Context()).Warn("failed to delete deck assets", "deck_id", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

func (e *DeleteDeckEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <deck-id>",
		Short: "Delete a deck and its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/decks/"+args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted deck %s\n", args[0])
			return nil
		},
	}
}

// ActivateDeckEndpoint handles POST /api/decks/{deck_id}/activate.
type ActivateDeckEndpoint struct{}

var _ api.Endpoint = (*ActivateDeckEndpoint)(nil)

func (e *ActivateDeckEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/activate", e.handler
}

func (e *ActivateDeckEndpoint) RequiresInit() bool { return true }

// handler switches the displayed deck. Generation jobs in flight for other
// decks keep running and keep writing to their own deck.
func (e *ActivateDeckEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("deck_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck_id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if err := st.SetActiveDeck(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, "deck not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "activated", "id": id})
}

func (e *ActivateDeckEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <deck-id>",
		Short: "Make a deck the displayed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]string
			if err := client.Post(cmd.Context(), "/api/decks/"+args[0]+"/activate", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Activated deck %s\n", args[0])
			return nil
		},
	}
}
