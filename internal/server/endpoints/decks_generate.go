package endpoints

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/svcctx"
)

// BatchStateResponse reports a deck's batch state after an operation.
type BatchStateResponse struct {
	DeckID   string                `json:"deck_id"`
	Status   deck.GenerationStatus `json:"generation_status"`
	Progress deck.Progress         `json:"progress"`
}

// handleBatchOp runs a batch operation and responds 202 with the deck's
// current state. The state is re-read after the operation so the response
// reflects whatever the orchestrator already settled.
func handleBatchOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, deckID string) error) {
	id := r.PathValue("deck_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "deck_id is required")
		return
	}

	if err := op(r.Context(), id); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	d, err := svcctx.StoreFrom(r.Context()).GetDeck(r.Context(), id)
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

// batchCommand builds a CLI command that posts to a batch operation route.
func batchCommand(use, short, action string, getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <deck-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp BatchStateResponse
			path := fmt.Sprintf("/api/decks/%s/generate/%s", args[0], action)
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// StartBatchEndpoint handles POST /api/decks/{deck_id}/generate/start.
type StartBatchEndpoint struct{}

var _ api.Endpoint = (*StartBatchEndpoint)(nil)

func (e *StartBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/generate/start", e.handler
}

func (e *StartBatchEndpoint) RequiresInit() bool { return true }

func (e *StartBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleBatchOp(w, r, svcctx.ManagerFrom(r.Context()).Start)
}

func (e *StartBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand("start", "Start batch generation for a deck", "start", getServerURL)
}

// PauseBatchEndpoint handles POST /api/decks/{deck_id}/generate/pause.
type PauseBatchEndpoint struct{}

var _ api.Endpoint = (*PauseBatchEndpoint)(nil)

func (e *PauseBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/generate/pause", e.handler
}

func (e *PauseBatchEndpoint) RequiresInit() bool { return true }

func (e *PauseBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleBatchOp(w, r, svcctx.ManagerFrom(r.Context()).Pause)
}

func (e *PauseBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand("pause", "Pause batch generation, cancelling in-flight slides", "pause", getServerURL)
}

// ResumeBatchEndpoint handles POST /api/decks/{deck_id}/generate/resume.
type ResumeBatchEndpoint struct{}

var _ api.Endpoint = (*ResumeBatchEndpoint)(nil)

func (e *ResumeBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/generate/resume", e.handler
}

func (e *ResumeBatchEndpoint) RequiresInit() bool { return true }

func (e *ResumeBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleBatchOp(w, r, svcctx.ManagerFrom(r.Context()).Resume)
}

func (e *ResumeBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand("resume", "Resume a paused batch", "resume", getServerURL)
}

// RetryBatchEndpoint handles POST /api/decks/{deck_id}/generate/retry.
type RetryBatchEndpoint struct{}

var _ api.Endpoint = (*RetryBatchEndpoint)(nil)

func (e *RetryBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/generate/retry", e.handler
}

func (e *RetryBatchEndpoint) RequiresInit() bool { return true }

func (e *RetryBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	handleBatchOp(w, r, svcctx.ManagerFrom(r.Context()).RetryAll)
}

func (e *RetryBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return batchCommand("retry", "Re-run every failed slide in a deck", "retry", getServerURL)
}
