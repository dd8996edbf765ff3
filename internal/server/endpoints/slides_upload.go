package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/svcctx"
)

// UploadSlideImageEndpoint handles POST /api/decks/{deck_id}/slides/{slide_id}/upload
// with a multipart image upload. The uploaded image replaces the slide's
// displayed image and marks the slide completed.
type UploadSlideImageEndpoint struct{}

var _ api.Endpoint = (*UploadSlideImageEndpoint)(nil)

func (e *UploadSlideImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/decks/{deck_id}/slides/{slide_id}/upload", e.handler
}

func (e *UploadSlideImageEndpoint) RequiresInit() bool { return true }

func (e *UploadSlideImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	deckID := r.PathValue("deck_id")
	slideID := r.PathValue("slide_id")
	if deckID == "" || slideID == "" {
		writeError(w, http.StatusBadRequest, "deck_id and slide_id are required")
		return
	}

	// Parse multipart form with 64MB max memory
	const maxMemory = 64 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	if err := svcctx.ManagerFrom(r.Context()).UploadManual(r.Context(), deckID, slideID, data); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	d, err := svcctx.StoreFrom(r.Context()).GetDeck(r.Context(), deckID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, BatchStateResponse{
		DeckID:   d.ID,
		Status:   d.Status,
		Progress: d.Progress,
	})
}

func (e *UploadSlideImageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <deck-id> <slide-id> <image-path>",
		Short: "Upload a manual image for a slide",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[2], err)
			}

			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/api/decks/%s/slides/%s/upload", args[0], args[1])
			var resp BatchStateResponse
			if err := client.PostFile(cmd.Context(), path, "image", args[2], data, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
