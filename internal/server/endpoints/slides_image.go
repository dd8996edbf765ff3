package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/easelhq/easel/internal/api"
	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

// slideImage resolves the displayable bytes for a slide. A manual upload
// takes precedence over the generated result; refs resolve through the asset
// store, with the in-memory copy as fallback when persistence was skipped.
func slideImage(r *http.Request, s *deck.Slide, preview bool) ([]byte, error) {
	var ref string
	var data []byte

	switch {
	case s.Manual != nil && preview:
		ref, data = s.Manual.PreviewRef, s.Manual.PreviewData
	case s.Manual != nil:
		ref, data = s.Manual.ImageRef, s.Manual.ImageData
	case s.Result != nil && preview:
		ref, data = s.Result.PreviewRef, s.Result.PreviewData
	case s.Result != nil:
		ref, data = s.Result.ImageRef, s.Result.ImageData
	}

	if ref != "" {
		if as := svcctx.AssetsFrom(r.Context()); as != nil {
			if b, err := as.Get(r.Context(), ref); err == nil {
				return b, nil
			} else if !errors.Is(err, assets.ErrNotFound) {
				return nil, err
			}
		}
	}
	if len(data) > 0 {
		return data, nil
	}
	return nil, assets.ErrNotFound
}

func serveSlideImage(w http.ResponseWriter, r *http.Request, preview bool) {
	deckID := r.PathValue("deck_id")
	slideID := r.PathValue("slide_id")
	if deckID == "" || slideID == "" {
		writeError(w, http.StatusBadRequest, "deck_id and slide_id are required")
		return
	}

	d, err := svcctx.StoreFrom(r.Context()).GetDeck(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, store.ErrDeckNotFound) {
			writeError(w, http.StatusNotFound, "deck not found")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s := d.Slide(slideID)
	if s == nil {
		writeError(w, http.StatusNotFound, "slide not found")
		return
	}

	data, err := slideImage(r, s, preview)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			writeError(w, http.StatusNotFound, "slide has no image")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// SlideImageEndpoint handles GET /api/decks/{deck_id}/slides/{slide_id}/image.
type SlideImageEndpoint struct{}

var _ api.Endpoint = (*SlideImageEndpoint)(nil)

func (e *SlideImageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/decks/{deck_id}/slides/{slide_id}/image", e.handler
}

func (e *SlideImageEndpoint) RequiresInit() bool { return true }

func (e *SlideImageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	serveSlideImage(w, r, false)
}

func (e *SlideImageEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// SlidePreviewEndpoint handles GET /api/decks/{deck_id}/slides/{slide_id}/preview.
type SlidePreviewEndpoint struct{}

var _ api.Endpoint = (*SlidePreviewEndpoint)(nil)

func (e *SlidePreviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/decks/{deck_id}/slides/{slide_id}/preview", e.handler
}

func (e *SlidePreviewEndpoint) RequiresInit() bool { return true }

func (e *SlidePreviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	serveSlideImage(w, r, true)
}

func (e *SlidePreviewEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
