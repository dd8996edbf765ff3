// Package assets stores rendered slide images and their metadata sidecars.
// Objects are grouped per deck and addressed by a ref of the form
// "{deckID}/{name}.png"; each image carries a "{name}.png.meta.json" sidecar.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a ref does not resolve to a stored object.
var ErrNotFound = errors.New("asset not found")

// Asset kinds recorded in metadata sidecars.
const (
	KindGenerated  = "generated"
	KindPreview    = "preview"
	KindManual     = "manual"
	KindBase       = "base"
	KindSupplement = "supplement"
)

// Meta is the sidecar written next to every stored image.
type Meta struct {
	DeckID     string    `json:"deck_id"`
	SlideID    string    `json:"slide_id,omitempty"`
	PageNumber int       `json:"page_number,omitempty"`
	Kind       string    `json:"kind"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Object describes one stored image.
type Object struct {
	Ref       string    `json:"ref"`
	SizeBytes int64     `json:"size_bytes"`
	Meta      *Meta     `json:"meta,omitempty"`
	ModTime   time.Time `json:"mod_time"`
}

// Stats summarizes storage usage.
type Stats struct {
	Objects    int   `json:"objects"`
	TotalBytes int64 `json:"total_bytes"`
}

// Store persists slide images. Implementations must be safe for concurrent
// use; a failed write must not corrupt previously stored objects.
type Store interface {
	// Put stores data under a fresh ref within the deck's namespace and
	// writes the metadata sidecar. It returns the ref.
	Put(ctx context.Context, deckID string, data []byte, meta *Meta) (string, error)

	// Get returns the object bytes for a ref.
	Get(ctx context.Context, ref string) ([]byte, error)

	// Delete removes the object and its sidecar. Deleting a missing ref is
	// not an error.
	Delete(ctx context.Context, ref string) error

	// DeleteDeck removes every object belonging to a deck.
	DeleteDeck(ctx context.Context, deckID string) error

	// List returns the objects stored for a deck.
	List(ctx context.Context, deckID string) ([]Object, error)

	// Stats reports aggregate usage across all decks.
	Stats(ctx context.Context) (Stats, error)
}

// NewRef builds a unique object ref for a deck. The timestamp suffix keeps
// refs ordered and distinct across retries of the same slide.
func NewRef(deckID string) string {
	return fmt.Sprintf("%s/%s_%d.png", deckID, uuid.New().String(), time.Now().UnixMilli())
}

// metaRef returns the sidecar name for an image ref.
func metaRef(ref string) string {
	return ref + ".meta.json"
}

// splitRef separates a ref into deck ID and object name.
func splitRef(ref string) (deckID, name string, err error) {
	deckID, name, ok := strings.Cut(ref, "/")
	if !ok || deckID == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("malformed asset ref: %q", ref)
	}
	if strings.Contains(ref, "..") {
		return "", "", fmt.Errorf("malformed asset ref: %q", ref)
	}
	return deckID, name, nil
}
