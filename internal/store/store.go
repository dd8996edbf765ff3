// Package store provides the deck repository. The orchestrator never touches
// a "live" deck object directly; every read and write goes through a Store so
// that updates land on the deck that owns the job, regardless of which deck
// is currently active.
package store

import (
	"context"
	"errors"

	"github.com/easelhq/easel/internal/deck"
)

// ErrDeckNotFound is returned when a deck id does not resolve.
var ErrDeckNotFound = errors.New("deck not found")

// Store is the deck repository contract. UpdateDeck must be an atomic
// read-modify-write over the current persisted value: two concurrent slide
// completions for the same deck must both observe each other's writes.
type Store interface {
	// GetDeck returns a copy of the deck. Mutating the returned value does
	// not affect the stored deck.
	GetDeck(ctx context.Context, id string) (*deck.Deck, error)

	// ListDecks returns copies of all decks.
	ListDecks(ctx context.Context) ([]*deck.Deck, error)

	// PutDeck inserts or replaces a deck.
	PutDeck(ctx context.Context, d *deck.Deck) error

	// DeleteDeck removes a deck.
	DeleteDeck(ctx context.Context, id string) error

	// UpdateDeck applies fn to the current value of the deck under the
	// store's write lock and persists the result. fn returning an error
	// aborts the update.
	UpdateDeck(ctx context.Context, id string, fn func(*deck.Deck) error) error

	// ActiveDeckID returns the id of the currently displayed deck, or "".
	ActiveDeckID(ctx context.Context) (string, error)

	// SetActiveDeck marks a deck as the currently displayed one.
	SetActiveDeck(ctx context.Context, id string) error
}
