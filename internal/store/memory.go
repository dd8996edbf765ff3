package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/easelhq/easel/internal/deck"
)

// Memory is an in-process Store. It backs orchestrator tests and is useful
// for ephemeral runs without a data directory.
type Memory struct {
	mu     sync.RWMutex
	decks  map[string]*deck.Deck
	active string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{decks: make(map[string]*deck.Deck)}
}

// cloneDeck deep-copies a deck through JSON so callers can never alias the
// stored value.
func cloneDeck(d *deck.Deck) (*deck.Deck, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to clone deck: %w", err)
	}
	var out deck.Deck
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to clone deck: %w", err)
	}
	return &out, nil
}

func (m *Memory) GetDeck(ctx context.Context, id string) (*deck.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.decks[id]
	if !ok {
		return nil, ErrDeckNotFound
	}
	return cloneDeck(d)
}

func (m *Memory) ListDecks(ctx context.Context) ([]*deck.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*deck.Deck, 0, len(m.decks))
	for _, d := range m.decks {
		c, err := cloneDeck(d)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *Memory) PutDeck(ctx context.Context, d *deck.Deck) error {
	c, err := cloneDeck(d)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.decks[d.ID] = c
	return nil
}

func (m *Memory) DeleteDeck(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.decks[id]; !ok {
		return ErrDeckNotFound
	}
	delete(m.decks, id)
	if m.active == id {
		m.active = ""
	}
	return nil
}

func (m *Memory) UpdateDeck(ctx context.Context, id string, fn func(*deck.Deck) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.decks[id]
	if !ok {
		return ErrDeckNotFound
	}

	work, err := cloneDeck(d)
	if err != nil {
		return err
	}
	if err := fn(work); err != nil {
		return err
	}
	work.Touch()
	m.decks[id] = work
	return nil
}

func (m *Memory) ActiveDeckID(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, nil
}

func (m *Memory) SetActiveDeck(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.decks[id]; !ok {
		return ErrDeckNotFound
	}
	m.active = id
	return nil
}

var _ Store = (*Memory)(nil)
