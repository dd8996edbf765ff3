package batch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/store"
)

// ManagerConfig wires the manager's collaborators.
type ManagerConfig struct {
	Store           store.Store
	Assets          assets.Store
	Registry        *providers.Registry
	Logger          *slog.Logger
	DefaultProvider string
	// MaxConcurrent bounds parallel provider calls per deck. Zero means
	// unbounded fan-out.
	MaxConcurrent int
	// PreviewWidth is the derived preview width in pixels. Zero uses the
	// assets package default.
	PreviewWidth int
}

// Manager hands out one orchestrator per deck and keeps it for the deck's
// lifetime, so cancellation handles and the paused flag survive across
// requests.
type Manager struct {
	store           store.Store
	assets          assets.Store
	registry        *providers.Registry
	logger          *slog.Logger
	defaultProvider string
	maxConcurrent   int
	previewWidth    int

	mu            sync.Mutex
	orchestrators map[string]*Orchestrator
}

// NewManager creates a manager with no live orchestrators.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:           cfg.Store,
		assets:          cfg.Assets,
		registry:        cfg.Registry,
		logger:          logger,
		defaultProvider: cfg.DefaultProvider,
		maxConcurrent:   cfg.MaxConcurrent,
		previewWidth:    cfg.PreviewWidth,
		orchestrators:   make(map[string]*Orchestrator),
	}
}

// ForDeck returns the deck's orchestrator, creating it on first use.
func (m *Manager) ForDeck(deckID string) *Orchestrator {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orchestrators[deckID]; ok {
		return o
	}
	o := newOrchestrator(deckID, m)
	m.orchestrators[deckID] = o
	return o
}

// Drop pauses and forgets a deck's orchestrator. Called when a deck is
// deleted so in-flight jobs stop writing to it.
func (m *Manager) Drop(ctx context.Context, deckID string) {
	m.mu.Lock()
	o, ok := m.orchestrators[deckID]
	if ok {
		delete(m.orchestrators, deckID)
	}
	m.mu.Unlock()

	if ok {
		o.paused.Store(true)
		o.handles.cancelAll()
	}
}

// Shutdown cancels every in-flight job across all decks and waits for the
// pipelines to settle.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	orchestrators := make([]*Orchestrator, 0, len(m.orchestrators))
	for _, o := range m.orchestrators {
		orchestrators = append(orchestrators, o)
	}
	m.mu.Unlock()

	for _, o := range orchestrators {
		o.paused.Store(true)
		o.handles.cancelAll()
	}
	done := make(chan struct{})
	go func() {
		for _, o := range orchestrators {
			o.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timed out waiting for in-flight jobs")
	}
}

// Start runs the batch for a deck.
func (m *Manager) Start(ctx context.Context, deckID string) error {
	return m.ForDeck(deckID).Start(ctx)
}

// Pause hard-stops the deck's batch.
func (m *Manager) Pause(ctx context.Context, deckID string) error {
	return m.ForDeck(deckID).Pause(ctx)
}

// Resume continues a paused batch.
func (m *Manager) Resume(ctx context.Context, deckID string) error {
	return m.ForDeck(deckID).Resume(ctx)
}

// RetryAll reruns every failed slide in the deck.
func (m *Manager) RetryAll(ctx context.Context, deckID string) error {
	return m.ForDeck(deckID).RetryAll(ctx)
}

// RunOne runs a single slide.
func (m *Manager) RunOne(ctx context.Context, deckID, slideID string) error {
	return m.ForDeck(deckID).RunOne(ctx, slideID)
}

// RetryOne re-runs a single slide.
func (m *Manager) RetryOne(ctx context.Context, deckID, slideID string) error {
	return m.ForDeck(deckID).RetryOne(ctx, slideID)
}

// StopOne cancels a single slide's in-flight call.
func (m *Manager) StopOne(ctx context.Context, deckID, slideID string) error {
	return m.ForDeck(deckID).StopOne(ctx, slideID)
}

// Skip marks a slide skipped.
func (m *Manager) Skip(ctx context.Context, deckID, slideID string) error {
	return m.ForDeck(deckID).Skip(ctx, slideID)
}

// UploadManual attaches a user image to a slide.
func (m *Manager) UploadManual(ctx context.Context, deckID, slideID string, image []byte) error {
	return m.ForDeck(deckID).UploadManual(ctx, slideID, image)
}
