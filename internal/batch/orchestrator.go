// Package batch drives slide generation: fanning out one cancellable
// generation job per pending slide, tracking per-slide status transitions,
// and keeping results attached to the deck that owns them even when the user
// switches to a different deck mid-run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/prompt"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/store"
)

// ErrSlideNotFound is returned when a slide id does not resolve within the
// orchestrator's deck.
var ErrSlideNotFound = errors.New("slide not found")

const persistAttempts = 3

// Orchestrator runs the generation batch for a single deck. All state reads
// and writes go through the store keyed by the owning deck's id, so updates
// land on that deck regardless of which deck is currently active.
//
// Top-level operations (Start, Pause, Resume, RetryAll) are serialized by a
// per-deck mutex; per-slide pipelines run concurrently.
type Orchestrator struct {
	deckID          string
	store           store.Store
	assets          assets.Store
	registry        *providers.Registry
	logger          *slog.Logger
	defaultProvider string
	previewWidth    int

	mu      sync.Mutex
	paused  atomic.Bool
	running atomic.Int64
	handles *cancelRegistry
	sem     chan struct{} // nil when fan-out is unbounded
	wg      sync.WaitGroup
}

func newOrchestrator(deckID string, m *Manager) *Orchestrator {
	o := &Orchestrator{
		deckID:          deckID,
		store:           m.store,
		assets:          m.assets,
		registry:        m.registry,
		logger:          m.logger.With("deck", deckID),
		defaultProvider: m.defaultProvider,
		previewWidth:    m.previewWidth,
		handles:         newCancelRegistry(),
	}
	if m.maxConcurrent > 0 {
		o.sem = make(chan struct{}, m.maxConcurrent)
	}
	return o
}

// Start launches one generation job per pending slide and returns. The jobs
// run in the background; when all have settled the batch status is derived
// from the final slide statuses unless a pause intervened.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused.Store(false)

	var pending []string
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		for i := range d.Slides {
			if d.Slides[i].Status == deck.SlidePending {
				pending = append(pending, d.Slides[i].ID)
			}
		}
		if len(pending) == 0 {
			d.Status = deck.BatchCompleted
		} else {
			d.Status = deck.BatchRunning
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		o.logger.Info("no pending slides, batch complete")
		return nil
	}

	o.logger.Info("starting batch", "pending", len(pending))
	o.launch(context.WithoutCancel(ctx), pending)
	return nil
}

// Pause cancels every in-flight job and synchronously reverts every running
// slide back to pending. No partial results are kept for in-flight work.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.paused.Store(true)
	cancelled := o.handles.cancelAll()

	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		for i := range d.Slides {
			if d.Slides[i].Status == deck.SlideRunning {
				if err := d.Slides[i].Transition(deck.SlidePending); err != nil {
					return err
				}
			}
		}
		d.Status = deck.BatchPaused
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	if err != nil {
		return err
	}
	o.logger.Info("paused batch", "cancelled", cancelled)
	return nil
}

// Resume clears the paused flag and re-runs the pending-slide scan.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.paused.Store(false)
	return o.Start(ctx)
}

// RetryAll reverts every failed slide to pending and starts the batch again.
func (o *Orchestrator) RetryAll(ctx context.Context) error {
	o.mu.Lock()
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		for i := range d.Slides {
			if d.Slides[i].Status == deck.SlideFailed {
				if err := d.Slides[i].Transition(deck.SlidePending); err != nil {
					return err
				}
			}
		}
		d.Status = deck.BatchIdle
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	o.mu.Unlock()
	if err != nil {
		return err
	}
	return o.Start(ctx)
}

// RunOne runs a single slide's generation without requiring the whole batch
// to be idle. It rejects slides that cannot legally start.
func (o *Orchestrator) RunOne(ctx context.Context, slideID string) error {
	o.mu.Lock()
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if d.Status == deck.BatchPaused {
			return fmt.Errorf("batch is paused, resume before running slides")
		}
		switch s.Status {
		case deck.SlidePending, deck.SlideFailed, deck.SlideCompleted:
		case deck.SlideRunning:
			return fmt.Errorf("slide %s is already running", slideID)
		default:
			return fmt.Errorf("slide %s cannot run from status %s", slideID, s.Status)
		}
		switch d.Status {
		case deck.BatchIdle, deck.BatchCompleted, deck.BatchError:
			d.Status = deck.BatchRunning
		}
		d.Touch()
		return nil
	})
	o.mu.Unlock()
	if err != nil {
		return err
	}

	base := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.runSlide(base, slideID); err != nil {
			o.logger.Warn("slide run failed", "slide", slideID, "error", err)
		}
		o.finishSingle(base)
	}()
	return nil
}

// RetryOne re-runs a failed or completed slide.
func (o *Orchestrator) RetryOne(ctx context.Context, slideID string) error {
	return o.RunOne(ctx, slideID)
}

// StopOne cancels only the given slide's in-flight call and reverts it to
// pending. The cancelled pipeline observes the cancellation and never writes
// a terminal state on top of the revert.
func (o *Orchestrator) StopOne(ctx context.Context, slideID string) error {
	o.handles.cancelOne(slideID)
	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if s.Status == deck.SlideRunning {
			if err := s.Transition(deck.SlidePending); err != nil {
				return err
			}
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// Skip marks a pending or failed slide as skipped. A running slide must be
// stopped first.
func (o *Orchestrator) Skip(ctx context.Context, slideID string) error {
	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if s.Status == deck.SlideRunning {
			return fmt.Errorf("slide %s is running, stop it before skipping", slideID)
		}
		if s.Status == deck.SlideSkipped {
			return nil
		}
		if err := s.Transition(deck.SlideSkipped); err != nil {
			return err
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// UploadManual attaches a user-provided image as the slide's manual override
// and marks the slide completed, whether or not a generation attempt ever ran.
func (o *Orchestrator) UploadManual(ctx context.Context, slideID string, image []byte) error {
	if len(image) == 0 {
		return fmt.Errorf("empty image upload")
	}

	snapshot, err := o.store.GetDeck(ctx, o.deckID)
	if err != nil {
		return err
	}
	s := snapshot.Slide(slideID)
	if s == nil {
		return ErrSlideNotFound
	}
	if s.Status == deck.SlideRunning {
		return fmt.Errorf("slide %s is running, stop it before uploading", slideID)
	}

	previewData, err := assets.MakePreview(image, o.previewWidth)
	if err != nil {
		o.logger.Warn("failed to derive preview for manual upload", "slide", slideID, "error", err)
		previewData = nil
	}

	now := time.Now().UTC()
	imageRef := o.persist(ctx, s, image, assets.KindManual, "", "")
	previewRef := ""
	if previewData != nil {
		previewRef = o.persist(ctx, s, previewData, assets.KindPreview, "", "")
	}

	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if s.Status == deck.SlideRunning {
			return fmt.Errorf("slide %s is running, stop it before uploading", slideID)
		}
		manual := &deck.ManualImage{
			ImageRef:   imageRef,
			PreviewRef: previewRef,
			UploadedAt: now,
		}
		if imageRef == "" {
			manual.ImageData = image
		}
		if previewRef == "" {
			manual.PreviewData = previewData
		}
		s.Manual = manual
		// A manual upload completes the slide outside the generation state
		// machine: it is legal from any non-running status.
		s.Status = deck.SlideCompleted
		s.Error = ""
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// InFlight returns the number of slides currently in the generation pipeline.
func (o *Orchestrator) InFlight() int {
	return int(o.running.Load())
}

// Wait blocks until every launched pipeline has settled.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// launch fans out one pipeline per slide and finalizes the batch status once
// all of them have settled.
func (o *Orchestrator) launch(ctx context.Context, slideIDs []string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		var wg sync.WaitGroup
		for _, id := range slideIDs {
			wg.Add(1)
			go func(slideID string) {
				defer wg.Done()
				if err := o.runSlide(ctx, slideID); err != nil {
					o.logger.Warn("slide run failed", "slide", slideID, "error", err)
				}
			}(id)
		}
		wg.Wait()
		o.finishBatch(ctx)
	}()
}

// finishBatch derives the batch status after a full run. A pause that
// occurred during the run already set the status; it is left untouched.
func (o *Orchestrator) finishBatch(ctx context.Context) {
	if o.paused.Load() {
		return
	}
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		if d.Status == deck.BatchPaused {
			return nil
		}
		if d.CountStatus(deck.SlideRunning) > 0 {
			return nil
		}
		switch {
		case d.CountStatus(deck.SlideFailed) > 0:
			d.Status = deck.BatchError
		case d.Done():
			d.Status = deck.BatchCompleted
		default:
			d.Status = deck.BatchIdle
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	if err != nil {
		o.logger.Warn("failed to finalize batch status", "error", err)
		return
	}
	o.logger.Info("batch finished")
}

// finishSingle re-evaluates the batch status after a single-slide run, but
// only when no pause is in effect and no other slide is still running.
func (o *Orchestrator) finishSingle(ctx context.Context) {
	if o.paused.Load() || o.running.Load() > 0 {
		return
	}
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		if d.Status == deck.BatchPaused || d.CountStatus(deck.SlideRunning) > 0 {
			return nil
		}
		if d.Done() {
			d.Status = deck.BatchCompleted
		} else {
			d.Status = deck.BatchIdle
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	if err != nil {
		o.logger.Warn("failed to finalize batch status", "error", err)
	}
}

// runSlide drives one slide through the generation pipeline: mark running,
// register a cancellation handle, assemble the request, call the provider,
// post-process, and write the terminal state. A cancelled call never writes
// a terminal state; the cancelling path owns the revert to pending.
func (o *Orchestrator) runSlide(ctx context.Context, slideID string) error {
	o.running.Add(1)
	defer o.running.Add(-1)

	// A pause that lands between the pending scan and this pipeline starting
	// must win; the slide stays pending.
	if o.paused.Load() {
		return nil
	}

	var snap deck.Slide
	var style deck.DeckStyle
	err := o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if err := s.Transition(deck.SlideRunning); err != nil {
			return err
		}
		snap = *s
		style = d.Style
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
	if err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := o.handles.acquire(slideID, cancel)
	defer release()

	// A pause that landed between the running transition and handle
	// registration saw neither a pending slide nor a cancel handle. Finish
	// the revert it could not perform.
	if o.paused.Load() {
		return o.revertPending(ctx, slideID)
	}

	providerName, provider, err := o.provider(style)
	if err != nil {
		return o.failSlide(ctx, jobCtx, slideID, err.Error())
	}

	req, err := o.buildRequest(ctx, &snap, style, provider)
	if err != nil {
		// Precondition failure: fail without attempting the network call.
		return o.failSlide(ctx, jobCtx, slideID, err.Error())
	}

	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-jobCtx.Done():
			return nil
		}
	}

	if err := o.registry.ImageLimiter(providerName).Wait(jobCtx); err != nil {
		// Cancelled while queued for the provider's request budget; the
		// cancelling path owns the revert.
		return nil
	}

	o.logger.Debug("generating slide image", "slide", slideID, "page", snap.PageNumber, "provider", provider.Name())
	result, genErr := provider.GenerateImage(jobCtx, req)
	if jobCtx.Err() != nil {
		// Cancellation wins: the pause/stop path reverted the slide.
		return nil
	}
	if genErr != nil {
		msg := genErr.Error()
		if result != nil && result.ErrorMessage != "" {
			msg = result.ErrorMessage
		}
		return o.failSlide(ctx, jobCtx, slideID, msg)
	}

	previewData, err := assets.MakePreview(result.Image, o.previewWidth)
	if err != nil {
		o.logger.Warn("failed to derive preview", "slide", slideID, "error", err)
		previewData = nil
	}
	imageRef := o.persist(ctx, &snap, result.Image, assets.KindGenerated, result.Provider, result.ModelUsed)
	previewRef := ""
	if previewData != nil {
		previewRef = o.persist(ctx, &snap, previewData, assets.KindPreview, result.Provider, result.ModelUsed)
	}

	now := time.Now().UTC()
	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if jobCtx.Err() != nil || s.Status != deck.SlideRunning {
			// Reverted while we were finishing; drop the result.
			return nil
		}
		res := &deck.SlideResult{
			ImageRef:    imageRef,
			PreviewRef:  previewRef,
			GeneratedAt: now,
			// Attempt count is read from the stored slide at write time,
			// not from the snapshot taken before the call.
			Attempts: s.Attempts() + 1,
		}
		if imageRef == "" {
			res.ImageData = result.Image
		}
		if previewRef == "" {
			res.PreviewData = previewData
		}
		if err := s.Transition(deck.SlideCompleted); err != nil {
			return err
		}
		s.Result = res
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// revertPending undoes the running transition for a pipeline that must not
// proceed. A no-op when the cancelling path already reverted the slide.
func (o *Orchestrator) revertPending(ctx context.Context, slideID string) error {
	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if s.Status == deck.SlideRunning {
			if err := s.Transition(deck.SlidePending); err != nil {
				return err
			}
		}
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// failSlide writes a failed status unless the job was cancelled or the slide
// was already reverted.
func (o *Orchestrator) failSlide(ctx, jobCtx context.Context, slideID, msg string) error {
	return o.store.UpdateDeck(ctx, o.deckID, func(d *deck.Deck) error {
		s := d.Slide(slideID)
		if s == nil {
			return ErrSlideNotFound
		}
		if jobCtx.Err() != nil || s.Status != deck.SlideRunning {
			return nil
		}
		if err := s.Transition(deck.SlideFailed); err != nil {
			return err
		}
		s.Error = msg
		d.RecomputeProgress()
		d.Touch()
		return nil
	})
}

// buildRequest assembles the provider request: base style reference image,
// supplementary images, and the composed instruction text. A missing base
// reference is a precondition failure; missing supplements degrade with a
// warning.
func (o *Orchestrator) buildRequest(ctx context.Context, s *deck.Slide, style deck.DeckStyle, provider providers.ImageProvider) (*providers.ImageRequest, error) {
	var refs [][]byte
	if provider.SupportsReferenceImages() {
		if style.BaseImageRef != "" {
			base, err := o.assets.Get(ctx, style.BaseImageRef)
			if err != nil {
				return nil, fmt.Errorf("base reference image unavailable: %w", err)
			}
			refs = append(refs, base)
		}
		if s.Supplement != nil {
			for _, ref := range s.Supplement.ImageRefs {
				img, err := o.assets.Get(ctx, ref)
				if err != nil {
					o.logger.Warn("supplementary image unavailable", "slide", s.ID, "ref", ref, "error", err)
					continue
				}
				refs = append(refs, img)
			}
		}
	}

	return &providers.ImageRequest{
		Prompt:          prompt.BuildInstruction(s, style),
		ReferenceImages: refs,
		AspectRatio:     style.AspectRatio,
		ImageSize:       style.ImageSize,
		Model:           style.Model,
		RequestID:       s.ID,
	}, nil
}

// persist writes an asset with bounded retries. Persistence failure is
// non-fatal; the caller falls back to in-memory data and an empty ref is
// returned.
func (o *Orchestrator) persist(ctx context.Context, s *deck.Slide, data []byte, kind, provider, model string) string {
	meta := &assets.Meta{
		DeckID:     o.deckID,
		SlideID:    s.ID,
		PageNumber: s.PageNumber,
		Kind:       kind,
		Provider:   provider,
		Model:      model,
		CreatedAt:  time.Now().UTC(),
	}

	var ref string
	err := retry.Do(
		func() error {
			var err error
			ref, err = o.assets.Put(ctx, o.deckID, data, meta)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(persistAttempts),
		retry.Delay(200*time.Millisecond),
	)
	if err != nil {
		o.logger.Warn("failed to persist asset, keeping in memory", "slide", s.ID, "kind", kind, "error", err)
		return ""
	}
	return ref
}

func (o *Orchestrator) provider(style deck.DeckStyle) (string, providers.ImageProvider, error) {
	name := style.Provider
	if name == "" {
		name = o.defaultProvider
	}
	provider, err := o.registry.GetImage(name)
	if err != nil {
		return "", nil, fmt.Errorf("no image provider available: %w", err)
	}
	return name, provider, nil
}
