package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/store"
)

type harness struct {
	store    store.Store
	assets   assets.Store
	provider *providers.MockImageProvider
	registry *providers.Registry
	manager  *Manager
}

func newHarness(t *testing.T, tweak func(*ManagerConfig)) *harness {
	t.Helper()

	st := store.NewMemory()
	as, err := assets.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	mock := providers.NewMockImageProvider()
	reg := providers.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg.SetLogger(logger)
	reg.RegisterImage("mock", mock)

	cfg := ManagerConfig{
		Store:           st,
		Assets:          as,
		Registry:        reg,
		Logger:          logger,
		DefaultProvider: "mock",
	}
	if tweak != nil {
		tweak(&cfg)
	}

	return &harness{
		store:    st,
		assets:   as,
		provider: mock,
		registry: reg,
		manager:  NewManager(cfg),
	}
}

// newDeck stores a deck with n pending slides and returns it.
func (h *harness) newDeck(t *testing.T, n int) *deck.Deck {
	t.Helper()
	d := deck.New("Test Deck", "testing")
	entries := make([]deck.OutlineEntry, n)
	for i := range entries {
		entries[i] = deck.OutlineEntry{
			PageNumber: i + 1,
			Heading:    fmt.Sprintf("Slide %d", i+1),
			ImageDesc:  "an illustration",
			Script:     "speaker notes",
			TitlePage:  i == 0,
		}
	}
	d.Slides = deck.BuildSlides(entries)
	d.RecomputeProgress()
	if err := h.store.PutDeck(context.Background(), d); err != nil {
		t.Fatalf("PutDeck failed: %v", err)
	}
	return d
}

func (h *harness) deck(t *testing.T, id string) *deck.Deck {
	t.Helper()
	d, err := h.store.GetDeck(context.Background(), id)
	if err != nil {
		t.Fatalf("GetDeck failed: %v", err)
	}
	return d
}

// waitFor polls until cond is true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

// checkProgress asserts the derived-progress invariant on the stored deck.
func checkProgress(t *testing.T, d *deck.Deck) {
	t.Helper()
	want := 0
	for i := range d.Slides {
		switch d.Slides[i].Status {
		case deck.SlideCompleted, deck.SlideSkipped:
			want++
		}
	}
	if d.Progress.Completed != want || d.Progress.Total != len(d.Slides) {
		t.Errorf("progress %+v inconsistent with slides (want completed=%d total=%d)",
			d.Progress, want, len(d.Slides))
	}
}

func TestStartAllSucceed(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 3)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed, got %s", got.Status)
	}
	if got.Progress.Completed != 3 || got.Progress.Total != 3 {
		t.Errorf("unexpected progress: %+v", got.Progress)
	}
	checkProgress(t, got)

	for i := range got.Slides {
		s := &got.Slides[i]
		if s.Status != deck.SlideCompleted {
			t.Errorf("slide %d status = %s", s.PageNumber, s.Status)
		}
		if s.Result == nil {
			t.Fatalf("slide %d has no result", s.PageNumber)
		}
		if s.Result.Attempts != 1 {
			t.Errorf("slide %d attempts = %d", s.PageNumber, s.Result.Attempts)
		}
		if s.Result.ImageRef == "" {
			t.Errorf("slide %d has no image ref", s.PageNumber)
		}
		if _, err := h.assets.Get(ctx, s.Result.ImageRef); err != nil {
			t.Errorf("slide %d image not retrievable: %v", s.PageNumber, err)
		}
	}
}

func TestStartNoPendingCompletesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 2)
	ctx := context.Background()

	for i := range d.Slides {
		if err := h.manager.Skip(ctx, d.ID, d.Slides[i].ID); err != nil {
			t.Fatalf("Skip failed: %v", err)
		}
	}

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := h.deck(t, d.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed, got %s", got.Status)
	}
	if h.provider.RequestCount() != 0 {
		t.Errorf("provider should not have been called, got %d calls", h.provider.RequestCount())
	}
}

func TestStartWithFailureEndsInError(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.FailAfter = 2
	d := h.newDeck(t, 3)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchError {
		t.Errorf("expected batch error, got %s", got.Status)
	}
	checkProgress(t, got)

	// One slide failed, the other two were not aborted by it.
	if n := got.CountStatus(deck.SlideFailed); n != 1 {
		t.Errorf("expected 1 failed slide, got %d", n)
	}
	if n := got.CountStatus(deck.SlideCompleted); n != 2 {
		t.Errorf("expected 2 completed slides, got %d", n)
	}
	for i := range got.Slides {
		s := &got.Slides[i]
		if s.Status == deck.SlideFailed && s.Error == "" {
			t.Error("failed slide has no error message")
		}
		if s.Status == deck.SlideCompleted && s.Error != "" {
			t.Errorf("completed slide carries error %q", s.Error)
		}
	}
}

func TestPauseRevertsRunningSlides(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 3)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d calls reached the provider", i)
		}
	}

	if err := h.manager.Pause(ctx, d.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchPaused {
		t.Errorf("expected batch paused, got %s", got.Status)
	}
	if n := got.CountStatus(deck.SlidePending); n != 3 {
		t.Errorf("expected 3 pending slides after pause, got %d", n)
	}
	if got.Progress.Completed != 0 || got.Progress.Total != 3 {
		t.Errorf("unexpected progress: %+v", got.Progress)
	}

	// Even after the cancelled calls unwind, no terminal state is written.
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()
	got = h.deck(t, d.ID)
	if got.Status != deck.BatchPaused {
		t.Errorf("batch status changed after pause: %s", got.Status)
	}
	if n := got.CountStatus(deck.SlidePending); n != 3 {
		t.Errorf("slides left pending after pause: %d", n)
	}
}

func TestPauseBeforePipelinesStart(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.Block()
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Pause can land before any pipeline has marked its slide running or
	// registered a cancel handle; those pipelines must still stand down.
	if err := h.manager.Pause(ctx, d.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}

	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchPaused {
		t.Errorf("batch status = %s, want paused", got.Status)
	}
	if n := got.CountStatus(deck.SlideCompleted); n != 0 {
		t.Errorf("%d slides completed after pause", n)
	}
	if n := got.CountStatus(deck.SlidePending); n != 2 {
		t.Errorf("expected 2 pending slides after pause, got %d", n)
	}
	checkProgress(t, got)
}

func TestRunOneRejectedWhilePaused(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Pause(ctx, d.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := h.manager.RunOne(ctx, d.ID, d.Slides[0].ID); err == nil {
		t.Error("expected error running a slide while the batch is paused")
	}
}

func TestPauseWithNothingRunning(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 2)

	if err := h.manager.Pause(context.Background(), d.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	got := h.deck(t, d.ID)
	if got.Status != deck.BatchPaused {
		t.Errorf("expected batch paused, got %s", got.Status)
	}
	if n := got.CountStatus(deck.SlidePending); n != 2 {
		t.Errorf("pause mutated idle slides: %d pending", n)
	}
}

func TestResumeFinishesBatch(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered
	if err := h.manager.Pause(ctx, d.ID); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	if err := h.manager.Resume(ctx, d.ID); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed after resume, got %s", got.Status)
	}
	checkProgress(t, got)
}

func TestRetryAllAfterFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.ShouldFail = true
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Status != deck.BatchError {
		t.Fatalf("expected batch error, got %s", got.Status)
	}
	if n := got.CountStatus(deck.SlideFailed); n != 2 {
		t.Fatalf("expected 2 failed slides, got %d", n)
	}

	h.provider.ShouldFail = false
	if err := h.manager.RetryAll(ctx, d.ID); err != nil {
		t.Fatalf("RetryAll failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got = h.deck(t, d.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed, got %s", got.Status)
	}
	for i := range got.Slides {
		s := &got.Slides[i]
		if s.Status != deck.SlideCompleted {
			t.Errorf("slide %d status = %s", s.PageNumber, s.Status)
		}
		if s.Error != "" {
			t.Errorf("slide %d still carries error %q", s.PageNumber, s.Error)
		}
		if s.Result == nil || s.Result.Attempts != 1 {
			t.Errorf("slide %d unexpected result: %+v", s.PageNumber, s.Result)
		}
	}
}

func TestRunOnePromotesAndFinalizes(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.RunOne(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	// One slide still pending, so the batch settles back to idle.
	waitFor(t, 2*time.Second, "batch to settle to idle", func() bool {
		return h.deck(t, d.ID).Status == deck.BatchIdle
	})

	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlideCompleted {
		t.Errorf("expected completed, got %s", got.Slides[0].Status)
	}
	checkProgress(t, got)

	if err := h.manager.RunOne(ctx, d.ID, d.Slides[1].ID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	waitFor(t, 2*time.Second, "batch to complete", func() bool {
		return h.deck(t, d.ID).Status == deck.BatchCompleted
	})
}

func TestRunOneRejectsSkippedAndRunning(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Skip(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if err := h.manager.RunOne(ctx, d.ID, d.Slides[0].ID); err == nil {
		t.Error("expected error running a skipped slide")
	}
	if err := h.manager.RunOne(ctx, d.ID, "no-such-slide"); err == nil {
		t.Error("expected error for unknown slide")
	}

	if err := h.manager.RunOne(ctx, d.ID, d.Slides[1].ID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	<-entered
	if err := h.manager.RunOne(ctx, d.ID, d.Slides[1].ID); err == nil {
		t.Error("expected error running an already-running slide")
	}
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()
}

func TestRetryOneIncrementsAttempts(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.ShouldFail = true
	d := h.newDeck(t, 1)
	ctx := context.Background()
	slideID := d.Slides[0].ID

	if err := h.manager.RunOne(ctx, d.ID, slideID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	waitFor(t, 2*time.Second, "slide to fail", func() bool {
		return h.deck(t, d.ID).Slides[0].Status == deck.SlideFailed
	})

	// failed -> pending -> running -> completed, attempts incremented once.
	h.provider.ShouldFail = false
	if err := h.manager.RetryOne(ctx, d.ID, slideID); err != nil {
		t.Fatalf("RetryOne failed: %v", err)
	}
	waitFor(t, 2*time.Second, "slide to complete", func() bool {
		return h.deck(t, d.ID).Slides[0].Status == deck.SlideCompleted
	})

	got := h.deck(t, d.ID)
	if got.Slides[0].Result.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", got.Slides[0].Result.Attempts)
	}

	// Retry a completed slide: attempts goes to exactly 2.
	if err := h.manager.RetryOne(ctx, d.ID, slideID); err != nil {
		t.Fatalf("RetryOne failed: %v", err)
	}
	waitFor(t, 2*time.Second, "second retry to complete", func() bool {
		s := h.deck(t, d.ID).Slides[0]
		return s.Status == deck.SlideCompleted && s.Result.Attempts == 2
	})
}

func TestStopOneCancellationWins(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 1)
	ctx := context.Background()
	slideID := d.Slides[0].ID

	if err := h.manager.RunOne(ctx, d.ID, slideID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	<-entered

	if err := h.manager.StopOne(ctx, d.ID, slideID); err != nil {
		t.Fatalf("StopOne failed: %v", err)
	}
	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlidePending {
		t.Fatalf("expected pending after stop, got %s", got.Slides[0].Status)
	}

	// The in-flight call now resolves; the stop must still win.
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	got = h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlidePending {
		t.Errorf("stopped slide ended as %s, cancellation must win", got.Slides[0].Status)
	}
	if got.Slides[0].Result != nil {
		t.Error("stopped slide must not have a result")
	}
	if got.Slides[0].Error != "" {
		t.Errorf("stopped slide must not record an error, got %q", got.Slides[0].Error)
	}
}

func TestStopOneSiblingUnaffected(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered
	<-entered

	if err := h.manager.StopOne(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Fatalf("StopOne failed: %v", err)
	}
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlidePending {
		t.Errorf("stopped slide status = %s", got.Slides[0].Status)
	}
	if got.Slides[1].Status != deck.SlideCompleted {
		t.Errorf("sibling slide status = %s, stop must not touch siblings", got.Slides[1].Status)
	}
	checkProgress(t, got)
}

func TestSkipTransitions(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 3)
	ctx := context.Background()

	// pending -> skipped counts toward progress.
	if err := h.manager.Skip(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlideSkipped {
		t.Errorf("expected skipped, got %s", got.Slides[0].Status)
	}
	if got.Progress.Completed != 1 {
		t.Errorf("skipped slide must count as completed, progress %+v", got.Progress)
	}

	// Skipping a running slide is rejected.
	if err := h.manager.RunOne(ctx, d.ID, d.Slides[1].ID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	<-entered
	if err := h.manager.Skip(ctx, d.ID, d.Slides[1].ID); err == nil {
		t.Error("expected error skipping a running slide")
	}
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	// Skipping a completed slide is rejected; skipping twice is a no-op.
	if err := h.manager.Skip(ctx, d.ID, d.Slides[1].ID); err == nil {
		t.Error("expected error skipping a completed slide")
	}
	if err := h.manager.Skip(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Errorf("second skip should be a no-op, got %v", err)
	}
}

func TestUploadManual(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 2)
	ctx := context.Background()
	image := []byte("user-supplied-image")

	if err := h.manager.UploadManual(ctx, d.ID, d.Slides[0].ID, image); err != nil {
		t.Fatalf("UploadManual failed: %v", err)
	}

	got := h.deck(t, d.ID)
	s := &got.Slides[0]
	if s.Status != deck.SlideCompleted {
		t.Errorf("expected completed, got %s", s.Status)
	}
	if s.Manual == nil {
		t.Fatal("manual override not recorded")
	}
	if s.Manual.ImageRef == "" {
		t.Error("manual image was not persisted")
	}
	if data, err := h.assets.Get(ctx, s.Manual.ImageRef); err != nil || string(data) != string(image) {
		t.Errorf("persisted manual image mismatch: %v", err)
	}
	if !s.HasImage() {
		t.Error("completed slide must have an image")
	}
	if got.Progress.Completed != 1 {
		t.Errorf("unexpected progress: %+v", got.Progress)
	}

	if err := h.manager.UploadManual(ctx, d.ID, d.Slides[0].ID, nil); err == nil {
		t.Error("expected error for empty upload")
	}
	if err := h.manager.UploadManual(ctx, d.ID, "no-such-slide", image); err == nil {
		t.Error("expected error for unknown slide")
	}
}

func TestUploadManualRejectedWhileRunning(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	d := h.newDeck(t, 1)
	ctx := context.Background()

	if err := h.manager.RunOne(ctx, d.ID, d.Slides[0].ID); err != nil {
		t.Fatalf("RunOne failed: %v", err)
	}
	<-entered

	if err := h.manager.UploadManual(ctx, d.ID, d.Slides[0].ID, []byte("img")); err == nil {
		t.Error("expected error uploading onto a running slide")
	}
	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()
}

func TestActiveDeckSwitchMidRun(t *testing.T) {
	h := newHarness(t, nil)
	entered := h.provider.Block()
	owner := h.newDeck(t, 2)
	other := h.newDeck(t, 2)
	ctx := context.Background()

	if err := h.store.SetActiveDeck(ctx, owner.ID); err != nil {
		t.Fatalf("SetActiveDeck failed: %v", err)
	}
	if err := h.manager.Start(ctx, owner.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered
	<-entered

	// User switches decks while the batch is in flight.
	if err := h.store.SetActiveDeck(ctx, other.ID); err != nil {
		t.Fatalf("SetActiveDeck failed: %v", err)
	}
	h.provider.Release()
	h.manager.ForDeck(owner.ID).Wait()

	got := h.deck(t, owner.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("owning deck status = %s", got.Status)
	}
	for i := range got.Slides {
		if got.Slides[i].Status != deck.SlideCompleted {
			t.Errorf("owning deck slide %d status = %s", i, got.Slides[i].Status)
		}
	}

	// The newly active deck is untouched.
	unrelated := h.deck(t, other.ID)
	if unrelated.Status != deck.BatchIdle {
		t.Errorf("active deck status = %s, must be unaffected", unrelated.Status)
	}
	for i := range unrelated.Slides {
		if unrelated.Slides[i].Status != deck.SlidePending {
			t.Errorf("active deck slide %d status = %s", i, unrelated.Slides[i].Status)
		}
	}
}

func TestPreconditionFailureSkipsNetworkCall(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 1)
	ctx := context.Background()

	// The deck references a base style image that does not exist.
	err := h.store.UpdateDeck(ctx, d.ID, func(dd *deck.Deck) error {
		dd.Style.BaseImageRef = d.ID + "/missing.png"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateDeck failed: %v", err)
	}

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlideFailed {
		t.Fatalf("expected failed, got %s", got.Slides[0].Status)
	}
	if !strings.Contains(got.Slides[0].Error, "reference image") {
		t.Errorf("unexpected error message: %q", got.Slides[0].Error)
	}
	if h.provider.RequestCount() != 0 {
		t.Errorf("provider must not be called on precondition failure, got %d calls", h.provider.RequestCount())
	}
	if got.Status != deck.BatchError {
		t.Errorf("expected batch error, got %s", got.Status)
	}
}

func TestBaseReferenceImageForwarded(t *testing.T) {
	h := newHarness(t, nil)
	d := h.newDeck(t, 1)
	ctx := context.Background()

	ref, err := h.assets.Put(ctx, d.ID, []byte("style-reference"), &assets.Meta{DeckID: d.ID, Kind: assets.KindBase})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	err = h.store.UpdateDeck(ctx, d.ID, func(dd *deck.Deck) error {
		dd.Style.BaseImageRef = ref
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateDeck failed: %v", err)
	}

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	if got.Slides[0].Status != deck.SlideCompleted {
		t.Errorf("expected completed, got %s (error %q)", got.Slides[0].Status, got.Slides[0].Error)
	}
}

func TestPersistenceFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, func(cfg *ManagerConfig) {
		cfg.Assets = &failingAssets{}
	})
	d := h.newDeck(t, 1)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	got := h.deck(t, d.ID)
	s := &got.Slides[0]
	if s.Status != deck.SlideCompleted {
		t.Fatalf("expected completed despite persist failure, got %s (error %q)", s.Status, s.Error)
	}
	if s.Result.ImageRef != "" {
		t.Error("expected empty image ref when persistence fails")
	}
	if len(s.Result.ImageData) == 0 {
		t.Error("expected in-memory image data when persistence fails")
	}
}

func TestGenerateConsumesRateBudget(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.RatePerSec = 100
	h.registry.RegisterImage("mock", h.provider) // pick up the rate
	d := h.newDeck(t, 3)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.manager.ForDeck(d.ID).Wait()

	status := h.registry.ImageLimiter("mock").Status()
	if status.TotalConsumed != 3 {
		t.Errorf("limiter consumed %d tokens, want one per generation call", status.TotalConsumed)
	}
	if got := h.deck(t, d.ID); got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed, got %s", got.Status)
	}
}

func TestMaxConcurrentBoundsParallelCalls(t *testing.T) {
	h := newHarness(t, func(cfg *ManagerConfig) {
		cfg.MaxConcurrent = 1
	})
	entered := h.provider.Block()
	d := h.newDeck(t, 3)
	ctx := context.Background()

	if err := h.manager.Start(ctx, d.ID); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	<-entered
	select {
	case <-entered:
		t.Fatal("second call reached the provider despite cap of 1")
	case <-time.After(100 * time.Millisecond):
	}

	// All slides were still marked running (all-items-attempted contract).
	got := h.deck(t, d.ID)
	if n := got.CountStatus(deck.SlideRunning); n != 3 {
		t.Errorf("expected 3 running slides, got %d", n)
	}

	h.provider.Release()
	h.manager.ForDeck(d.ID).Wait()

	got = h.deck(t, d.ID)
	if got.Status != deck.BatchCompleted {
		t.Errorf("expected batch completed, got %s", got.Status)
	}
}

// failingAssets rejects every write and read.
type failingAssets struct{}

func (f *failingAssets) Put(ctx context.Context, deckID string, data []byte, meta *assets.Meta) (string, error) {
	return "", fmt.Errorf("storage unavailable")
}

func (f *failingAssets) Get(ctx context.Context, ref string) ([]byte, error) {
	return nil, fmt.Errorf("storage unavailable")
}

func (f *failingAssets) Delete(ctx context.Context, ref string) error      { return nil }
func (f *failingAssets) DeleteDeck(ctx context.Context, id string) error   { return nil }
func (f *failingAssets) List(ctx context.Context, id string) ([]assets.Object, error) {
	return nil, nil
}
func (f *failingAssets) Stats(ctx context.Context) (assets.Stats, error) { return assets.Stats{}, nil }
