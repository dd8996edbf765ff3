package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/easelhq/easel/internal/assets"
	"github.com/easelhq/easel/internal/batch"
	"github.com/easelhq/easel/internal/deck"
	"github.com/easelhq/easel/internal/outline"
	"github.com/easelhq/easel/internal/providers"
	"github.com/easelhq/easel/internal/server/endpoints"
	"github.com/easelhq/easel/internal/store"
	"github.com/easelhq/easel/internal/svcctx"
)

type testEnv struct {
	srv      *httptest.Server
	store    store.Store
	provider *providers.MockImageProvider
	llm      *providers.MockLLMClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st := store.NewMemory()
	as, err := assets.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create asset store: %v", err)
	}

	provider := providers.NewMockImageProvider()
	llm := providers.NewMockLLMClient()

	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.RegisterImage(providers.MockImageName, provider)
	registry.RegisterLLM(providers.MockLLMName, llm)

	manager := batch.NewManager(batch.ManagerConfig{
		Store:           st,
		Assets:          as,
		Registry:        registry,
		Logger:          logger,
		DefaultProvider: providers.MockImageName,
	})

	srv, err := New(Config{
		Services: &svcctx.Services{
			Store:       st,
			Manager:     manager,
			Registry:    registry,
			Assets:      as,
			Synthesizer: outline.NewSynthesizer(llm, "", logger),
			Logger:      logger,
		},
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{srv: ts, store: st, provider: provider, llm: llm}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, data
}

func (e *testEnv) createDeck(t *testing.T, title string, slides int) *deck.Deck {
	t.Helper()

	entries := make([]deck.OutlineEntry, 0, slides)
	for i := 1; i <= slides; i++ {
		entries = append(entries, deck.OutlineEntry{
			PageNumber: i,
			Heading:    fmt.Sprintf("Slide %d", i),
			ImageDesc:  "a diagram",
		})
	}

	resp, data := e.do(t, "POST", "/api/decks", endpoints.CreateDeckRequest{
		Title:   title,
		Outline: entries,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create deck status = %d, body = %s", resp.StatusCode, data)
	}

	var d deck.Deck
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("failed to decode deck: %v", err)
	}
	return &d
}

func waitForDeck(t *testing.T, e *testEnv, deckID, desc string, cond func(*deck.Deck) bool) *deck.Deck {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, data := e.do(t, "GET", "/api/decks/"+deckID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get deck status = %d, body = %s", resp.StatusCode, data)
		}
		var d deck.Deck
		if err := json.Unmarshal(data, &d); err != nil {
			t.Fatalf("failed to decode deck: %v", err)
		}
		if cond(&d) {
			return &d
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("deck %s: timed out waiting for %s", deckID, desc)
	return nil
}

func waitForDeckStatus(t *testing.T, e *testEnv, deckID string, want deck.GenerationStatus) *deck.Deck {
	t.Helper()
	return waitForDeck(t, e, deckID, "status "+string(want), func(d *deck.Deck) bool {
		return d.Status == want
	})
}

func TestHealthEndpoints(t *testing.T) {
	e := newTestEnv(t)

	t.Run("health", func(t *testing.T) {
		resp, data := e.do(t, "GET", "/health", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var health endpoints.HealthResponse
		if err := json.Unmarshal(data, &health); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if health.Status != "ok" {
			t.Errorf("Status = %q, want %q", health.Status, "ok")
		}
	})

	t.Run("ready", func(t *testing.T) {
		resp, data := e.do(t, "GET", "/ready", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var health endpoints.HealthResponse
		if err := json.Unmarshal(data, &health); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if health.Store != "ok" {
			t.Errorf("Store = %q, want %q", health.Store, "ok")
		}
	})

	t.Run("status lists providers", func(t *testing.T) {
		resp, data := e.do(t, "GET", "/status", nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		var status endpoints.StatusResponse
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(status.Providers.Image) != 1 || status.Providers.Image[0] != providers.MockImageName {
			t.Errorf("Providers.Image = %v, want [mock]", status.Providers.Image)
		}
	})
}

func TestDeckCRUD(t *testing.T) {
	e := newTestEnv(t)

	d := e.createDeck(t, "Quarterly Review", 3)
	if len(d.Slides) != 3 {
		t.Fatalf("expected 3 slides, got %d", len(d.Slides))
	}
	if d.Status != deck.BatchIdle {
		t.Errorf("new deck status = %s, want %s", d.Status, deck.BatchIdle)
	}

	t.Run("first deck becomes active", func(t *testing.T) {
		resp, data := e.do(t, "GET", "/api/decks", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list status = %d", resp.StatusCode)
		}
		var list endpoints.ListDecksResponse
		if err := json.Unmarshal(data, &list); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if list.Total != 1 {
			t.Fatalf("Total = %d, want 1", list.Total)
		}
		if !list.Decks[0].Active {
			t.Error("first deck should be active")
		}
	})

	t.Run("activate switches decks", func(t *testing.T) {
		d2 := e.createDeck(t, "Second Deck", 2)

		resp, _ := e.do(t, "POST", "/api/decks/"+d2.ID+"/activate", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("activate status = %d", resp.StatusCode)
		}

		_, data := e.do(t, "GET", "/api/decks", nil)
		var list endpoints.ListDecksResponse
		if err := json.Unmarshal(data, &list); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		for _, s := range list.Decks {
			if s.ID == d2.ID && !s.Active {
				t.Error("second deck should be active after activate")
			}
			if s.ID == d.ID && s.Active {
				t.Error("first deck should no longer be active")
			}
		}
	})

	t.Run("get unknown deck returns 404", func(t *testing.T) {
		resp, _ := e.do(t, "GET", "/api/decks/nope", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("create without title is rejected", func(t *testing.T) {
		resp, _ := e.do(t, "POST", "/api/decks", endpoints.CreateDeckRequest{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})

	t.Run("delete removes deck", func(t *testing.T) {
		resp, _ := e.do(t, "DELETE", "/api/decks/"+d.ID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete status = %d", resp.StatusCode)
		}
		resp, _ = e.do(t, "GET", "/api/decks/"+d.ID, nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status after delete = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestOutlineSynthesis(t *testing.T) {
	e := newTestEnv(t)
	e.llm.ResponseJSON = json.RawMessage(`{
		"slides": [
			{"page_number": 1, "heading": "Intro", "image_description": "title art", "title_page": true},
			{"page_number": 2, "heading": "Body", "image_description": "a chart"}
		]
	}`)

	d := e.createDeck(t, "Outlined Deck", 0)

	resp, data := e.do(t, "POST", "/api/decks/"+d.ID+"/outline", endpoints.SynthesizeOutlineRequest{
		Topic:      "Go concurrency",
		SlideCount: 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("outline status = %d, body = %s", resp.StatusCode, data)
	}

	var updated deck.Deck
	if err := json.Unmarshal(data, &updated); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(updated.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(updated.Slides))
	}
	if updated.Slides[0].Heading != "Intro" {
		t.Errorf("Heading = %q, want %q", updated.Slides[0].Heading, "Intro")
	}
	if updated.Progress.Total != 2 {
		t.Errorf("Progress.Total = %d, want 2", updated.Progress.Total)
	}

	t.Run("regeneration preserves surviving pages", func(t *testing.T) {
		// Run the batch so slide results exist, then regenerate.
		e.do(t, "POST", "/api/decks/"+d.ID+"/generate/start", nil)
		waitForDeckStatus(t, e, d.ID, deck.BatchCompleted)

		e.llm.ResponseJSON = json.RawMessage(`{
			"slides": [
				{"page_number": 1, "heading": "Intro v2", "image_description": "new title art", "title_page": true}
			]
		}`)
		resp, data := e.do(t, "POST", "/api/decks/"+d.ID+"/outline", endpoints.SynthesizeOutlineRequest{Topic: "Go concurrency"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("outline status = %d, body = %s", resp.StatusCode, data)
		}
		var after deck.Deck
		if err := json.Unmarshal(data, &after); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(after.Slides) != 1 {
			t.Fatalf("expected 1 slide, got %d", len(after.Slides))
		}
		if after.Slides[0].Heading != "Intro v2" {
			t.Errorf("Heading = %q, want %q", after.Slides[0].Heading, "Intro v2")
		}
		if after.Slides[0].Result == nil {
			t.Error("surviving page should keep its generation result")
		}
	})

	t.Run("topic required", func(t *testing.T) {
		d2 := e.createDeck(t, "No Topic", 0)
		resp, _ := e.do(t, "POST", "/api/decks/"+d2.ID+"/outline", endpoints.SynthesizeOutlineRequest{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
		}
	})
}

func TestBatchGeneration(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDeck(t, "Batch Deck", 3)

	resp, data := e.do(t, "POST", "/api/decks/"+d.ID+"/generate/start", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("start status = %d, body = %s", resp.StatusCode, data)
	}
	var state endpoints.BatchStateResponse
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if state.DeckID != d.ID {
		t.Errorf("DeckID = %q, want %q", state.DeckID, d.ID)
	}

	final := waitForDeckStatus(t, e, d.ID, deck.BatchCompleted)
	if final.Progress.Completed != 3 {
		t.Errorf("Progress.Completed = %d, want 3", final.Progress.Completed)
	}

	t.Run("slides listing reflects completion", func(t *testing.T) {
		resp, data := e.do(t, "GET", "/api/decks/"+d.ID+"/slides", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("slides status = %d", resp.StatusCode)
		}
		var list endpoints.ListSlidesResponse
		if err := json.Unmarshal(data, &list); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(list.Slides) != 3 {
			t.Fatalf("expected 3 slides, got %d", len(list.Slides))
		}
		for _, s := range list.Slides {
			if s.Status != deck.SlideCompleted {
				t.Errorf("slide %d status = %s, want completed", s.PageNumber, s.Status)
			}
			if !s.HasImage {
				t.Errorf("slide %d should have an image", s.PageNumber)
			}
		}
	})

	t.Run("slide image is served", func(t *testing.T) {
		resp, data := e.do(t, "GET", fmt.Sprintf("/api/decks/%s/slides/%s/image", d.ID, d.Slides[0].ID), nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("image status = %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Content-Type = %q, want image/png", ct)
		}
		if !bytes.Equal(data, []byte("mock-png")) {
			t.Errorf("unexpected image bytes: %q", data)
		}
	})
}

func TestBatchPauseResume(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDeck(t, "Pause Deck", 2)

	entered := e.provider.Block()
	e.do(t, "POST", "/api/decks/"+d.ID+"/generate/start", nil)
	<-entered

	resp, data := e.do(t, "POST", "/api/decks/"+d.ID+"/generate/pause", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("pause status = %d, body = %s", resp.StatusCode, data)
	}
	var state endpoints.BatchStateResponse
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if state.Status != deck.BatchPaused {
		t.Errorf("Status = %s, want %s", state.Status, deck.BatchPaused)
	}

	e.provider.Release()
	resp, _ = e.do(t, "POST", "/api/decks/"+d.ID+"/generate/resume", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}
	waitForDeckStatus(t, e, d.ID, deck.BatchCompleted)
}

func TestSlideOperations(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDeck(t, "Slide Ops", 2)

	t.Run("run one slide", func(t *testing.T) {
		resp, data := e.do(t, "POST", fmt.Sprintf("/api/decks/%s/slides/%s/run", d.ID, d.Slides[0].ID), nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("run status = %d, body = %s", resp.StatusCode, data)
		}
		waitForDeck(t, e, d.ID, "first slide completed", func(dd *deck.Deck) bool {
			return dd.Slides[0].Status == deck.SlideCompleted && dd.Status == deck.BatchIdle
		})
	})

	t.Run("skip a pending slide", func(t *testing.T) {
		resp, data := e.do(t, "POST", fmt.Sprintf("/api/decks/%s/slides/%s/skip", d.ID, d.Slides[1].ID), nil)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("skip status = %d, body = %s", resp.StatusCode, data)
		}
		var state endpoints.BatchStateResponse
		if err := json.Unmarshal(data, &state); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if state.Progress.Completed != 2 {
			t.Errorf("Progress.Completed = %d, want 2", state.Progress.Completed)
		}
	})

	t.Run("skip a completed slide is rejected", func(t *testing.T) {
		resp, _ := e.do(t, "POST", fmt.Sprintf("/api/decks/%s/slides/%s/skip", d.ID, d.Slides[0].ID), nil)
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
		}
	})

	t.Run("unknown slide returns 404", func(t *testing.T) {
		resp, _ := e.do(t, "POST", fmt.Sprintf("/api/decks/%s/slides/%s/run", d.ID, "nope"), nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})
}

func TestManualUpload(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDeck(t, "Upload Deck", 1)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "slide.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write([]byte("user-supplied-png"))
	mw.Close()

	req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/decks/%s/slides/%s/upload", e.srv.URL, d.ID, d.Slides[0].ID), &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d, body = %s", resp.StatusCode, body)
	}

	// The upload completes the slide and its image is served with precedence.
	getResp, data := e.do(t, "GET", fmt.Sprintf("/api/decks/%s/slides/%s/image", d.ID, d.Slides[0].ID), nil)
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("image status = %d", getResp.StatusCode)
	}
	if !bytes.Equal(data, []byte("user-supplied-png")) {
		t.Errorf("unexpected image bytes: %q", data)
	}

	_, data = e.do(t, "GET", "/api/decks/"+d.ID, nil)
	var final deck.Deck
	if err := json.Unmarshal(data, &final); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if final.Slides[0].Status != deck.SlideCompleted {
		t.Errorf("slide status = %s, want completed", final.Slides[0].Status)
	}
	if final.Progress.Completed != 1 {
		t.Errorf("Progress.Completed = %d, want 1", final.Progress.Completed)
	}
}

func TestStorageStats(t *testing.T) {
	e := newTestEnv(t)
	d := e.createDeck(t, "Stats Deck", 2)

	e.do(t, "POST", "/api/decks/"+d.ID+"/generate/start", nil)
	waitForDeckStatus(t, e, d.ID, deck.BatchCompleted)

	resp, data := e.do(t, "GET", "/api/storage/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	var stats endpoints.StorageStatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if stats.Objects == 0 {
		t.Error("expected persisted objects after a batch run")
	}
	if stats.TotalBytes == 0 {
		t.Error("expected non-zero total bytes")
	}
}

func TestRequireInit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := New(Config{
		Services: &svcctx.Services{Logger: logger},
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/decks")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	// Health never requires init.
	resp2, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}
}
