package assets

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func TestLocalStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	data := []byte("fake-png-bytes")
	meta := &Meta{
		DeckID:    "deck-1",
		SlideID:   "slide-1",
		Kind:      KindGenerated,
		Provider:  "gemini",
		CreatedAt: time.Now().UTC(),
	}

	ref, err := store.Put(ctx, "deck-1", data, meta)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !strings.HasPrefix(ref, "deck-1/") || !strings.HasSuffix(ref, ".png") {
		t.Errorf("unexpected ref format: %s", ref)
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Get returned different bytes")
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, ref); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is not an error.
	if err := store.Delete(ctx, ref); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestLocalStore_ListAndStats(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Put(ctx, "deck-a", []byte("aaaa"), &Meta{DeckID: "deck-a", Kind: KindGenerated}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if _, err := store.Put(ctx, "deck-b", []byte("bb"), nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	objects, err := store.List(ctx, "deck-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	for _, obj := range objects {
		if obj.Meta == nil || obj.Meta.Kind != KindGenerated {
			t.Errorf("expected metadata on %s, got %+v", obj.Ref, obj.Meta)
		}
		if obj.SizeBytes != 4 {
			t.Errorf("unexpected size for %s: %d", obj.Ref, obj.SizeBytes)
		}
	}

	// Sidecars must not count toward stats.
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Objects != 4 {
		t.Errorf("expected 4 objects, got %d", stats.Objects)
	}
	if stats.TotalBytes != 3*4+2 {
		t.Errorf("unexpected total bytes: %d", stats.TotalBytes)
	}

	// Listing an unknown deck is empty, not an error.
	objects, err = store.List(ctx, "deck-missing")
	if err != nil {
		t.Fatalf("List of missing deck failed: %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected empty list, got %d", len(objects))
	}
}

func TestLocalStore_DeleteDeck(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "deck-x", []byte("data"), nil)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.DeleteDeck(ctx, "deck-x"); err != nil {
		t.Fatalf("DeleteDeck failed: %v", err)
	}
	if _, err := store.Get(ctx, ref); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := store.DeleteDeck(ctx, "../escape"); err == nil {
		t.Error("expected error for traversal deck ID")
	}
}

func TestSplitRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantErr bool
	}{
		{"deck/name.png", false},
		{"deck/name.png.meta.json", false},
		{"noslash", true},
		{"/leading", true},
		{"trailing/", true},
		{"deck/../escape.png", true},
		{"a/b/c.png", true},
	}
	for _, tt := range tests {
		_, _, err := splitRef(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("splitRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
		}
	}
}

func TestMakePreview(t *testing.T) {
	src := testPNG(t, 1600, 900)

	preview, err := MakePreview(src, 480)
	if err != nil {
		t.Fatalf("MakePreview failed: %v", err)
	}

	img, err := imaging.Decode(bytes.NewReader(preview))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if img.Bounds().Dx() != 480 {
		t.Errorf("unexpected preview width: %d", img.Bounds().Dx())
	}
	// Aspect ratio preserved.
	if h := img.Bounds().Dy(); h != 270 {
		t.Errorf("unexpected preview height: %d", h)
	}
}

func TestMakePreview_SmallSource(t *testing.T) {
	src := testPNG(t, 100, 50)

	preview, err := MakePreview(src, 480)
	if err != nil {
		t.Fatalf("MakePreview failed: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(preview))
	if err != nil {
		t.Fatalf("decode preview: %v", err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("small source should not be upscaled, got width %d", img.Bounds().Dx())
	}
}

func TestMakePreview_InvalidData(t *testing.T) {
	if _, err := MakePreview([]byte("not a png"), 480); err == nil {
		t.Error("expected error for invalid image data")
	}
}
