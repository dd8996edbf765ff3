package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps assets on the local filesystem, one directory per deck.
type LocalStore struct {
	baseDir string
}

// NewLocalStore creates a store rooted at baseDir, creating it if needed.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &LocalStore{baseDir: baseDir}, nil
}

// BaseDir returns the store's root directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Put writes the image and its sidecar. The image is written to a temp file
// and renamed so readers never observe a partial object.
func (s *LocalStore) Put(ctx context.Context, deckID string, data []byte, meta *Meta) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := NewRef(deckID)
	path := filepath.Join(s.baseDir, filepath.FromSlash(ref))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create deck directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize asset: %w", err)
	}

	if meta != nil {
		metaBytes, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := os.WriteFile(path+".meta.json", metaBytes, 0o644); err != nil {
			return "", fmt.Errorf("failed to write metadata: %w", err)
		}
	}

	return ref, nil
}

// Get reads the object bytes for a ref.
func (s *LocalStore) Get(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deckID, name, err := splitRef(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, deckID, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	return data, nil
}

// Delete removes the object and its sidecar.
func (s *LocalStore) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deckID, name, err := splitRef(ref)
	if err != nil {
		return err
	}
	path := filepath.Join(s.baseDir, deckID, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if err := os.Remove(path + ".meta.json"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// DeleteDeck removes the deck's entire asset directory.
func (s *LocalStore) DeleteDeck(ctx context.Context, deckID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if deckID == "" || strings.ContainsAny(deckID, "/\\") || strings.Contains(deckID, "..") {
		return fmt.Errorf("malformed deck ID: %q", deckID)
	}
	if err := os.RemoveAll(filepath.Join(s.baseDir, deckID)); err != nil {
		return fmt.Errorf("failed to delete deck assets: %w", err)
	}
	return nil
}

// List returns the deck's objects sorted by name, sidecars folded in.
func (s *LocalStore) List(ctx context.Context, deckID string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, deckID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list deck assets: %w", err)
	}

	var objects []Object
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".meta.json") || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		obj := Object{
			Ref:       deckID + "/" + entry.Name(),
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		}
		if metaBytes, err := os.ReadFile(filepath.Join(s.baseDir, deckID, entry.Name()+".meta.json")); err == nil {
			var meta Meta
			if json.Unmarshal(metaBytes, &meta) == nil {
				obj.Meta = &meta
			}
		}
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Ref < objects[j].Ref })
	return objects, nil
}

// Stats walks the tree and aggregates image object counts and sizes.
func (s *LocalStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".meta.json") || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.Objects++
		stats.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to walk asset directory: %w", err)
	}
	return stats, nil
}

var _ Store = (*LocalStore)(nil)
