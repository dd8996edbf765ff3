package batch

import (
	"context"
	"sync"
)

// cancelEntry pairs a cancel function with an ownership token so a stale
// release cannot remove a handle registered by a newer run of the same slide.
type cancelEntry struct {
	cancel context.CancelFunc
	token  uint64
}

// cancelRegistry tracks one outstanding cancellation handle per in-flight
// slide. Handles are registered when a generation call starts and removed on
// every exit path via the release function returned by acquire.
type cancelRegistry struct {
	mu      sync.Mutex
	entries map[string]cancelEntry
	nextTok uint64
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{entries: make(map[string]cancelEntry)}
}

// acquire registers a cancel handle for the slide and returns a release
// function. Release is idempotent and removes the handle only if it still
// belongs to this acquisition.
func (r *cancelRegistry) acquire(slideID string, cancel context.CancelFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTok++
	token := r.nextTok
	r.entries[slideID] = cancelEntry{cancel: cancel, token: token}

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if entry, ok := r.entries[slideID]; ok && entry.token == token {
			delete(r.entries, slideID)
		}
	}
}

// cancelOne cancels the slide's in-flight call if one exists and removes the
// entry. Cancelling a slide with no entry is a no-op.
func (r *cancelRegistry) cancelOne(slideID string) bool {
	r.mu.Lock()
	entry, ok := r.entries[slideID]
	if ok {
		delete(r.entries, slideID)
	}
	r.mu.Unlock()

	if ok {
		entry.cancel()
	}
	return ok
}

// cancelAll cancels every in-flight call and clears the registry.
func (r *cancelRegistry) cancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]cancelEntry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
	}
	return len(entries)
}

// inFlight returns the number of registered handles.
func (r *cancelRegistry) inFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
