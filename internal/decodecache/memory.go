package decodecache

import (
	"context"
	"sync"
	"time"

	"ArticlePipeline/internal/ports"
)

// Entry is a resolved destination and the time it was stored.
type Entry struct {
	Destination string    `json:"destination"`
	StoredAt    time.Time `json:"storedAt"`
}

// Memory is a process-local cache; entries never expire.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

var _ ports.DecodeCache = (*Memory)(nil)

// NewMemory builds an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: map[string]Entry{}, now: time.Now}
}

// Lookup returns the cached destination for sourceID.
func (m *Memory) Lookup(_ context.Context, sourceID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[sourceID]
	return e.Destination, ok, nil
}

// LookupBatch returns the subset of ids that are cached.
func (m *Memory) LookupBatch(_ context.Context, sourceIDs []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make(map[string]string, len(sourceIDs))
	for _, id := range sourceIDs {
		if e, ok := m.entries[id]; ok {
			hits[id] = e.Destination
		}
	}
	return hits, nil
}

// Store records a destination; last write wins.
func (m *Memory) Store(_ context.Context, sourceID, destination string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[sourceID] = Entry{Destination: destination, StoredAt: m.now()}
	return nil
}

// Len is the number of cached ids.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
