package decodecache

import (
	"context"
	"fmt"

	"ArticlePipeline/internal/ports"
)

// Warmed fronts a shared cache with the hits of a single LookupBatch call,
// so a decode run reads the shared cache once instead of once per article.
type Warmed struct {
	front *Memory
	back  ports.DecodeCache
}

var _ ports.DecodeCache = (*Warmed)(nil)

// Warm pre-loads the hits for sourceIDs. On a lookup error the returned
// cache is still usable and falls through to back on every miss.
func Warm(ctx context.Context, back ports.DecodeCache, sourceIDs []string) (*Warmed, error) {
	w := &Warmed{front: NewMemory(), back: back}
	if len(sourceIDs) == 0 {
		return w, nil
	}

	hits, err := back.LookupBatch(ctx, sourceIDs)
	if err != nil {
		return w, fmt.Errorf("warm decode cache: %w", err)
	}
	for id, dest := range hits {
		_ = w.front.Store(ctx, id, dest)
	}
	return w, nil
}

// Lookup checks the warmed entries before the shared cache.
func (w *Warmed) Lookup(ctx context.Context, sourceID string) (string, bool, error) {
	if dest, ok, _ := w.front.Lookup(ctx, sourceID); ok {
		return dest, true, nil
	}
	return w.back.Lookup(ctx, sourceID)
}

// LookupBatch merges warmed hits with a shared lookup of the remaining ids.
func (w *Warmed) LookupBatch(ctx context.Context, sourceIDs []string) (map[string]string, error) {
	hits, _ := w.front.LookupBatch(ctx, sourceIDs)

	var missing []string
	for _, id := range sourceIDs {
		if _, ok := hits[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return hits, nil
	}

	more, err := w.back.LookupBatch(ctx, missing)
	if err != nil {
		return hits, err
	}
	for id, dest := range more {
		hits[id] = dest
	}
	return hits, nil
}

// Store writes through to the shared cache.
func (w *Warmed) Store(ctx context.Context, sourceID, destination string) error {
	_ = w.front.Store(ctx, sourceID, destination)
	return w.back.Store(ctx, sourceID, destination)
}

// Preloaded reports how many entries the pre-load found.
func (w *Warmed) Preloaded() int {
	return w.front.Len()
}
