package decodecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ArticlePipeline/internal/ports"
)

const defaultKeyPrefix = "decode:"

// Redis shares resolved destinations across runs, owners and processes.
type Redis struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ ports.DecodeCache = (*Redis)(nil)

// NewRedis wraps a go-redis client. A zero ttl keeps entries forever.
func NewRedis(client redis.Cmdable, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Lookup returns the cached destination for sourceID.
func (r *Redis) Lookup(ctx context.Context, sourceID string) (string, bool, error) {
	raw, err := r.client.Get(ctx, r.key(sourceID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	dest, ok := decodeEntry(raw)
	return dest, ok, nil
}

// LookupBatch resolves many ids with a single MGET.
func (r *Redis) LookupBatch(ctx context.Context, sourceIDs []string) (map[string]string, error) {
	hits := make(map[string]string, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return hits, nil
	}

	keys := make([]string, len(sourceIDs))
	for i, id := range sourceIDs {
		keys[i] = r.key(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if dest, ok := decodeEntry(raw); ok {
			hits[sourceIDs[i]] = dest
		}
	}
	return hits, nil
}

// Store writes the destination; resolution is deterministic so overwrites are harmless.
func (r *Redis) Store(ctx context.Context, sourceID, destination string) error {
	payload, err := json.Marshal(Entry{Destination: destination, StoredAt: r.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(sourceID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) key(sourceID string) string {
	return r.prefix + sourceID
}

func decodeEntry(raw string) (string, bool) {
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil || e.Destination == "" {
		return "", false
	}
	return e.Destination, true
}
