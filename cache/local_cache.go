// Package cache persists the session's POI collection so a restart can
// fall back to the last known state when the backing store is unreachable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"poi-map/models"
)

const (
	DefaultKey         = "game_map_pois"
	DefaultFallbackKey = "unapproved_pois"
)

// Snapshot is the decoded cache entry.
type Snapshot struct {
	POIs         []models.POI
	LastSyncTime time.Time // zero when never synced
}

// LocalCache serializes every read-modify-write of the fallback list; the
// collection entry is only ever overwritten whole.
type LocalCache struct {
	kv          KV
	key         string
	fallbackKey string

	fallbackMu sync.Mutex
}

func NewLocalCache(kv KV, key, fallbackKey string) *LocalCache {
	if key == "" {
		key = DefaultKey
	}
	if fallbackKey == "" {
		fallbackKey = DefaultFallbackKey
	}
	return &LocalCache{kv: kv, key: key, fallbackKey: fallbackKey}
}

// Save overwrites the cache entry with the full collection and timestamp.
func (c *LocalCache) Save(ctx context.Context, pois []models.POI, lastSync time.Time) error {
	snap := models.CacheSnapshot{POIs: pois, LastSyncTime: toMillis(lastSync)}
	if snap.POIs == nil {
		snap.POIs = []models.POI{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cache snapshot: %w", err)
	}
	if err := c.kv.Set(ctx, c.key, data); err != nil {
		return fmt.Errorf("write cache key %s: %w", c.key, err)
	}
	return nil
}

// Load never fails: a missing, unreadable or corrupt entry is an empty
// collection with a zero timestamp.
func (c *LocalCache) Load(ctx context.Context) Snapshot {
	empty := Snapshot{POIs: []models.POI{}}
	data, ok, err := c.kv.Get(ctx, c.key)
	if err != nil {
		log.Printf("Failed to read POI cache %s: %v", c.key, err)
		return empty
	}
	if !ok {
		return empty
	}
	var snap models.CacheSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("Failed to parse POI cache %s, treating as empty: %v", c.key, err)
		return empty
	}
	if snap.POIs == nil {
		snap.POIs = []models.POI{}
	}
	return Snapshot{POIs: snap.POIs, LastSyncTime: fromMillis(snap.LastSyncTime)}
}

// AppendFallback adds a POI whose remote submission failed to the
// fallback list kept under the secondary key.
func (c *LocalCache) AppendFallback(ctx context.Context, poi models.POI) error {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()

	pois, err := c.readFallback(ctx)
	if err != nil {
		log.Printf("Fallback list %s unreadable, starting a new one: %v", c.fallbackKey, err)
		pois = nil
	}
	return c.writeFallback(ctx, append(pois, poi))
}

// Fallback returns the POIs that failed remote submission. Unlike Load, a
// corrupt list is reported so callers do not overwrite it unknowingly.
func (c *LocalCache) Fallback(ctx context.Context) ([]models.POI, error) {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()
	return c.readFallback(ctx)
}

// RemoveFallback drops one entry per given POI, matching by id from the
// front of the list. Entries appended since the caller read the list stay.
func (c *LocalCache) RemoveFallback(ctx context.Context, sent []models.POI) error {
	if len(sent) == 0 {
		return nil
	}
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()

	pois, err := c.readFallback(ctx)
	if err != nil {
		return err
	}
	drop := make(map[string]int, len(sent))
	for _, p := range sent {
		drop[p.ID]++
	}
	keep := make([]models.POI, 0, len(pois))
	for _, p := range pois {
		if drop[p.ID] > 0 {
			drop[p.ID]--
			continue
		}
		keep = append(keep, p)
	}
	return c.writeFallback(ctx, keep)
}

func (c *LocalCache) ReplaceFallback(ctx context.Context, pois []models.POI) error {
	c.fallbackMu.Lock()
	defer c.fallbackMu.Unlock()
	return c.writeFallback(ctx, pois)
}

func (c *LocalCache) readFallback(ctx context.Context) ([]models.POI, error) {
	data, ok, err := c.kv.Get(ctx, c.fallbackKey)
	if err != nil {
		return nil, fmt.Errorf("read fallback key %s: %w", c.fallbackKey, err)
	}
	if !ok {
		return []models.POI{}, nil
	}
	var pois []models.POI
	if err := json.Unmarshal(data, &pois); err != nil {
		return nil, fmt.Errorf("parse fallback key %s: %w", c.fallbackKey, err)
	}
	if pois == nil {
		pois = []models.POI{}
	}
	return pois, nil
}

func (c *LocalCache) writeFallback(ctx context.Context, pois []models.POI) error {
	if pois == nil {
		pois = []models.POI{}
	}
	data, err := json.Marshal(pois)
	if err != nil {
		return fmt.Errorf("marshal fallback list: %w", err)
	}
	if err := c.kv.Set(ctx, c.fallbackKey, data); err != nil {
		return fmt.Errorf("write fallback key %s: %w", c.fallbackKey, err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
