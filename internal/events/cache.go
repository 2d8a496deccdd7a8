package events

import (
	"context"
	"sync"
	"time"
)

// DefaultLatestEventTTL bounds how long a cached event may represent a game,
// so stale state never survives across contests reusing an identifier.
const DefaultLatestEventTTL = time.Hour

// LatestCache is a single-slot per-game cache of the most recently published
// event. A late subscriber reads it once before its first live event so it
// sees current state immediately; the snapshot is never enqueued onto the
// live queue.
type LatestCache interface {
	SetLatest(ctx context.Context, gameID string, payload []byte) error
	GetLatest(ctx context.Context, gameID string) ([]byte, bool, error)
}

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
}

// MemoryLatestCache is the in-process LatestCache used in development mode and
// in tests, when no Redis is configured.
type MemoryLatestCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLatestCache(ttl time.Duration) *MemoryLatestCache {
	if ttl <= 0 {
		ttl = DefaultLatestEventTTL
	}
	return &MemoryLatestCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryLatestCache) SetLatest(_ context.Context, gameID string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[gameID] = memoryEntry{payload: payload, storedAt: c.now()}
	return nil
}

func (c *MemoryLatestCache) GetLatest(_ context.Context, gameID string) ([]byte, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[gameID]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		c.mu.Lock()
		delete(c.entries, gameID)
		c.mu.Unlock()
		return nil, false, nil
	}
	return entry.payload, true, nil
}
