package repo

import "sync"

// seenCache is an in-memory record of (kind, digest) pairs already confirmed
// present on disk. Each Repository returned by Open owns one, kept for that
// Repository's lifetime (in the CLI, a single save). It spares a redundant
// stat for a chunk that repeats later in the same stream, without claiming
// any cross-process durability.
type seenCache struct {
	mu    sync.RWMutex
	store map[seenKey]struct{}
}

type seenKey struct {
	kind   Kind
	digest [32]byte
}

func newSeenCache() *seenCache {
	return &seenCache{store: make(map[seenKey]struct{})}
}

func (c *seenCache) has(kind Kind, digest [32]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.store[seenKey{kind, digest}]
	return ok
}

func (c *seenCache) add(kind Kind, digest [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[seenKey{kind, digest}] = struct{}{}
}
