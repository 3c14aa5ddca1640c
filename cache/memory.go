// Package cache provides snapshot cache implementations: an in-process LRU
// and a Redis-backed cache for multi-instance deployments.
//
// Both implement the gatekeep.Cache interface. Organization-wide
// invalidation is epoch-based: instead of enumerating an organization's
// users on a catalog-wide change, the organization's epoch is bumped and
// every cached snapshot written under an older epoch reads as a miss. The
// recompute cost is paid lazily, per user, on next read.
package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/workshophq/gatekeep/snapshot"
)

// DefaultMemorySize is the default maximum number of cached snapshots.
const DefaultMemorySize = 16384

type memoryEntry struct {
	snap  *snapshot.Snapshot
	epoch uint64
}

// Memory is an in-process snapshot cache backed by an LRU. Safe for
// concurrent use.
type Memory struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, memoryEntry]
	epochs map[string]uint64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	size int
}

// WithSize sets the maximum number of cached snapshots.
func WithSize(n int) MemoryOption {
	return func(c *memoryConfig) {
		c.size = n
	}
}

// NewMemory creates an in-process snapshot cache.
func NewMemory(opts ...MemoryOption) *Memory {
	cfg := memoryConfig{size: DefaultMemorySize}
	for _, opt := range opts {
		opt(&cfg)
	}
	l, err := lru.New[string, memoryEntry](cfg.size)
	if err != nil {
		// lru.New only fails on non-positive size.
		panic(err)
	}
	return &Memory{
		lru:    l,
		epochs: make(map[string]uint64),
	}
}

func snapKey(orgID, userID string) string {
	return orgID + "\x00" + userID
}

// Get returns the cached snapshot for a user. Entries written before the
// organization's last InvalidateOrg read as misses.
func (m *Memory) Get(_ context.Context, orgID, userID string) (*snapshot.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lru.Get(snapKey(orgID, userID))
	if !ok || e.epoch < m.epochs[orgID] {
		return nil, false
	}
	return e.snap.Clone(), true
}

// Put replaces the cached snapshot for a user.
func (m *Memory) Put(_ context.Context, orgID, userID string, snap *snapshot.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Add(snapKey(orgID, userID), memoryEntry{
		snap:  snap.Clone(),
		epoch: m.epochs[orgID],
	})
}

// Invalidate drops the cached snapshot for one user.
func (m *Memory) Invalidate(_ context.Context, orgID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Remove(snapKey(orgID, userID))
}

// InvalidateOrg bumps the organization's epoch, marking every cached
// snapshot in the organization stale without touching the entries.
func (m *Memory) InvalidateOrg(_ context.Context, orgID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.epochs[orgID]++
}

// InvalidateAll drops every cached snapshot.
func (m *Memory) InvalidateAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lru.Purge()
	m.epochs = make(map[string]uint64)
}

// Len returns the number of cached entries, stale ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lru.Len()
}
