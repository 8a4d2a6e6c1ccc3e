// Package cache holds the Tenant Context Cache implementations used by the resolver.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/zenGate-Global/palmyra-agri-admin/platform/go/tenant"
)

// DefaultTTL bounds how long a resolved tenant is served from cache.
const DefaultTTL = 5 * time.Minute

type entry struct {
	tenant     tenant.Tenant
	insertedAt time.Time
}

// Memory is a process-local cache. An entry inserted at T is returned while
// now < T+TTL and is absent from T+TTL on. Deployments with more than one
// instance should use Redis instead.
type Memory struct {
	clock clock.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

var _ tenant.Cache = (*Memory)(nil)

// NewMemory builds a Memory cache. A nil clock uses wall time and a
// non-positive ttl uses DefaultTTL.
func NewMemory(clk clock.Clock, ttl time.Duration) *Memory {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{clock: clk, ttl: ttl, entries: make(map[string]entry)}
}

// Get returns a copy of the cached tenant when present and fresh.
func (m *Memory) Get(ctx context.Context, key string) (tenant.Tenant, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return tenant.Tenant{}, false
	}

	if !m.clock.Now().Before(e.insertedAt.Add(m.ttl)) {
		m.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if cur, still := m.entries[key]; still && cur.insertedAt.Equal(e.insertedAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return tenant.Tenant{}, false
	}

	return e.tenant.Clone(), true
}

// Set inserts or overwrites key with the current time.
func (m *Memory) Set(ctx context.Context, key string, t tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{tenant: t.Clone(), insertedAt: m.clock.Now()}
}

// Invalidate removes key immediately.
func (m *Memory) Invalidate(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
