// Package cache provides a small key-value store with per-entry expiry.
package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a key-value store with expiry. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type entry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process Store. Expired entries are dropped lazily on read
// and swept when the store grows past maxEntries.
type Memory struct {
	mu         sync.Mutex
	items      map[string]entry
	maxEntries int
	now        func() time.Time
}

func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &Memory{items: make(map[string]entry), maxEntries: maxEntries, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value; a non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) >= m.maxEntries {
		m.sweepLocked()
	}
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.items[key] = entry{value: value, expires: expires}
}

func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// sweepLocked drops expired entries, and everything if that is not enough.
func (m *Memory) sweepLocked() {
	now := m.now()
	for k, e := range m.items {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(m.items, k)
		}
	}
	if len(m.items) >= m.maxEntries {
		m.items = make(map[string]entry)
	}
}
