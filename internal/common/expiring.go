package common

import (
	"sync"
	"time"
)

const sweepEvery = 64

type expiringEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// Expiring is a process-local map whose entries lapse TTL after their last write.
// Expired entries are hidden on read and swept out periodically on write, so the map
// only holds sessions that are still live.
type Expiring[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]expiringEntry[V]
	writes  int
}

// NewExpiring returns an empty map. A non-positive ttl disables expiry.
func NewExpiring[V any](ttl time.Duration) *Expiring[V] {
	return &Expiring[V]{ttl: ttl, now: time.Now, entries: map[string]expiringEntry[V]{}}
}

// WithClock replaces the time source.
func (m *Expiring[V]) WithClock(now func() time.Time) *Expiring[V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Expiring[V]) Get(key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || m.expiredLocked(e) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores the value and restarts its TTL.
func (m *Expiring[V]) Set(key string, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := expiringEntry[V]{value: value}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.entries[key] = e
	m.writes++
	if m.writes%sweepEvery == 0 {
		m.sweepLocked()
	}
}

func (m *Expiring[V]) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len sweeps expired entries and reports how many remain.
func (m *Expiring[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.entries)
}

func (m *Expiring[V]) expiredLocked(e expiringEntry[V]) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *Expiring[V]) sweepLocked() {
	for k, e := range m.entries {
		if m.expiredLocked(e) {
			delete(m.entries, k)
		}
	}
}
