// Package storage provides the key→limiter mapping used by the per-key
// pool, plus an in-memory implementation. It is the extension seam for
// cross-process coordination: a distributed Storage implementation
// (see RedisMembership) can be substituted without the pool or the
// limiter algorithms changing. DistributedHybrid, also in this package,
// is a Redis-backed Limiter rather than a Storage.
package storage

import (
	"sync"

	"github.com/omd02/ratelimiter/ratelimit"
)

// Factory produces a fresh limiter for a key on first access.
type Factory func() ratelimit.Limiter

// Storage maps string keys to limiter instances, owning every limiter it
// creates.
type Storage interface {
	// GetOrCreate returns the limiter bound to key, creating it via
	// factory on first access.
	GetOrCreate(key string, factory Factory) (ratelimit.Limiter, error)

	// Remove disposes and forgets the limiter bound to key, if any. Idempotent.
	Remove(key string)

	// RemoveWhere disposes and forgets every limiter whose (key, limiter)
	// pair satisfies predicate.
	RemoveWhere(predicate func(key string, l ratelimit.Limiter) bool)

	// Dispose disposes every managed limiter and clears the map.
	// Idempotent; subsequent GetOrCreate calls fail with ErrDisposed.
	Dispose()
}

// Memory is the default in-memory Storage implementation.
type Memory struct {
	mu       sync.Mutex
	limiters map[string]ratelimit.Limiter
	disposed bool
}

// NewMemory constructs an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{limiters: make(map[string]ratelimit.Limiter)}
}

func (m *Memory) GetOrCreate(key string, factory Factory) (ratelimit.Limiter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, &ratelimit.DisposedError{}
	}
	if l, ok := m.limiters[key]; ok {
		return l, nil
	}
	l := factory()
	m.limiters[key] = l
	return l, nil
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[key]; ok {
		l.Dispose()
		delete(m.limiters, key)
	}
}

func (m *Memory) RemoveWhere(predicate func(key string, l ratelimit.Limiter) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, l := range m.limiters {
		if predicate(key, l) {
			l.Dispose()
			delete(m.limiters, key)
		}
	}
}

func (m *Memory) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	for _, l := range m.limiters {
		l.Dispose()
	}
	m.limiters = nil
	m.disposed = true
}
