package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// Memory is a process-local storage scope, used when no Redis is configured.
type Memory struct {
	mu     sync.Mutex
	scopes map[string]map[string]memEntry
	now    func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{scopes: make(map[string]map[string]memEntry), now: time.Now}
}

func (m *Memory) live(scope, key string) (memEntry, bool) {
	e, ok := m.scopes[scope][key]
	if !ok {
		return memEntry{}, false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.scopes[scope], key)
		return memEntry{}, false
	}
	return e, true
}

// Get reads one value.
func (m *Memory) Get(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.live(scope, key)
	return e.value, ok, nil
}

// Set writes one value.
func (m *Memory) Set(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(scope, key, memEntry{value: value})
	return nil
}

// Delete removes one value.
func (m *Memory) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.scopes[scope], key)
	return nil
}

// SetIfAbsent stores value with a ttl unless a live value exists.
func (m *Memory) SetIfAbsent(_ context.Context, scope, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(scope, key); ok {
		return false, nil
	}
	m.put(scope, key, memEntry{value: value, expiresAt: m.now().Add(ttl)})
	return true, nil
}

func (m *Memory) put(scope, key string, e memEntry) {
	s, ok := m.scopes[scope]
	if !ok {
		s = make(map[string]memEntry)
		m.scopes[scope] = s
	}
	s[key] = e
}
