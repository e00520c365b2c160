// Package cache provides the pluggable key/value backends used for dedup
// state and read summaries. Keys are namespaced by prefix.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"netsentry/internal/model"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is the in-process fallback backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

var _ model.Cache = (*Memory)(nil)

func cacheKey(prefix, key string) string {
	return prefix + ":" + key
}

func (m *Memory) Get(_ context.Context, prefix, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[cacheKey(prefix, key)]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, cacheKey(prefix, key))
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, prefix, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[cacheKey(prefix, key)] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, prefix, key string) error {
	m.mu.Lock()
	delete(m.entries, cacheKey(prefix, key))
	m.mu.Unlock()
	return nil
}

func (m *Memory) ClearPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix+":") {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}
