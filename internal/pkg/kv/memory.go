// internal/pkg/kv/memory.go
package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and local development.
// TTLs are enforced lazily on access.
type Memory struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	sets    map[string]map[string]struct{}
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		hashes:  make(map[string]map[string]string),
		sets:    make(map[string]map[string]struct{}),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// SetClock overrides the time source so tests can advance TTLs.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) expired(key string) bool {
	deadline, ok := m.expires[key]
	if !ok {
		return false
	}
	if m.now().After(deadline) {
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.expires, key)
		return true
	}
	return false
}

func (m *Memory) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	h, ok := m.hashes[key]
	if !ok {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *Memory) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(m.hashes[key]))
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired(key)
	s, ok := m.sets[key]
	if !ok {
		s = make(map[string]struct{})
		m.sets[key] = s
	}
	for _, member := range members {
		s[member] = struct{}{}
	}
	return nil
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired(key) {
		return nil, nil
	}
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[key] = m.now().Add(ttl)
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for _, key := range keys {
		if m.expired(key) {
			continue
		}
		_, hasHash := m.hashes[key]
		_, hasSet := m.sets[key]
		if hasHash || hasSet {
			deleted++
		}
		delete(m.hashes, key)
		delete(m.sets, key)
		delete(m.expires, key)
	}
	return deleted, nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.hashes {
		if strings.HasPrefix(key, prefix) && !m.expired(key) {
			keys = append(keys, key)
		}
	}
	for key := range m.sets {
		if _, ok := m.hashes[key]; ok {
			continue
		}
		if strings.HasPrefix(key, prefix) && !m.expired(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}
