package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store for tests and single-instance development.
// SetIfAbsent is atomic only within the process; production deployments use
// Redis so the guarantee holds across instances.
type Memory struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemory returns a new in-memory store.
func NewMemory() *Memory {
	return &Memory{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// SetNow overrides the time source for deterministic TTL tests.
func (s *Memory) SetNow(nowF func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowF = nowF
}

// Get returns the value for key if present and not expired.
func (s *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value under key for ttl.
func (s *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// SetIfAbsent stores value under key for ttl only if the key is missing or expired.
func (s *Memory) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok && e.expiresAt.After(s.nowF()) {
		return false, nil
	}
	s.m[key] = entry{value: value, expiresAt: s.nowF().Add(ttl)}
	return true, nil
}

// Delete removes key.
func (s *Memory) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
