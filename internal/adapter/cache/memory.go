package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/repository"
)

var (
	_ repository.FlowStateStore = (*MemoryStateStore)(nil)
	_ repository.CodeConsumer   = (*MemoryCodeConsumer)(nil)
)

// MemoryStateStore is the single-process fallback for FlowStateStore.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryStateEntry
}

type memoryStateEntry struct {
	state     domain.FlowState
	expiresAt time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]memoryStateEntry)}
}

func (s *MemoryStateStore) SaveState(ctx context.Context, key string, data domain.FlowState, ttl time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	s.entries[key] = memoryStateEntry{state: data, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) TakeState(ctx context.Context, key string) (*domain.FlowState, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	delete(s.entries, key)
	if now.After(entry.expiresAt) {
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (s *MemoryStateStore) cleanupLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}

// MemoryCodeConsumer is the single-process fallback for CodeConsumer.
type MemoryCodeConsumer struct {
	mu       sync.Mutex
	consumed map[string]time.Time
}

func NewMemoryCodeConsumer() *MemoryCodeConsumer {
	return &MemoryCodeConsumer{consumed: make(map[string]time.Time)}
}

func (c *MemoryCodeConsumer) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, expiresAt := range c.consumed {
		if now.After(expiresAt) {
			delete(c.consumed, id)
		}
	}
	if expiresAt, ok := c.consumed[tokenID]; ok && now.Before(expiresAt) {
		return false, nil
	}
	c.consumed[tokenID] = now.Add(ttl)
	return true, nil
}
