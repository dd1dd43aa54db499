package cache

import (
	"context"
	"sync"
	"time"

	"welfare-recommender/internal/models"
)

type memoryItem struct {
	entry     *models.CacheEntry
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]memoryItem
	byUser  map[string]map[string]struct{}
	nowFunc func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		items:   make(map[string]memoryItem),
		byUser:  make(map[string]map[string]struct{}),
		nowFunc: now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if !ok || !s.nowFunc().Before(item.expiresAt) {
		return nil, ErrMiss
	}
	return cloneEntry(item.entry), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, entry *models.CacheEntry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{entry: cloneEntry(entry), expiresAt: s.nowFunc().Add(ttl)}
	keys, ok := s.byUser[entry.UserID]
	if !ok {
		keys = make(map[string]struct{})
		s.byUser[entry.UserID] = keys
	}
	keys[key] = struct{}{}
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.byUser[userID] {
		delete(s.items, key)
	}
	delete(s.items, Key(userID, ""))
	delete(s.byUser, userID)
	return nil
}

// Purge drops expired items. Callers may run it periodically.
func (s *MemoryStore) Purge() int {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, item := range s.items {
		if now.Before(item.expiresAt) {
			continue
		}
		delete(s.items, key)
		if keys := s.byUser[item.entry.UserID]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.byUser, item.entry.UserID)
			}
		}
		removed++
	}
	return removed
}
