package cache

import (
	"context"
	"sync"
	"time"

	"reading-stats-bot/internal/domain"
)

// MemorySnapshotCache — кэш снимков в памяти процесса.
// Используется в тестах и при запуске без Redis.
type MemorySnapshotCache struct {
	mu      sync.Mutex
	entries map[int64]cacheEntry
}

// NewMemorySnapshotCache создаёт пустой кэш.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{entries: make(map[int64]cacheEntry)}
}

var _ domain.SnapshotCache = (*MemorySnapshotCache)(nil)

// GetSnapshot возвращает снимок или nil при промахе.
func (c *MemorySnapshotCache) GetSnapshot(_ context.Context, userID int64) (*domain.AggregateSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	snapshot := entry.Snapshot
	return &snapshot, nil
}

// SaveSnapshot заменяет запись целиком.
func (c *MemorySnapshotCache) SaveSnapshot(_ context.Context, userID int64, snapshot domain.AggregateSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{Snapshot: snapshot, UpdatedAt: time.Now().UTC()}
	return nil
}

// InvalidateSnapshot удаляет запись.
func (c *MemorySnapshotCache) InvalidateSnapshot(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

// LastUpdate возвращает время последнего сохранения, нулевое время при промахе.
func (c *MemorySnapshotCache) LastUpdate(_ context.Context, userID int64) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[userID]
	if !ok {
		return time.Time{}, nil
	}
	return entry.UpdatedAt, nil
}
