package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reading-stats-bot/internal/domain"
)

// cacheEntry — то, что лежит в Redis: снимок и время его сохранения.
type cacheEntry struct {
	Snapshot  domain.AggregateSnapshot `json:"snapshot"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// RedisSnapshotCache реализует domain.SnapshotCache через Redis.
// Записи живут до явной инвалидации; TTL не используется.
type RedisSnapshotCache struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshotCache создаёт кэш снимков.
func NewRedisSnapshotCache(client *redis.Client, prefix string) *RedisSnapshotCache {
	if prefix == "" {
		prefix = "stats:snapshot"
	}
	return &RedisSnapshotCache{client: client, prefix: prefix}
}

var _ domain.SnapshotCache = (*RedisSnapshotCache)(nil)

func (c *RedisSnapshotCache) key(userID int64) string {
	return fmt.Sprintf("%s:%d", c.prefix, userID)
}

// GetSnapshot возвращает снимок или nil при промахе.
// Нечитаемая запись трактуется как промах и удаляется.
func (c *RedisSnapshotCache) GetSnapshot(ctx context.Context, userID int64) (*domain.AggregateSnapshot, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		_ = c.client.Del(ctx, c.key(userID)).Err()
		return nil, nil
	}
	return &entry.Snapshot, nil
}

// SaveSnapshot заменяет запись целиком. Побеждает последняя запись.
func (c *RedisSnapshotCache) SaveSnapshot(ctx context.Context, userID int64, snapshot domain.AggregateSnapshot) error {
	raw, err := json.Marshal(cacheEntry{Snapshot: snapshot, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("сериализация снимка: %w", err)
	}
	return c.client.Set(ctx, c.key(userID), raw, 0).Err()
}

// InvalidateSnapshot удаляет запись.
func (c *RedisSnapshotCache) InvalidateSnapshot(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}

// LastUpdate возвращает время последнего сохранения, нулевое время при промахе.
func (c *RedisSnapshotCache) LastUpdate(ctx context.Context, userID int64) (time.Time, error) {
	raw, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return time.Time{}, nil
	}
	return entry.UpdatedAt, nil
}
