package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"reading-stats-bot/internal/domain"
)

// RedisRefreshQueue реализует очередь задач пересчёта на базе Redis lists.
type RedisRefreshQueue struct {
	client *redis.Client
	key    string
}

// NewRedisRefreshQueue создаёт очередь по указанному ключу.
func NewRedisRefreshQueue(client *redis.Client, key string) *RedisRefreshQueue {
	return &RedisRefreshQueue{client: client, key: key}
}

var _ domain.RefreshQueue = (*RedisRefreshQueue)(nil)

// Enqueue публикует задачу в очередь.
func (q *RedisRefreshQueue) Enqueue(ctx context.Context, job domain.RefreshJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisRefreshQueue) Pop(ctx context.Context) (domain.RefreshJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RefreshJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RefreshJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RefreshJob{}, err
		}
		if len(res) != 2 {
			return domain.RefreshJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.RefreshJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RefreshJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
