package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"reading-stats-bot/internal/adapters/repo"
	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/cache"
	"reading-stats-bot/internal/infra/config"
	"reading-stats-bot/internal/infra/db"
	applog "reading-stats-bot/internal/infra/log"
	"reading-stats-bot/internal/infra/metrics"
	"reading-stats-bot/internal/infra/queue"
	"reading-stats-bot/internal/usecase/stats"
)

// Планировщик делает две вещи: по таймеру запускает фоновый пересчёт
// статистики для всех пользователей и разбирает очередь точечных задач,
// поставленных API после записи сессий. Оба пути пишут в один и тот же
// ключ кэша, поэтому гонка с ручным пересчётом безопасна.
func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	if cfg.RedisAddr == "" {
		logger.Fatal().Msg("scheduler: REDIS_ADDR обязателен")
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	snapshotCache := cache.NewRedisSnapshotCache(redisClient, cfg.Stats.CachePrefix)
	refreshJobs := queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)

	var milestoneJobs domain.MilestoneQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMilestoneQueue(cfg.AMQPURL, cfg.Queues.Milestones)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		milestoneJobs = rabbit
	}

	repoAdapter := repo.NewPostgres(pool)
	statsService := stats.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, snapshotCache, nil, nil, milestoneJobs, logger)

	metrics.StartServer(ctx, logger, ":9090")

	go consumeRefreshJobs(ctx, logger, refreshJobs, statsService)

	ticker := time.NewTicker(cfg.Stats.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановка")
			return
		case <-ticker.C:
			users, err := repoAdapter.ListAll()
			if err != nil {
				logger.Error().Err(err).Msg("scheduler: ошибка выборки пользователей")
				continue
			}
			for _, user := range users {
				if _, err := statsService.Refresh(ctx, user.ID, domain.RefreshCauseScheduled); err != nil {
					logger.Error().Err(err).Int64("user", user.ID).Msg("scheduler: пересчёт не удался")
				}
			}
		}
	}
}

// consumeRefreshJobs разбирает точечные задачи пересчёта до отмены контекста.
func consumeRefreshJobs(ctx context.Context, logger zerolog.Logger, jobs domain.RefreshQueue, statsService *stats.Service) {
	for {
		job, err := jobs.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error().Err(err).Msg("scheduler: ошибка чтения очереди")
			continue
		}
		if _, err := statsService.Refresh(ctx, job.UserID, job.Cause); err != nil {
			logger.Error().Err(err).Int64("user", job.UserID).Str("job", job.ID).Msg("scheduler: задача пересчёта не удалась")
		}
	}
}
