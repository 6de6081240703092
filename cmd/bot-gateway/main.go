package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"reading-stats-bot/internal/adapters/bot"
	"reading-stats-bot/internal/adapters/repo"
	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
	"reading-stats-bot/internal/infra/cache"
	"reading-stats-bot/internal/infra/config"
	"reading-stats-bot/internal/infra/db"
	applog "reading-stats-bot/internal/infra/log"
	"reading-stats-bot/internal/infra/metrics"
	"reading-stats-bot/internal/infra/queue"
	"reading-stats-bot/internal/usecase/stats"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "bot-gateway")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("бот: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	var snapshotCache domain.SnapshotCache
	var refreshJobs domain.RefreshQueue
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		snapshotCache = cache.NewRedisSnapshotCache(redisClient, cfg.Stats.CachePrefix)
		refreshJobs = queue.NewRedisRefreshQueue(redisClient, cfg.Queues.Refresh)
	} else {
		snapshotCache = cache.NewMemorySnapshotCache()
	}

	var milestoneJobs domain.MilestoneQueue
	var rabbit *queue.RabbitMilestoneQueue
	if cfg.AMQPURL != "" {
		rabbit, err = queue.NewRabbitMilestoneQueue(cfg.AMQPURL, cfg.Queues.Milestones)
		if err != nil {
			logger.Fatal().Err(err).Msg("бот: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		milestoneJobs = rabbit
	}

	events := bus.New()
	statsService := stats.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, snapshotCache, events, refreshJobs, milestoneJobs, logger)
	statsService.BindEvents()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("бот: не удалось создать клиента")
	}

	h := bot.NewHandler(botAPI, logger, statsService, repoAdapter)

	if rabbit != nil {
		notifier := bot.NewNotifier(botAPI, logger, rabbit)
		go func() {
			if err := notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("бот: нотификатор остановлен")
			}
		}()
	}

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, req *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(req.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(req.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":8080", Handler: r}
	go func() {
		logger.Info().Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("остановка бота")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
