package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"reading-stats-bot/internal/adapters/repo"
	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
	"reading-stats-bot/internal/infra/cache"
	"reading-stats-bot/internal/infra/config"
	"reading-stats-bot/internal/infra/db"
	httpinfra "reading-stats-bot/internal/infra/http"
	applog "reading-stats-bot/internal/infra/log"
	"reading-stats-bot/internal/infra/metrics"
	"reading-stats-bot/internal/infra/queue"
	"reading-stats-bot/internal/usecase/books"
	"reading-stats-bot/internal/usecase/stats"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
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
		logger.Warn().Msg("api: Redis не настроен, кэш в памяти процесса")
		snapshotCache = cache.NewMemorySnapshotCache()
	}

	var milestoneJobs domain.MilestoneQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitMilestoneQueue(cfg.AMQPURL, cfg.Queues.Milestones)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к RabbitMQ")
		}
		defer rabbit.Close()
		milestoneJobs = rabbit
	}

	events := bus.New()
	statsService := stats.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, snapshotCache, events, refreshJobs, milestoneJobs, logger)
	statsService.BindEvents()
	booksService := books.NewService(repoAdapter, events, logger)

	server := httpinfra.NewServer(logger)

	server.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/users", func(w http.ResponseWriter, req *http.Request) {
			defer req.Body.Close()
			var body struct {
				TGUserID int64  `json:"tg_user_id"`
				Locale   string `json:"locale"`
				Timezone string `json:"timezone"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.TGUserID == 0 {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			user, err := repoAdapter.UpsertByTGID(body.TGUserID, body.Locale, body.Timezone)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, map[string]any{"id": user.ID, "tg_user_id": user.TGUserID})
		})

		r.Post("/sessions", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			defer req.Body.Close()
			var raw stats.RawSession
			if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			session, err := statsService.RecordSession(req.Context(), userID, raw)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, sessionResponse(session))
		})

		r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			limit := intQuery(req, "limit", cfg.Limits.RecentSessions)
			sessions, err := statsService.RecentSessions(req.Context(), userID, limit)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			out := make([]map[string]any, 0, len(sessions))
			for _, session := range sessions {
				out = append(out, sessionResponse(session))
			}
			writeJSON(w, out)
		})

		r.Post("/books", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			defer req.Body.Close()
			var body struct {
				Title      string   `json:"title"`
				Author     string   `json:"author"`
				TotalPages int      `json:"total_pages"`
				Tags       []string `json:"tags"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			book, err := booksService.AddBook(req.Context(), userID, body.Title, body.Author, body.TotalPages, body.Tags)
			if err != nil {
				if errors.Is(err, books.ErrEmptyTitle) {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				writeServiceError(w, err)
				return
			}
			writeJSON(w, bookResponse(book))
		})

		r.Get("/books", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			list, err := booksService.ListBooks(req.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			out := make([]map[string]any, 0, len(list))
			for _, book := range list {
				out = append(out, bookResponse(book))
			}
			writeJSON(w, out)
		})

		r.Patch("/books/{id}", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			bookID, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
			if err != nil || bookID <= 0 {
				writeError(w, http.StatusBadRequest, "invalid book id")
				return
			}
			defer req.Body.Close()
			var body struct {
				Status      *string   `json:"status"`
				CurrentPage *int      `json:"current_page"`
				Tags        *[]string `json:"tags"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Status != nil {
				if err := booksService.SetStatus(req.Context(), userID, bookID, domain.BookStatus(*body.Status)); err != nil {
					writeBookError(w, err)
					return
				}
			}
			if body.CurrentPage != nil {
				if err := booksService.UpdateProgress(req.Context(), userID, bookID, *body.CurrentPage); err != nil {
					writeBookError(w, err)
					return
				}
			}
			if body.Tags != nil {
				if err := booksService.UpdateTags(req.Context(), userID, bookID, *body.Tags); err != nil {
					writeBookError(w, err)
					return
				}
			}
			book, err := repoAdapter.GetBook(userID, bookID)
			if err != nil {
				writeBookError(w, err)
				return
			}
			writeJSON(w, bookResponse(book))
		})

		r.Get("/stats/snapshot", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			snapshot, err := statsService.Snapshot(req.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			lastUpdate, _ := statsService.LastUpdate(req.Context(), userID)
			writeJSON(w, snapshotResponse(snapshot, lastUpdate))
		})

		r.Post("/stats/refresh", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			// Событие синхронно запускает пересчёт у всех подписчиков,
			// после него кэш уже содержит свежий снимок.
			events.Emit(domain.EventStatsRefreshRequested, domain.StatsEvent{UserID: userID})
			snapshot, err := statsService.Snapshot(req.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			lastUpdate, _ := statsService.LastUpdate(req.Context(), userID)
			writeJSON(w, snapshotResponse(snapshot, lastUpdate))
		})

		r.Get("/stats/milestones", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			records, err := statsService.Milestones(req.Context(), userID)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			out := make([]map[string]any, 0, len(records))
			for _, record := range records {
				out = append(out, map[string]any{
					"key":         record.Key,
					"achieved_at": record.AchievedAt.Format(time.RFC3339),
				})
			}
			writeJSON(w, out)
		})

		r.Get("/activity", func(w http.ResponseWriter, req *http.Request) {
			userID, ok := userIDFrom(w, req)
			if !ok {
				return
			}
			limit := intQuery(req, "limit", cfg.Limits.ActivityPage)
			entries, err := statsService.Activity(req.Context(), userID, limit)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			out := make([]map[string]any, 0, len(entries))
			for _, entry := range entries {
				item := map[string]any{
					"id":         entry.ID,
					"kind":       entry.Kind,
					"message":    entry.Message,
					"created_at": entry.CreatedAt.Format(time.RFC3339),
				}
				if len(entry.Payload) > 0 {
					item["payload"] = json.RawMessage(entry.Payload)
				}
				out = append(out, item)
			}
			writeJSON(w, out)
		})
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: HTTP сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

// userIDFrom достаёт идентификатор пользователя, проставленный внешним
// слоем аутентификации.
func userIDFrom(w http.ResponseWriter, req *http.Request) (int64, bool) {
	raw := req.Header.Get("X-User-ID")
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusUnauthorized, "missing or invalid X-User-ID")
		return 0, false
	}
	return userID, true
}

func intQuery(req *http.Request, name string, fallback int) int {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeBookError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, books.ErrInvalidStatus), errors.Is(err, books.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func sessionResponse(session domain.Session) map[string]any {
	out := map[string]any{
		"id":               session.ID,
		"created_at":       session.CreatedAt.Format(time.RFC3339),
		"duration_seconds": session.DurationSeconds,
		"pages_read":       session.PagesRead,
	}
	if session.BookID != 0 {
		out["book_id"] = session.BookID
	}
	if session.Intent != "" {
		out["intent"] = string(session.Intent)
	}
	return out
}

func bookResponse(book domain.Book) map[string]any {
	out := map[string]any{
		"id":           book.ID,
		"title":        book.Title,
		"author":       book.Author,
		"status":       string(book.Status),
		"tags":         book.Tags,
		"current_page": book.CurrentPage,
		"total_pages":  book.TotalPages,
	}
	if book.FinishedAt != nil {
		out["finished_at"] = book.FinishedAt.Format(time.RFC3339)
	}
	return out
}

func snapshotResponse(snapshot domain.AggregateSnapshot, lastUpdate time.Time) map[string]any {
	out := map[string]any{"snapshot": snapshot}
	if !lastUpdate.IsZero() {
		out["last_update"] = lastUpdate.Format(time.RFC3339)
	}
	return out
}
