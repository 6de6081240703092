package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
	"reading-stats-bot/internal/infra/metrics"
)

// Service реализует бизнес-логику статистики чтения: пересчёт снимка,
// кэширование, серии и достижения. Сам расчёт остаётся чистыми функциями,
// сервис только связывает их с хранилищем, кэшем и событиями.
type Service struct {
	users         domain.UserRepo
	sessions      domain.SessionRepo
	books         domain.BookRepo
	milestones    domain.MilestoneRepo
	activity      domain.ActivityRepo
	cache         domain.SnapshotCache
	events        *bus.Bus
	refreshJobs   domain.RefreshQueue   // может быть nil
	milestoneJobs domain.MilestoneQueue // может быть nil
	log           zerolog.Logger
}

// NewService создаёт сервис статистики.
func NewService(users domain.UserRepo, sessions domain.SessionRepo, books domain.BookRepo, milestones domain.MilestoneRepo, activity domain.ActivityRepo, cache domain.SnapshotCache, events *bus.Bus, refreshJobs domain.RefreshQueue, milestoneJobs domain.MilestoneQueue, log zerolog.Logger) *Service {
	return &Service{
		users:         users,
		sessions:      sessions,
		books:         books,
		milestones:    milestones,
		activity:      activity,
		cache:         cache,
		events:        events,
		refreshJobs:   refreshJobs,
		milestoneJobs: milestoneJobs,
		log:           log,
	}
}

// BindEvents подписывает сервис на доменные события: завершение сессии и
// изменение книги инвалидируют кэш, явный запрос пересчёта запускает Refresh.
func (s *Service) BindEvents() {
	events := s.events
	if events == nil {
		return
	}
	invalidate := func(payload any) {
		event, ok := payload.(domain.StatsEvent)
		if !ok {
			return
		}
		if err := s.cache.InvalidateSnapshot(context.Background(), event.UserID); err != nil {
			s.log.Warn().Err(err).Int64("user", event.UserID).Msg("не удалось инвалидировать кэш")
		}
	}
	events.On(domain.EventSessionCompleted, invalidate)
	events.On(domain.EventBookUpdated, invalidate)
	events.On(domain.EventStatsRefreshRequested, func(payload any) {
		event, ok := payload.(domain.StatsEvent)
		if !ok {
			return
		}
		if _, err := s.Refresh(context.Background(), event.UserID, domain.RefreshCauseEvent); err != nil {
			s.log.Error().Err(err).Int64("user", event.UserID).Msg("пересчёт по событию не удался")
		}
	})
}

// Snapshot возвращает кэшированный снимок, а при промахе пересчитывает его.
// Ошибка чтения кэша трактуется как промах, а не как отказ.
func (s *Service) Snapshot(ctx context.Context, userID int64) (domain.AggregateSnapshot, error) {
	cached, err := s.cache.GetSnapshot(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user", userID).Msg("чтение кэша не удалось, пересчитываем")
	}
	if cached != nil {
		return *cached, nil
	}
	return s.Refresh(ctx, userID, domain.RefreshCauseManual)
}

// Refresh принудительно пересчитывает снимок, обновляет кэш и проверяет
// пороги достижений. Конкурирующие пересчёты безопасны: оба пишут в один
// и тот же ключ кэша, побеждает завершившийся последним.
func (s *Service) Refresh(ctx context.Context, userID int64, cause domain.RefreshCause) (domain.AggregateSnapshot, error) {
	start := time.Now()
	user, err := s.users.GetByID(userID)
	if err != nil {
		return domain.AggregateSnapshot{}, fmt.Errorf("получение пользователя: %w", err)
	}

	sessions, err := s.sessions.ListSessions(user.ID)
	if err != nil {
		return domain.AggregateSnapshot{}, fmt.Errorf("получение сессий: %w", err)
	}
	books, err := s.books.ListBooks(user.ID)
	if err != nil {
		return domain.AggregateSnapshot{}, fmt.Errorf("получение книг: %w", err)
	}

	snapshot := ComputeSnapshot(sessions, books, time.Now().In(user.Location()))

	if err := s.cache.SaveSnapshot(ctx, user.ID, snapshot); err != nil {
		s.log.Warn().Err(err).Int64("user", user.ID).Msg("не удалось сохранить снимок в кэш")
	}

	s.emitMilestones(ctx, user, snapshot)

	metrics.ObserveSnapshotBuild(start)
	metrics.IncRefresh(string(cause))
	return snapshot, nil
}

// emitMilestones публикует впервые пересечённые пороги. Отметка о достижении
// ставится только после успешной записи в ленту активности: если запись не
// удалась, порог сработает при следующем пересчёте, а не потеряется молча.
func (s *Service) emitMilestones(ctx context.Context, user domain.User, snapshot domain.AggregateSnapshot) {
	achieved, err := s.milestones.ListAchievedKeys(user.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("user", user.ID).Msg("не удалось получить достигнутые пороги")
		return
	}

	for _, event := range DetectMilestones(snapshot, achieved) {
		payload, err := json.Marshal(event)
		if err != nil {
			s.log.Error().Err(err).Str("key", event.Key).Msg("не удалось сериализовать достижение")
			continue
		}
		if _, err := s.activity.AppendActivity(domain.ActivityEntry{
			UserID:  user.ID,
			Kind:    domain.ActivityKindMilestone,
			Message: event.Message,
			Payload: payload,
		}); err != nil {
			s.log.Error().Err(err).Str("key", event.Key).Msg("не удалось записать достижение в ленту")
			continue
		}
		created, err := s.milestones.MarkAchieved(user.ID, event.Key, snapshot.GeneratedAt)
		if err != nil {
			s.log.Error().Err(err).Str("key", event.Key).Msg("не удалось отметить достижение")
			continue
		}
		if !created {
			continue
		}
		metrics.IncMilestone(string(event.Type))
		if s.milestoneJobs != nil {
			job := domain.MilestoneJob{UserID: user.ID, TGUserID: user.TGUserID, Event: event}
			if err := s.milestoneJobs.Publish(ctx, job); err != nil {
				s.log.Error().Err(err).Str("key", event.Key).Msg("не удалось опубликовать достижение")
			}
		}
	}
}

// RecordSession нормализует и сохраняет завершённую сессию, публикует событие
// и ставит фоновый пересчёт в очередь.
func (s *Service) RecordSession(ctx context.Context, userID int64, raw RawSession) (domain.Session, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("получение пользователя: %w", err)
	}

	session := NormalizeSession(user.ID, raw, time.Now().In(user.Location()))
	saved, err := s.sessions.SaveSession(session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("сохранение сессии: %w", err)
	}
	metrics.IncSessionRecorded()

	if s.events != nil {
		s.events.Emit(domain.EventSessionCompleted, domain.StatsEvent{UserID: user.ID})
	}
	if s.refreshJobs != nil {
		job := domain.RefreshJob{
			ID:          uuid.NewString(),
			UserID:      user.ID,
			Cause:       domain.RefreshCauseEvent,
			RequestedAt: time.Now().UTC(),
		}
		if err := s.refreshJobs.Enqueue(ctx, job); err != nil {
			s.log.Warn().Err(err).Int64("user", user.ID).Msg("не удалось поставить пересчёт в очередь")
		}
	}
	return saved, nil
}

// LastUpdate возвращает время последнего сохранения снимка в кэш.
func (s *Service) LastUpdate(ctx context.Context, userID int64) (time.Time, error) {
	return s.cache.LastUpdate(ctx, userID)
}

// Milestones возвращает достигнутые пороги пользователя.
func (s *Service) Milestones(ctx context.Context, userID int64) ([]domain.MilestoneRecord, error) {
	return s.milestones.ListMilestones(userID)
}

// Activity возвращает последние записи ленты активности.
func (s *Service) Activity(ctx context.Context, userID int64, limit int) ([]domain.ActivityEntry, error) {
	return s.activity.ListActivity(userID, limit)
}

// RecentSessions возвращает последние сессии пользователя.
func (s *Service) RecentSessions(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	return s.sessions.ListRecentSessions(userID, limit)
}
