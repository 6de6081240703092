package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
	"reading-stats-bot/internal/infra/cache"
)

type stubUserRepo struct {
	user domain.User
}

func (r *stubUserRepo) UpsertByTGID(tgUserID int64, locale, tz string) (domain.User, error) {
	return r.user, nil
}

func (r *stubUserRepo) GetByTGID(tgUserID int64) (domain.User, error) {
	if tgUserID != r.user.TGUserID {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.user, nil
}

func (r *stubUserRepo) GetByID(userID int64) (domain.User, error) {
	if userID != r.user.ID {
		return domain.User{}, domain.ErrUserNotFound
	}
	return r.user, nil
}

func (r *stubUserRepo) ListAll() ([]domain.User, error) {
	return []domain.User{r.user}, nil
}

type stubSessionRepo struct {
	sessions  []domain.Session
	listCalls int
}

func (r *stubSessionRepo) SaveSession(session domain.Session) (domain.Session, error) {
	session.ID = int64(len(r.sessions) + 1)
	r.sessions = append(r.sessions, session)
	return session, nil
}

func (r *stubSessionRepo) ListSessions(userID int64) ([]domain.Session, error) {
	r.listCalls++
	return r.sessions, nil
}

func (r *stubSessionRepo) ListRecentSessions(userID int64, limit int) ([]domain.Session, error) {
	if limit > len(r.sessions) {
		limit = len(r.sessions)
	}
	return r.sessions[len(r.sessions)-limit:], nil
}

type stubBookRepo struct {
	books []domain.Book
}

func (r *stubBookRepo) CreateBook(book domain.Book) (domain.Book, error) { return book, nil }

func (r *stubBookRepo) GetBook(userID, bookID int64) (domain.Book, error) {
	for _, book := range r.books {
		if book.ID == bookID {
			return book, nil
		}
	}
	return domain.Book{}, domain.ErrBookNotFound
}

func (r *stubBookRepo) ListBooks(userID int64) ([]domain.Book, error) { return r.books, nil }

func (r *stubBookRepo) UpdateBookStatus(userID, bookID int64, status domain.BookStatus, finishedAt *time.Time) error {
	return nil
}

func (r *stubBookRepo) UpdateBookProgress(userID, bookID int64, currentPage int) error { return nil }

func (r *stubBookRepo) UpdateBookTags(userID, bookID int64, tags []string) error { return nil }

type stubMilestoneRepo struct {
	achieved map[string]struct{}
	marked   []string
}

func (r *stubMilestoneRepo) MarkAchieved(userID int64, key string, achievedAt time.Time) (bool, error) {
	if r.achieved == nil {
		r.achieved = map[string]struct{}{}
	}
	if _, ok := r.achieved[key]; ok {
		return false, nil
	}
	r.achieved[key] = struct{}{}
	r.marked = append(r.marked, key)
	return true, nil
}

func (r *stubMilestoneRepo) ListAchievedKeys(userID int64) (map[string]struct{}, error) {
	keys := make(map[string]struct{}, len(r.achieved))
	for key := range r.achieved {
		keys[key] = struct{}{}
	}
	return keys, nil
}

func (r *stubMilestoneRepo) ListMilestones(userID int64) ([]domain.MilestoneRecord, error) {
	return nil, nil
}

type stubActivityRepo struct {
	entries   []domain.ActivityEntry
	appendErr error
}

func (r *stubActivityRepo) AppendActivity(entry domain.ActivityEntry) (domain.ActivityEntry, error) {
	if r.appendErr != nil {
		return domain.ActivityEntry{}, r.appendErr
	}
	entry.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *stubActivityRepo) ListActivity(userID int64, limit int) ([]domain.ActivityEntry, error) {
	return r.entries, nil
}

type stubMilestoneQueue struct {
	published []domain.MilestoneJob
}

func (q *stubMilestoneQueue) Publish(_ context.Context, job domain.MilestoneJob) error {
	q.published = append(q.published, job)
	return nil
}

func (q *stubMilestoneQueue) Consume(_ context.Context, _ func(domain.MilestoneJob) error) error {
	return nil
}

type stubRefreshQueue struct {
	jobs []domain.RefreshJob
}

func (q *stubRefreshQueue) Enqueue(_ context.Context, job domain.RefreshJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *stubRefreshQueue) Pop(_ context.Context) (domain.RefreshJob, error) {
	return domain.RefreshJob{}, context.Canceled
}

type fixture struct {
	users      *stubUserRepo
	sessions   *stubSessionRepo
	books      *stubBookRepo
	milestones *stubMilestoneRepo
	activity   *stubActivityRepo
	cache      *cache.MemorySnapshotCache
	events     *bus.Bus
	refresh    *stubRefreshQueue
	queue      *stubMilestoneQueue
	service    *Service
}

func newFixture() *fixture {
	f := &fixture{
		users:      &stubUserRepo{user: domain.User{ID: 1, TGUserID: 100}},
		sessions:   &stubSessionRepo{},
		books:      &stubBookRepo{},
		milestones: &stubMilestoneRepo{},
		activity:   &stubActivityRepo{},
		cache:      cache.NewMemorySnapshotCache(),
		events:     bus.New(),
		refresh:    &stubRefreshQueue{},
		queue:      &stubMilestoneQueue{},
	}
	f.service = NewService(f.users, f.sessions, f.books, f.milestones, f.activity, f.cache, f.events, f.refresh, f.queue, zerolog.Nop())
	return f
}

func TestRefreshComputesAndCaches(t *testing.T) {
	f := newFixture()
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 1800, PagesRead: 20},
	}

	snapshot, err := f.service.Refresh(context.Background(), 1, domain.RefreshCauseManual)
	if err != nil {
		t.Fatalf("пересчёт не должен падать: %v", err)
	}
	if snapshot.LifetimeSeconds != 1800 || snapshot.TotalPages != 20 {
		t.Fatalf("неожиданный снимок: %+v", snapshot)
	}

	cached, err := f.cache.GetSnapshot(context.Background(), 1)
	if err != nil || cached == nil {
		t.Fatalf("снимок должен оказаться в кэше: %v, %v", cached, err)
	}
	if cached.LifetimeSeconds != 1800 {
		t.Fatalf("в кэше не тот снимок: %+v", cached)
	}
}

func TestSnapshotServedFromCache(t *testing.T) {
	f := newFixture()
	want := domain.AggregateSnapshot{LifetimeSeconds: 777}
	if err := f.cache.SaveSnapshot(context.Background(), 1, want); err != nil {
		t.Fatal(err)
	}

	got, err := f.service.Snapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("чтение снимка не должно падать: %v", err)
	}
	if got.LifetimeSeconds != 777 {
		t.Fatalf("ожидали снимок из кэша, получили %+v", got)
	}
	if f.sessions.listCalls != 0 {
		t.Fatalf("попадание в кэш не должно трогать хранилище, было %d обращений", f.sessions.listCalls)
	}
}

func TestSnapshotRecomputesOnMiss(t *testing.T) {
	f := newFixture()
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 600},
	}

	got, err := f.service.Snapshot(context.Background(), 1)
	if err != nil {
		t.Fatalf("промах кэша должен приводить к пересчёту: %v", err)
	}
	if got.LifetimeSeconds != 600 {
		t.Fatalf("неожиданный снимок: %+v", got)
	}
	if f.sessions.listCalls != 1 {
		t.Fatalf("ожидали одно обращение к хранилищу, было %d", f.sessions.listCalls)
	}
}

func TestRecordSessionInvalidatesCache(t *testing.T) {
	f := newFixture()
	f.service.BindEvents()
	if err := f.cache.SaveSnapshot(context.Background(), 1, domain.AggregateSnapshot{LifetimeSeconds: 1}); err != nil {
		t.Fatal(err)
	}

	saved, err := f.service.RecordSession(context.Background(), 1, RawSession{DurationMinutes: float64(5)})
	if err != nil {
		t.Fatalf("запись сессии не должна падать: %v", err)
	}
	if saved.DurationSeconds != 300 {
		t.Fatalf("ожидали нормализованные 300 секунд, получили %d", saved.DurationSeconds)
	}

	cached, err := f.cache.GetSnapshot(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Fatal("завершение сессии должно инвалидировать кэш")
	}
	if len(f.refresh.jobs) != 1 {
		t.Fatalf("ожидали одну задачу пересчёта в очереди, получили %d", len(f.refresh.jobs))
	}
	if f.refresh.jobs[0].UserID != 1 || f.refresh.jobs[0].ID == "" {
		t.Fatalf("неожиданная задача: %+v", f.refresh.jobs[0])
	}
}

func TestRefreshRequestedEventTriggersRecompute(t *testing.T) {
	f := newFixture()
	f.service.BindEvents()
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 900},
	}

	f.events.Emit(domain.EventStatsRefreshRequested, domain.StatsEvent{UserID: 1})

	cached, err := f.cache.GetSnapshot(context.Background(), 1)
	if err != nil || cached == nil {
		t.Fatalf("пересчёт по событию должен наполнить кэш: %v, %v", cached, err)
	}
	if cached.LifetimeSeconds != 900 {
		t.Fatalf("в кэше не тот снимок: %+v", cached)
	}
}

func TestRefreshEmitsMilestones(t *testing.T) {
	f := newFixture()
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 3600, PagesRead: 150},
	}

	if _, err := f.service.Refresh(context.Background(), 1, domain.RefreshCauseManual); err != nil {
		t.Fatalf("пересчёт не должен падать: %v", err)
	}

	if len(f.milestones.marked) != 1 || f.milestones.marked[0] != "pages_100" {
		t.Fatalf("ожидали отметку pages_100, получили %v", f.milestones.marked)
	}
	if len(f.activity.entries) != 1 || f.activity.entries[0].Kind != domain.ActivityKindMilestone {
		t.Fatalf("достижение должно попасть в ленту: %+v", f.activity.entries)
	}
	if len(f.queue.published) != 1 {
		t.Fatalf("ожидали одну публикацию, получили %d", len(f.queue.published))
	}
	if job := f.queue.published[0]; job.TGUserID != 100 || job.Event.Key != "pages_100" {
		t.Fatalf("неожиданная публикация: %+v", job)
	}
}

func TestMilestoneNotRepeatedOnSecondRefresh(t *testing.T) {
	f := newFixture()
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 3600, PagesRead: 150},
	}

	for i := 0; i < 2; i++ {
		if _, err := f.service.Refresh(context.Background(), 1, domain.RefreshCauseScheduled); err != nil {
			t.Fatalf("пересчёт не должен падать: %v", err)
		}
	}

	if len(f.queue.published) != 1 {
		t.Fatalf("повторный пересчёт не должен дублировать достижение, публикаций %d", len(f.queue.published))
	}
	if len(f.activity.entries) != 1 {
		t.Fatalf("в ленте должна быть одна запись, получили %d", len(f.activity.entries))
	}
}

func TestMilestoneNotMarkedWhenActivityFails(t *testing.T) {
	f := newFixture()
	f.activity.appendErr = errors.New("лента недоступна")
	f.sessions.sessions = []domain.Session{
		{UserID: 1, CreatedAt: time.Now().Add(-time.Hour), DurationSeconds: 3600, PagesRead: 150},
	}

	if _, err := f.service.Refresh(context.Background(), 1, domain.RefreshCauseManual); err != nil {
		t.Fatalf("сбой ленты не должен ронять пересчёт: %v", err)
	}
	if len(f.milestones.marked) != 0 {
		t.Fatalf("без записи в ленту порог не отмечается: %v", f.milestones.marked)
	}
	if len(f.queue.published) != 0 {
		t.Fatal("без отметки не должно быть публикаций")
	}

	// После восстановления ленты порог срабатывает со следующего пересчёта.
	f.activity.appendErr = nil
	if _, err := f.service.Refresh(context.Background(), 1, domain.RefreshCauseManual); err != nil {
		t.Fatalf("повторный пересчёт не должен падать: %v", err)
	}
	if len(f.milestones.marked) != 1 || f.milestones.marked[0] != "pages_100" {
		t.Fatalf("порог должен сработать после восстановления: %v", f.milestones.marked)
	}
}

func TestRefreshUnknownUser(t *testing.T) {
	f := newFixture()

	_, err := f.service.Refresh(context.Background(), 999, domain.RefreshCauseManual)
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("ожидали ErrUserNotFound, получили %v", err)
	}
}
