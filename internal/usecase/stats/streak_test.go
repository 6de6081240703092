package stats

import (
	"testing"
	"time"

	"reading-stats-bot/internal/domain"
)

func sessionOn(ts time.Time) domain.Session {
	return domain.Session{CreatedAt: ts, DurationSeconds: 600}
}

func TestComputeStreakConsecutiveDays(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	sessions := []domain.Session{
		sessionOn(now.Add(-time.Hour)),
		sessionOn(now.AddDate(0, 0, -1)),
		sessionOn(now.AddDate(0, 0, -2)),
	}

	if got := ComputeStreak(sessions, now); got != 3 {
		t.Fatalf("ожидали серию 3, получили %d", got)
	}
}

func TestComputeStreakBreaksOnGap(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	sessions := []domain.Session{
		sessionOn(now.Add(-time.Hour)),
		sessionOn(now.AddDate(0, 0, -2)),
	}

	if got := ComputeStreak(sessions, now); got != 1 {
		t.Fatalf("пропуск дня обрывает серию, ожидали 1, получили %d", got)
	}
}

func TestComputeStreakZeroWithoutToday(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	sessions := []domain.Session{
		sessionOn(now.AddDate(0, 0, -1)),
		sessionOn(now.AddDate(0, 0, -2)),
	}

	if got := ComputeStreak(sessions, now); got != 0 {
		t.Fatalf("без сессии сегодня серия равна нулю, получили %d", got)
	}
}

func TestComputeStreakEmpty(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	if got := ComputeStreak(nil, now); got != 0 {
		t.Fatalf("пустой журнал — нулевая серия, получили %d", got)
	}
}

func TestComputeStreakCountsDayOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	sessions := []domain.Session{
		sessionOn(now.Add(-time.Hour)),
		sessionOn(now.Add(-2 * time.Hour)),
		sessionOn(now.Add(-3 * time.Hour)),
	}

	if got := ComputeStreak(sessions, now); got != 1 {
		t.Fatalf("несколько сессий в один день дают серию 1, получили %d", got)
	}
}

func TestComputeStreakRespectsTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	now := time.Date(2025, 3, 10, 2, 0, 0, 0, loc)
	// В UTC это ещё 9 марта, но для пользователя — уже 10-е.
	sessions := []domain.Session{
		sessionOn(time.Date(2025, 3, 9, 20, 30, 0, 0, time.UTC)),
	}

	if got := ComputeStreak(sessions, now); got != 1 {
		t.Fatalf("день определяется по поясу пользователя, ожидали 1, получили %d", got)
	}
}
