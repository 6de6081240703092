package stats

import (
	"time"

	"reading-stats-bot/internal/domain"
)

const dayKeyLayout = "2006-01-02"

// ComputeStreak считает текущую серию: число подряд идущих календарных дней,
// заканчивающихся сегодня, в каждый из которых была хотя бы одна сессия.
// Если сегодня сессий не было, серия равна нулю.
func ComputeStreak(sessions []domain.Session, now time.Time) int {
	if len(sessions) == 0 {
		return 0
	}

	loc := now.Location()
	days := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		days[session.CreatedAt.In(loc).Format(dayKeyLayout)] = struct{}{}
	}

	streak := 0
	for {
		key := now.AddDate(0, 0, -streak).Format(dayKeyLayout)
		if _, ok := days[key]; !ok {
			break
		}
		streak++
	}
	return streak
}
