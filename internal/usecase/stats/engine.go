package stats

import (
	"math"
	"time"

	"reading-stats-bot/internal/domain"
)

// ComputeSnapshot строит полный снимок статистики по журналу сессий и книгам.
// Функция чистая: никакого состояния, никакого случайного разрешения ничьих,
// для одинаковых входов и одинакового now результат воспроизводим побайтно.
// Границы окон считаются в часовом поясе now.
func ComputeSnapshot(sessions []domain.Session, books []domain.Book, now time.Time) domain.AggregateSnapshot {
	snapshot := domain.AggregateSnapshot{
		GeneratedAt: now,
		Tags:        map[string]domain.TagStats{},
		Intents:     map[domain.Intent]domain.IntentStats{},
	}

	loc := now.Location()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekStart := now.Add(-7 * 24 * time.Hour)
	monthStart := now.AddDate(0, -1, 0)

	booksByID := make(map[int64]domain.Book, len(books))
	finishedByID := make(map[int64]bool, len(books))
	for _, book := range books {
		booksByID[book.ID] = book
		if book.IsFinished() {
			snapshot.BooksFinished++
			finishedByID[book.ID] = true
			if book.FinishedAt != nil && book.FinishedAt.In(loc).Year() == now.Year() {
				snapshot.BooksFinishedYear++
			}
		}
		if book.IsReading() {
			snapshot.BooksReading++
		}
	}

	var (
		firstSession     time.Time
		finishedSeconds  int64
		weekdaySeconds   [7]int64
		timeOfDaySeconds = map[domain.TimeOfDay]int64{}
	)

	snapshot.SessionCount = len(sessions)
	for _, session := range sessions {
		seconds := session.DurationSeconds
		if seconds < 0 {
			seconds = 0
		}
		ts := session.CreatedAt.In(loc)

		snapshot.LifetimeSeconds += seconds
		if inWindow(ts, dayStart, now) {
			snapshot.TodaySeconds += seconds
		}
		if inWindow(ts, weekStart, now) {
			snapshot.WeekSeconds += seconds
		}
		if inWindow(ts, monthStart, now) {
			snapshot.MonthSeconds += seconds
		}

		if seconds > snapshot.LongestSessionSeconds {
			snapshot.LongestSessionSeconds = seconds
		}
		snapshot.TotalPages += session.PagesRead

		if firstSession.IsZero() || ts.Before(firstSession) {
			firstSession = ts
		}

		weekdaySeconds[int(ts.Weekday())] += seconds
		timeOfDaySeconds[timeOfDayBucket(ts.Hour())] += seconds

		if offset := daysAgo(ts, dayStart); offset >= 0 && offset < 7 {
			snapshot.WeekHistogram[offset] += int64(math.Round(float64(seconds) / 60))
		}

		if finishedByID[session.BookID] {
			finishedSeconds += seconds
		}
		if book, ok := booksByID[session.BookID]; ok && session.BookID != 0 {
			for _, tag := range book.ContentTags() {
				bucket := snapshot.Tags[tag]
				bucket.Seconds += seconds
				bucket.Pages += session.PagesRead
				bucket.Sessions++
				snapshot.Tags[tag] = bucket
			}
		}
		if session.Intent.Valid() {
			bucket := snapshot.Intents[session.Intent]
			bucket.Seconds += seconds
			bucket.Sessions++
			snapshot.Intents[session.Intent] = bucket
		}
	}

	if snapshot.SessionCount > 0 {
		snapshot.AvgSessionSeconds = snapshot.LifetimeSeconds / int64(snapshot.SessionCount)
	}
	if snapshot.BooksFinished > 0 {
		snapshot.AvgSecondsPerBook = finishedSeconds / int64(snapshot.BooksFinished)
	}

	if snapshot.TotalPages > 0 && !firstSession.IsZero() {
		days := math.Ceil(now.Sub(firstSession).Hours() / 24)
		if days < 1 {
			days = 1
		}
		snapshot.PagesPerDay = float64(snapshot.TotalPages) / days
	}
	if snapshot.LifetimeSeconds > 0 {
		snapshot.PagesPerHour = float64(snapshot.TotalPages) / (float64(snapshot.LifetimeSeconds) / 3600)
	}

	for tag, bucket := range snapshot.Tags {
		bucket.Percent = percentOf(bucket.Seconds, snapshot.LifetimeSeconds)
		snapshot.Tags[tag] = bucket
	}
	for intent, bucket := range snapshot.Intents {
		bucket.Percent = percentOf(bucket.Seconds, snapshot.LifetimeSeconds)
		snapshot.Intents[intent] = bucket
	}

	// Ничья между днями недели разрешается в пользу меньшего индекса.
	for day := 1; day < 7; day++ {
		if weekdaySeconds[day] > weekdaySeconds[snapshot.BestWeekday] {
			snapshot.BestWeekday = time.Weekday(day)
		}
	}

	if snapshot.SessionCount > 0 {
		// Фиксированная цепочка сравнений: при равенстве afternoon
		// перекрывает morning, evening перекрывает текущего лидера.
		best, bestSum := domain.TimeMorning, timeOfDaySeconds[domain.TimeMorning]
		if sum := timeOfDaySeconds[domain.TimeAfternoon]; sum >= bestSum {
			best, bestSum = domain.TimeAfternoon, sum
		}
		if sum := timeOfDaySeconds[domain.TimeEvening]; sum >= bestSum {
			best = domain.TimeEvening
		}
		snapshot.BestTimeOfDay = best
	}

	snapshot.Streak = ComputeStreak(sessions, now)

	return snapshot
}

// inWindow проверяет попадание в окно, границы включительно.
func inWindow(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

func timeOfDayBucket(hour int) domain.TimeOfDay {
	switch {
	case hour >= 6 && hour < 12:
		return domain.TimeMorning
	case hour >= 12 && hour < 18:
		return domain.TimeAfternoon
	default:
		return domain.TimeEvening
	}
}

// daysAgo возвращает число календарных суток между днём ts и сегодняшним днём.
func daysAgo(ts, dayStart time.Time) int {
	tsDay := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
	// Округление сглаживает дни перевода часов, где сутки не равны 24 часам.
	return int(math.Round(dayStart.Sub(tsDay).Hours() / 24))
}

// percentOf округляет долю до целых процентов, не опускаясь ниже нуля.
func percentOf(part, total int64) int {
	if total <= 0 {
		return 0
	}
	percent := int(math.Round(float64(part) / float64(total) * 100))
	if percent < 0 {
		return 0
	}
	return percent
}
