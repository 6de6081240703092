package stats

import (
	"encoding/json"
	"strconv"
	"time"

	"reading-stats-bot/internal/domain"
)

// RawSession — сессия в том виде, в каком её присылает клиент или отдаёт
// внешнее хранилище. Исторические записи разнородны: длительность может быть
// в секундах или в минутах, числовые поля могут приходить строками.
type RawSession struct {
	BookID          int64  `json:"book_id,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	DurationSeconds any    `json:"duration_seconds,omitempty"`
	DurationMinutes any    `json:"duration_minutes,omitempty"`
	PagesRead       any    `json:"pages_read,omitempty"`
	Intent          string `json:"intent,omitempty"`
}

// NormalizeSession приводит сырую запись к каноничной доменной форме.
// Некорректные поля не приводят к ошибке: их вклад деградирует до нуля,
// одна испорченная запись не должна ломать агрегат.
func NormalizeSession(userID int64, raw RawSession, now time.Time) domain.Session {
	session := domain.Session{
		UserID:          userID,
		BookID:          raw.BookID,
		CreatedAt:       parseCreatedAt(raw.CreatedAt, now),
		DurationSeconds: NormalizeDuration(raw),
		PagesRead:       normalizePages(raw.PagesRead),
	}
	if intent := domain.Intent(raw.Intent); intent.Valid() {
		session.Intent = intent
	}
	return session
}

// NormalizeDuration вычисляет длительность в секундах.
// Приоритет фиксированный: положительное duration_seconds, иначе
// положительное duration_minutes умноженное на 60, иначе 0.
func NormalizeDuration(raw RawSession) int64 {
	if seconds, ok := toFloat(raw.DurationSeconds); ok && seconds > 0 {
		return int64(seconds)
	}
	if minutes, ok := toFloat(raw.DurationMinutes); ok && minutes > 0 {
		return int64(minutes * 60)
	}
	return 0
}

func normalizePages(v any) int {
	pages, ok := toFloat(v)
	if !ok || pages <= 0 {
		return 0
	}
	return int(pages)
}

func parseCreatedAt(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return now
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int64:
		return float64(value), true
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
