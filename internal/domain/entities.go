package domain

import (
	"strings"
	"time"
)

// User описывает читателя в системе.
type User struct {
	ID        int64
	TGUserID  int64
	Locale    string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location возвращает часовой пояс пользователя, UTC если он не задан.
func (u User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BookStatus описывает состояние книги в библиотеке пользователя.
type BookStatus string

const (
	StatusReading    BookStatus = "reading"
	StatusCompleted  BookStatus = "completed"
	StatusWantToRead BookStatus = "want_to_read"
	StatusAbandoned  BookStatus = "abandoned"
)

// statusAliasTags — зарезервированные теги, дублирующие статус книги.
// Они учитываются при подсчёте прочитанных книг, но исключаются из разбивки по тегам.
var statusAliasTags = map[string]BookStatus{
	"finished":    StatusCompleted,
	"reading_now": StatusReading,
	"to_read":     StatusWantToRead,
	"abandoned":   StatusAbandoned,
}

// IsStatusAliasTag сообщает, является ли тег зарезервированным алиасом статуса.
func IsStatusAliasTag(tag string) bool {
	_, ok := statusAliasTags[strings.ToLower(strings.TrimSpace(tag))]
	return ok
}

// Book описывает отслеживаемую книгу.
type Book struct {
	ID          int64
	UserID      int64
	Title       string
	Author      string
	Status      BookStatus
	Tags        []string
	CurrentPage int
	TotalPages  int
	FinishedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsFinished учитывает как статус, так и тег-алиас.
func (b Book) IsFinished() bool {
	return b.hasStatus(StatusCompleted)
}

// IsReading учитывает как статус, так и тег-алиас.
func (b Book) IsReading() bool {
	return b.hasStatus(StatusReading)
}

func (b Book) hasStatus(status BookStatus) bool {
	if b.Status == status {
		return true
	}
	for _, tag := range b.Tags {
		if statusAliasTags[strings.ToLower(strings.TrimSpace(tag))] == status {
			return true
		}
	}
	return false
}

// ContentTags возвращает теги книги без зарезервированных алиасов статуса.
func (b Book) ContentTags() []string {
	out := make([]string, 0, len(b.Tags))
	for _, tag := range b.Tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" || IsStatusAliasTag(trimmed) {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// Intent описывает заявленную цель сессии чтения.
type Intent string

const (
	IntentStudy    Intent = "study"
	IntentRelax    Intent = "relax"
	IntentResearch Intent = "research"
	IntentHabit    Intent = "habit"
)

// Intents перечисляет фиксированные категории в порядке вывода.
var Intents = []Intent{IntentStudy, IntentRelax, IntentResearch, IntentHabit}

// Valid сообщает, входит ли значение в фиксированный набор категорий.
func (i Intent) Valid() bool {
	switch i {
	case IntentStudy, IntentRelax, IntentResearch, IntentHabit:
		return true
	}
	return false
}

// Session описывает один завершённый интервал чтения.
// Запись создаётся один раз и дальше не изменяется.
type Session struct {
	ID              int64
	UserID          int64
	BookID          int64 // 0, если сессия не привязана к книге
	CreatedAt       time.Time
	DurationSeconds int64
	PagesRead       int
	Intent          Intent // пустая строка допустима
}

// TimeOfDay описывает фиксированный интервал времени суток.
type TimeOfDay string

const (
	TimeMorning   TimeOfDay = "morning"   // 06:00–11:59
	TimeAfternoon TimeOfDay = "afternoon" // 12:00–17:59
	TimeEvening   TimeOfDay = "evening"   // 18:00–05:59, через полночь
)

// TagStats агрегирует показатели по одному тегу.
type TagStats struct {
	Seconds  int64 `json:"seconds"`
	Pages    int   `json:"pages"`
	Sessions int   `json:"sessions"`
	Percent  int   `json:"percent"`
}

// IntentStats агрегирует показатели по одной категории намерений.
type IntentStats struct {
	Seconds  int64 `json:"seconds"`
	Sessions int   `json:"sessions"`
	Percent  int   `json:"percent"`
}

// AggregateSnapshot — полный набор производных метрик на момент времени.
// Снимок детерминирован: одинаковые входные данные и одинаковый момент
// времени дают побайтно одинаковый результат.
type AggregateSnapshot struct {
	GeneratedAt time.Time `json:"generated_at"`

	TodaySeconds    int64 `json:"today_seconds"`
	WeekSeconds     int64 `json:"week_seconds"`
	MonthSeconds    int64 `json:"month_seconds"`
	LifetimeSeconds int64 `json:"lifetime_seconds"`

	SessionCount          int   `json:"session_count"`
	AvgSessionSeconds     int64 `json:"avg_session_seconds"`
	LongestSessionSeconds int64 `json:"longest_session_seconds"`

	TotalPages   int     `json:"total_pages"`
	PagesPerDay  float64 `json:"pages_per_day"`
	PagesPerHour float64 `json:"pages_per_hour"`

	BooksFinished     int   `json:"books_finished"`
	BooksReading      int   `json:"books_reading"`
	AvgSecondsPerBook int64 `json:"avg_seconds_per_book"`
	BooksFinishedYear int   `json:"books_finished_year"`

	Tags    map[string]TagStats    `json:"tags"`
	Intents map[Intent]IntentStats `json:"intents"`

	Streak        int          `json:"streak"`
	BestWeekday   time.Weekday `json:"best_weekday"`
	BestTimeOfDay TimeOfDay    `json:"best_time_of_day"`

	// WeekHistogram — минуты чтения по дням: индекс 0 — сегодня, 6 — шесть дней назад.
	WeekHistogram [7]int64 `json:"week_histogram"`
}

// MilestoneRecord фиксирует однократно достигнутый порог.
type MilestoneRecord struct {
	UserID     int64
	Key        string
	AchievedAt time.Time
}

// MilestoneType описывает лестницу порогов, к которой относится событие.
type MilestoneType string

const (
	MilestonePages       MilestoneType = "pages"
	MilestoneBooks       MilestoneType = "books_completed"
	MilestoneYearlyBooks MilestoneType = "yearly_books"
)

// MilestoneEvent — однократное событие пересечения порога.
type MilestoneEvent struct {
	Key     string        `json:"key"`
	Type    MilestoneType `json:"type"`
	Value   int           `json:"value"`
	Year    int           `json:"year,omitempty"`
	Message string        `json:"message"`
}

// ActivityEntry — запись в долговременной ленте активности пользователя.
type ActivityEntry struct {
	ID        int64
	UserID    int64
	Kind      string
	Message   string
	Payload   []byte
	CreatedAt time.Time
}

// ActivityKindMilestone помечает записи ленты о достижениях.
const ActivityKindMilestone = "milestone"
