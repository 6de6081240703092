package domain

// Имена внутрипроцессных событий. Подписчики получают StatsEvent.
const (
	// EventSessionCompleted публикуется после сохранения завершённой сессии.
	EventSessionCompleted = "session-completed"
	// EventBookUpdated публикуется после любого изменения книги.
	EventBookUpdated = "book-updated"
	// EventStatsRefreshRequested публикуется при явном запросе пересчёта.
	EventStatsRefreshRequested = "stats-refresh-requested"
)

// StatsEvent — полезная нагрузка доменного события.
type StatsEvent struct {
	UserID int64
}
