package stats

import (
	"fmt"

	"reading-stats-bot/internal/domain"
)

// Фиксированные лестницы порогов.
var (
	pagesThresholds       = []int{100, 500, 1000, 5000, 10000}
	booksThresholds       = []int{1, 5, 10, 25, 50, 100}
	yearlyBooksThresholds = []int{5, 10, 20, 52}
)

// DetectMilestones сравнивает текущие агрегаты с лестницами порогов и
// возвращает по одному событию на каждый впервые пересечённый порог.
// Ключи из achieved никогда не срабатывают повторно, в том числе после
// исправления данных задним числом. Сама отметка достижения — забота
// вызывающей стороны и делается только после успешной записи в ленту.
func DetectMilestones(snapshot domain.AggregateSnapshot, achieved map[string]struct{}) []domain.MilestoneEvent {
	var events []domain.MilestoneEvent

	for _, threshold := range pagesThresholds {
		key := fmt.Sprintf("pages_%d", threshold)
		if _, done := achieved[key]; done || snapshot.TotalPages < threshold {
			continue
		}
		events = append(events, domain.MilestoneEvent{
			Key:     key,
			Type:    domain.MilestonePages,
			Value:   threshold,
			Message: fmt.Sprintf("Прочитано %d страниц — отличный результат!", threshold),
		})
	}

	for _, threshold := range booksThresholds {
		key := fmt.Sprintf("books_completed_%d", threshold)
		if _, done := achieved[key]; done || snapshot.BooksFinished < threshold {
			continue
		}
		message := fmt.Sprintf("Завершено %d книг!", threshold)
		if threshold == 1 {
			message = "Первая завершённая книга!"
		}
		events = append(events, domain.MilestoneEvent{
			Key:     key,
			Type:    domain.MilestoneBooks,
			Value:   threshold,
			Message: message,
		})
	}

	year := snapshot.GeneratedAt.Year()
	for _, threshold := range yearlyBooksThresholds {
		key := fmt.Sprintf("yearly_books_%d_%d", year, threshold)
		if _, done := achieved[key]; done || snapshot.BooksFinishedYear < threshold {
			continue
		}
		events = append(events, domain.MilestoneEvent{
			Key:     key,
			Type:    domain.MilestoneYearlyBooks,
			Value:   threshold,
			Year:    year,
			Message: fmt.Sprintf("%d книг завершено в %d году!", threshold, year),
		})
	}

	return events
}
