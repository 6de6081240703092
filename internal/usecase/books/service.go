package books

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
)

// ErrEmptyTitle возвращается при попытке создать книгу без названия.
var ErrEmptyTitle = errors.New("у книги должно быть название")

// ErrInvalidStatus возвращается для неизвестного статуса книги.
var ErrInvalidStatus = errors.New("неизвестный статус книги")

// ErrInvalidPage возвращается для отрицательного номера страницы.
var ErrInvalidPage = errors.New("некорректный номер страницы")

// Service управляет библиотекой пользователя и публикует событие
// book-updated после каждого изменения, чтобы кэш статистики сбрасывался.
type Service struct {
	repo   domain.BookRepo
	events *bus.Bus
	log    zerolog.Logger
}

// NewService создаёт сервис книг.
func NewService(repo domain.BookRepo, events *bus.Bus, log zerolog.Logger) *Service {
	return &Service{repo: repo, events: events, log: log}
}

// AddBook добавляет книгу в библиотеку.
func (s *Service) AddBook(ctx context.Context, userID int64, title, author string, totalPages int, tags []string) (domain.Book, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Book{}, ErrEmptyTitle
	}
	book, err := s.repo.CreateBook(domain.Book{
		UserID:     userID,
		Title:      title,
		Author:     strings.TrimSpace(author),
		Status:     domain.StatusWantToRead,
		Tags:       normalizeTags(tags),
		TotalPages: totalPages,
	})
	if err != nil {
		return domain.Book{}, fmt.Errorf("сохранение книги: %w", err)
	}
	s.emitUpdated(userID)
	return book, nil
}

// ListBooks возвращает библиотеку пользователя.
func (s *Service) ListBooks(ctx context.Context, userID int64) ([]domain.Book, error) {
	return s.repo.ListBooks(userID)
}

// SetStatus меняет статус книги. При переходе в completed фиксируется момент
// завершения — по нему считаются годовые достижения.
func (s *Service) SetStatus(ctx context.Context, userID, bookID int64, status domain.BookStatus) error {
	switch status {
	case domain.StatusReading, domain.StatusCompleted, domain.StatusWantToRead, domain.StatusAbandoned:
	default:
		return ErrInvalidStatus
	}
	var finishedAt *time.Time
	if status == domain.StatusCompleted {
		now := time.Now().UTC()
		finishedAt = &now
	}
	if err := s.repo.UpdateBookStatus(userID, bookID, status, finishedAt); err != nil {
		return fmt.Errorf("обновление статуса: %w", err)
	}
	s.emitUpdated(userID)
	return nil
}

// UpdateProgress сохраняет текущую страницу.
func (s *Service) UpdateProgress(ctx context.Context, userID, bookID int64, currentPage int) error {
	if currentPage < 0 {
		return ErrInvalidPage
	}
	if err := s.repo.UpdateBookProgress(userID, bookID, currentPage); err != nil {
		return fmt.Errorf("обновление прогресса: %w", err)
	}
	s.emitUpdated(userID)
	return nil
}

// UpdateTags заменяет теги книги.
func (s *Service) UpdateTags(ctx context.Context, userID, bookID int64, tags []string) error {
	if err := s.repo.UpdateBookTags(userID, bookID, normalizeTags(tags)); err != nil {
		return fmt.Errorf("обновление тегов: %w", err)
	}
	s.emitUpdated(userID)
	return nil
}

func (s *Service) emitUpdated(userID int64) {
	if s.events == nil {
		return
	}
	s.events.Emit(domain.EventBookUpdated, domain.StatsEvent{UserID: userID})
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
