package books

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/bus"
)

type stubBookRepo struct {
	created    []domain.Book
	status     domain.BookStatus
	finishedAt *time.Time
	page       int
	tags       []string
}

func (r *stubBookRepo) CreateBook(book domain.Book) (domain.Book, error) {
	book.ID = int64(len(r.created) + 1)
	r.created = append(r.created, book)
	return book, nil
}

func (r *stubBookRepo) GetBook(userID, bookID int64) (domain.Book, error) {
	return domain.Book{}, domain.ErrBookNotFound
}

func (r *stubBookRepo) ListBooks(userID int64) ([]domain.Book, error) {
	return r.created, nil
}

func (r *stubBookRepo) UpdateBookStatus(userID, bookID int64, status domain.BookStatus, finishedAt *time.Time) error {
	r.status = status
	r.finishedAt = finishedAt
	return nil
}

func (r *stubBookRepo) UpdateBookProgress(userID, bookID int64, currentPage int) error {
	r.page = currentPage
	return nil
}

func (r *stubBookRepo) UpdateBookTags(userID, bookID int64, tags []string) error {
	r.tags = tags
	return nil
}

func newService() (*Service, *stubBookRepo, *int) {
	repo := &stubBookRepo{}
	events := bus.New()
	updates := 0
	events.On(domain.EventBookUpdated, func(payload any) {
		if _, ok := payload.(domain.StatsEvent); ok {
			updates++
		}
	})
	return NewService(repo, events, zerolog.Nop()), repo, &updates
}

func TestAddBook(t *testing.T) {
	service, repo, updates := newService()

	book, err := service.AddBook(context.Background(), 1, "  Солярис  ", "Лем", 224, []string{"sci-fi", "Sci-Fi", " ", "classic"})
	if err != nil {
		t.Fatalf("добавление книги не должно падать: %v", err)
	}
	if book.Title != "Солярис" {
		t.Fatalf("название должно очищаться от пробелов: %q", book.Title)
	}
	if book.Status != domain.StatusWantToRead {
		t.Fatalf("новая книга получает статус want_to_read, получили %s", book.Status)
	}
	if !reflect.DeepEqual(book.Tags, []string{"sci-fi", "classic"}) {
		t.Fatalf("теги должны очищаться и дедуплицироваться: %v", book.Tags)
	}
	if len(repo.created) != 1 {
		t.Fatalf("ожидали одну запись, получили %d", len(repo.created))
	}
	if *updates != 1 {
		t.Fatalf("ожидали одно событие book-updated, получили %d", *updates)
	}
}

func TestAddBookEmptyTitle(t *testing.T) {
	service, repo, updates := newService()

	_, err := service.AddBook(context.Background(), 1, "   ", "", 0, nil)
	if !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("ожидали ErrEmptyTitle, получили %v", err)
	}
	if len(repo.created) != 0 || *updates != 0 {
		t.Fatal("неудачное добавление не должно оставлять следов")
	}
}

func TestSetStatusCompletedStampsFinishedAt(t *testing.T) {
	service, repo, updates := newService()

	if err := service.SetStatus(context.Background(), 1, 5, domain.StatusCompleted); err != nil {
		t.Fatalf("смена статуса не должна падать: %v", err)
	}
	if repo.status != domain.StatusCompleted {
		t.Fatalf("статус не записан: %s", repo.status)
	}
	if repo.finishedAt == nil {
		t.Fatal("переход в completed должен фиксировать момент завершения")
	}
	if *updates != 1 {
		t.Fatalf("ожидали одно событие, получили %d", *updates)
	}
}

func TestSetStatusRegularKeepsFinishedAtEmpty(t *testing.T) {
	service, repo, _ := newService()

	if err := service.SetStatus(context.Background(), 1, 5, domain.StatusReading); err != nil {
		t.Fatalf("смена статуса не должна падать: %v", err)
	}
	if repo.finishedAt != nil {
		t.Fatal("переход в reading не фиксирует завершение")
	}
}

func TestSetStatusRejectsUnknown(t *testing.T) {
	service, _, updates := newService()

	if err := service.SetStatus(context.Background(), 1, 5, "paused"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("ожидали ErrInvalidStatus, получили %v", err)
	}
	if *updates != 0 {
		t.Fatal("отказ не должен публиковать событие")
	}
}

func TestUpdateProgressRejectsNegativePage(t *testing.T) {
	service, _, updates := newService()

	if err := service.UpdateProgress(context.Background(), 1, 5, -3); !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("ожидали ErrInvalidPage, получили %v", err)
	}
	if *updates != 0 {
		t.Fatal("отказ не должен публиковать событие")
	}
}

func TestUpdateTags(t *testing.T) {
	service, repo, updates := newService()

	if err := service.UpdateTags(context.Background(), 1, 5, []string{" history ", "history", "war"}); err != nil {
		t.Fatalf("обновление тегов не должно падать: %v", err)
	}
	if !reflect.DeepEqual(repo.tags, []string{"history", "war"}) {
		t.Fatalf("теги должны нормализоваться: %v", repo.tags)
	}
	if *updates != 1 {
		t.Fatalf("ожидали одно событие, получили %d", *updates)
	}
}
