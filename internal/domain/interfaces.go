package domain

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound возвращается репозиториями, если пользователь неизвестен.
var ErrUserNotFound = errors.New("пользователь не найден")

// ErrBookNotFound возвращается репозиториями, если книга не найдена у пользователя.
var ErrBookNotFound = errors.New("книга не найдена")

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(tgUserID int64, locale, tz string) (User, error)
	GetByTGID(tgUserID int64) (User, error)
	GetByID(userID int64) (User, error)
	ListAll() ([]User, error)
}

// SessionRepo хранит завершённые сессии чтения.
// Сессии неизменяемы: путей обновления и удаления нет.
type SessionRepo interface {
	SaveSession(session Session) (Session, error)
	ListSessions(userID int64) ([]Session, error)
	ListRecentSessions(userID int64, limit int) ([]Session, error)
}

// BookRepo управляет книгами пользователя.
type BookRepo interface {
	CreateBook(book Book) (Book, error)
	GetBook(userID, bookID int64) (Book, error)
	ListBooks(userID int64) ([]Book, error)
	UpdateBookStatus(userID, bookID int64, status BookStatus, finishedAt *time.Time) error
	UpdateBookProgress(userID, bookID int64, currentPage int) error
	UpdateBookTags(userID, bookID int64, tags []string) error
}

// MilestoneRepo хранит однократно достигнутые пороги.
type MilestoneRepo interface {
	// MarkAchieved записывает порог и возвращает true, если запись была создана.
	// Повторная запись того же ключа возвращает false без ошибки.
	MarkAchieved(userID int64, key string, achievedAt time.Time) (bool, error)
	ListAchievedKeys(userID int64) (map[string]struct{}, error)
	ListMilestones(userID int64) ([]MilestoneRecord, error)
}

// ActivityRepo — долговременная лента активности.
type ActivityRepo interface {
	AppendActivity(entry ActivityEntry) (ActivityEntry, error)
	ListActivity(userID int64, limit int) ([]ActivityEntry, error)
}

// SnapshotCache — короткоживущий кэш последнего вычисленного снимка.
// Записи живут до явной инвалидации; решение о том, считать ли запись
// устаревшей по возрасту, принимает вызывающая сторона.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, userID int64) (*AggregateSnapshot, error)
	SaveSnapshot(ctx context.Context, userID int64, snapshot AggregateSnapshot) error
	InvalidateSnapshot(ctx context.Context, userID int64) error
	// LastUpdate возвращает нулевое время, если снимок не сохранялся.
	LastUpdate(ctx context.Context, userID int64) (time.Time, error)
}
