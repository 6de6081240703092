package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reading-stats-bot/internal/domain"
	"reading-stats-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.SessionRepo = (*Postgres)(nil)
var _ domain.BookRepo = (*Postgres)(nil)
var _ domain.MilestoneRepo = (*Postgres)(nil)
var _ domain.ActivityRepo = (*Postgres)(nil)

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// UpsertByTGID реализует domain.UserRepo.
func (p *Postgres) UpsertByTGID(tgUserID int64, locale, tz string) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, locale, timezone, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (tg_user_id) DO UPDATE SET
    locale = CASE WHEN EXCLUDED.locale <> '' THEN EXCLUDED.locale ELSE users.locale END,
    timezone = CASE WHEN EXCLUDED.timezone <> '' THEN EXCLUDED.timezone ELSE users.timezone END,
    updated_at = now()
RETURNING id, tg_user_id, locale, timezone, created_at, updated_at
`, tgUserID, locale, tz)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "user_upsert", "users", start, err)
	return user, err
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, locale, timezone, created_at, updated_at
FROM users WHERE tg_user_id = $1
`, tgUserID)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "user_get_by_tgid", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// GetByID возвращает пользователя по внутреннему ID.
func (p *Postgres) GetByID(userID int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, locale, timezone, created_at, updated_at
FROM users WHERE id = $1
`, userID)
	user, err := scanUser(row)
	metrics.ObserveNetworkRequest("postgres", "user_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, err
}

// ListAll возвращает всех пользователей, используется планировщиком.
func (p *Postgres) ListAll() ([]domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, tg_user_id, locale, timezone, created_at, updated_at
FROM users ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "user_list", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.TGUserID, &user.Locale, &user.Timezone, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

// SaveSession реализует domain.SessionRepo. Сессии неизменяемы.
func (p *Postgres) SaveSession(session domain.Session) (domain.Session, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var bookID *int64
	if session.BookID != 0 {
		bookID = &session.BookID
	}
	var intent *string
	if session.Intent != "" {
		value := string(session.Intent)
		intent = &value
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO sessions (user_id, book_id, created_at, duration_seconds, pages_read, intent)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, session.UserID, bookID, session.CreatedAt, session.DurationSeconds, session.PagesRead, intent).Scan(&session.ID)
	metrics.ObserveNetworkRequest("postgres", "session_insert", "sessions", start, err)
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// ListSessions возвращает все сессии пользователя в порядке создания.
func (p *Postgres) ListSessions(userID int64) ([]domain.Session, error) {
	return p.listSessions(userID, 0)
}

// ListRecentSessions возвращает последние сессии, новые первыми.
func (p *Postgres) ListRecentSessions(userID int64, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	sessions, err := p.listSessions(userID, limit)
	if err != nil {
		return nil, err
	}
	// listSessions отдаёт старые первыми, здесь нужен обратный порядок.
	for i, j := 0, len(sessions)-1; i < j; i, j = i+1, j-1 {
		sessions[i], sessions[j] = sessions[j], sessions[i]
	}
	return sessions, nil
}

func (p *Postgres) listSessions(userID int64, limit int) ([]domain.Session, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	query := `
SELECT id, user_id, book_id, created_at, duration_seconds, pages_read, intent
FROM sessions WHERE user_id = $1 ORDER BY created_at, id
`
	args := []any{userID}
	if limit > 0 {
		query = `
SELECT id, user_id, book_id, created_at, duration_seconds, pages_read, intent
FROM (
    SELECT id, user_id, book_id, created_at, duration_seconds, pages_read, intent
    FROM sessions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
) recent ORDER BY created_at, id
`
		args = append(args, limit)
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "session_list", "sessions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var (
			session domain.Session
			bookID  *int64
			intent  *string
		)
		if err := rows.Scan(&session.ID, &session.UserID, &bookID, &session.CreatedAt, &session.DurationSeconds, &session.PagesRead, &intent); err != nil {
			return nil, err
		}
		if bookID != nil {
			session.BookID = *bookID
		}
		if intent != nil {
			session.Intent = domain.Intent(*intent)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CreateBook реализует domain.BookRepo.
func (p *Postgres) CreateBook(book domain.Book) (domain.Book, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO books (user_id, title, author, status, tags, current_page, total_pages, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
RETURNING id, user_id, title, author, status, tags, current_page, total_pages, finished_at, created_at, updated_at
`, book.UserID, book.Title, book.Author, string(book.Status), book.Tags, book.CurrentPage, book.TotalPages)
	saved, err := scanBook(row)
	metrics.ObserveNetworkRequest("postgres", "book_insert", "books", start, err)
	return saved, err
}

// GetBook возвращает книгу пользователя.
func (p *Postgres) GetBook(userID, bookID int64) (domain.Book, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, user_id, title, author, status, tags, current_page, total_pages, finished_at, created_at, updated_at
FROM books WHERE user_id = $1 AND id = $2
`, userID, bookID)
	book, err := scanBook(row)
	metrics.ObserveNetworkRequest("postgres", "book_get", "books", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return book, err
}

// ListBooks возвращает библиотеку пользователя.
func (p *Postgres) ListBooks(userID int64) ([]domain.Book, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, title, author, status, tags, current_page, total_pages, finished_at, created_at, updated_at
FROM books WHERE user_id = $1 ORDER BY id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "book_list", "books", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// UpdateBookStatus меняет статус и фиксирует момент завершения.
func (p *Postgres) UpdateBookStatus(userID, bookID int64, status domain.BookStatus, finishedAt *time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE books SET status = $3,
    finished_at = CASE WHEN $4::timestamptz IS NOT NULL THEN COALESCE(finished_at, $4) ELSE NULL END,
    updated_at = now()
WHERE user_id = $1 AND id = $2
`, userID, bookID, string(status), finishedAt)
	metrics.ObserveNetworkRequest("postgres", "book_update_status", "books", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// UpdateBookProgress сохраняет текущую страницу.
func (p *Postgres) UpdateBookProgress(userID, bookID int64, currentPage int) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE books SET current_page = $3, updated_at = now()
WHERE user_id = $1 AND id = $2
`, userID, bookID, currentPage)
	metrics.ObserveNetworkRequest("postgres", "book_update_progress", "books", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

// UpdateBookTags заменяет теги книги.
func (p *Postgres) UpdateBookTags(userID, bookID int64, tags []string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE books SET tags = $3, updated_at = now()
WHERE user_id = $1 AND id = $2
`, userID, bookID, tags)
	metrics.ObserveNetworkRequest("postgres", "book_update_tags", "books", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

func scanBook(row pgx.Row) (domain.Book, error) {
	var (
		book   domain.Book
		status string
	)
	err := row.Scan(&book.ID, &book.UserID, &book.Title, &book.Author, &status, &book.Tags, &book.CurrentPage, &book.TotalPages, &book.FinishedAt, &book.CreatedAt, &book.UpdatedAt)
	book.Status = domain.BookStatus(status)
	return book, err
}

// MarkAchieved реализует domain.MilestoneRepo. Запись идемпотентна:
// при конфликте по ключу возвращается false без ошибки.
func (p *Postgres) MarkAchieved(userID int64, key string, achievedAt time.Time) (bool, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO milestones (user_id, key, achieved_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, key) DO NOTHING
`, userID, key, achievedAt)
	metrics.ObserveNetworkRequest("postgres", "milestone_insert", "milestones", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListAchievedKeys возвращает множество достигнутых ключей.
func (p *Postgres) ListAchievedKeys(userID int64) (map[string]struct{}, error) {
	records, err := p.ListMilestones(userID)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(records))
	for _, record := range records {
		keys[record.Key] = struct{}{}
	}
	return keys, nil
}

// ListMilestones возвращает достижения пользователя, свежие первыми.
func (p *Postgres) ListMilestones(userID int64) ([]domain.MilestoneRecord, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, key, achieved_at
FROM milestones WHERE user_id = $1 ORDER BY achieved_at DESC, key
`, userID)
	metrics.ObserveNetworkRequest("postgres", "milestone_list", "milestones", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.MilestoneRecord
	for rows.Next() {
		var record domain.MilestoneRecord
		if err := rows.Scan(&record.UserID, &record.Key, &record.AchievedAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AppendActivity реализует domain.ActivityRepo.
func (p *Postgres) AppendActivity(entry domain.ActivityEntry) (domain.ActivityEntry, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO activity (user_id, kind, message, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, entry.UserID, entry.Kind, entry.Message, entry.Payload, entry.CreatedAt).Scan(&entry.ID)
	metrics.ObserveNetworkRequest("postgres", "activity_insert", "activity", start, err)
	if err != nil {
		return domain.ActivityEntry{}, err
	}
	return entry, nil
}

// ListActivity возвращает последние записи ленты, свежие первыми.
func (p *Postgres) ListActivity(userID int64, limit int) ([]domain.ActivityEntry, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, kind, message, payload, created_at
FROM activity WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "activity_list", "activity", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.ActivityEntry
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Kind, &entry.Message, &entry.Payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
