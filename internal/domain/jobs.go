package domain

import (
	"context"
	"time"
)

// RefreshCause описывает источник запроса на пересчёт статистики.
type RefreshCause string

const (
	// RefreshCauseManual — пользователь запросил пересчёт явно.
	RefreshCauseManual RefreshCause = "manual"
	// RefreshCauseScheduled — фоновый пересчёт по расписанию.
	RefreshCauseScheduled RefreshCause = "scheduled"
	// RefreshCauseEvent — пересчёт после доменного события (сессия, книга).
	RefreshCauseEvent RefreshCause = "event"
)

// RefreshJob содержит информацию о задаче пересчёта статистики.
type RefreshJob struct {
	ID          string       `json:"job_id,omitempty"`
	UserID      int64        `json:"user_id"`
	Cause       RefreshCause `json:"cause"`
	RequestedAt time.Time    `json:"requested_at"`
}

// RefreshQueue описывает очередь задач на пересчёт.
type RefreshQueue interface {
	Enqueue(ctx context.Context, job RefreshJob) error
	Pop(ctx context.Context) (RefreshJob, error)
}

// MilestoneJob — событие достижения, ожидающее доставки пользователю.
type MilestoneJob struct {
	UserID   int64          `json:"user_id"`
	TGUserID int64          `json:"tg_user_id"`
	Event    MilestoneEvent `json:"event"`
}

// MilestoneQueue доставляет события достижений нотификатору.
type MilestoneQueue interface {
	Publish(ctx context.Context, job MilestoneJob) error
	Consume(ctx context.Context, handle func(MilestoneJob) error) error
}
