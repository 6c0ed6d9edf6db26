package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
)

type ListSchedulesInput struct {
	WalletAddress string
	CursorTime    *time.Time // cursor on (created_at DESC, id DESC)
	CursorID      string
	Limit         int
}

// MutateFunc edits a schedule in place. Returning an error aborts the write.
type MutateFunc func(s *domain.Schedule) error

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error)
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	ListByWallet(ctx context.Context, input ListSchedulesInput) ([]*domain.Schedule, error)

	// Update reads the schedule, applies fn and writes it back atomically with
	// respect to other Update calls for the same id. Returns the stored result.
	Update(ctx context.Context, id string, fn MutateFunc) (*domain.Schedule, error)

	// ListRegistrable returns every schedule that is not cancelled, for
	// re-registering cadences on startup.
	ListRegistrable(ctx context.Context) ([]*domain.Schedule, error)

	// ResumeExpired clears pauses whose paused_until is before now.
	ResumeExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
