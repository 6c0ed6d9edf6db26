package repository

import (
	"context"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
)

type ExecutionRepository interface {
	Record(ctx context.Context, e *domain.Execution) error
	// ListBySchedule returns the most recent executions first.
	ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]*domain.Execution, error)
}
