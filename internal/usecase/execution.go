package usecase

import (
	"context"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
)

const (
	defaultExecutionLimit = 20
	maxExecutionLimit     = 100
)

type ExecutionUsecase struct {
	repo repository.ExecutionRepository
}

func NewExecutionUsecase(repo repository.ExecutionRepository) *ExecutionUsecase {
	return &ExecutionUsecase{repo: repo}
}

// ListExecutions returns the latest attempts for a schedule, newest first.
func (uc *ExecutionUsecase) ListExecutions(ctx context.Context, scheduleID string, limit int) ([]*domain.Execution, error) {
	if limit <= 0 {
		limit = defaultExecutionLimit
	}
	limit = min(limit, maxExecutionLimit)

	executions, err := uc.repo.ListBySchedule(ctx, scheduleID, limit)
	if err != nil {
		return nil, err
	}
	if executions == nil {
		executions = []*domain.Execution{}
	}
	return executions, nil
}
