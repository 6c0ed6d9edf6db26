package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/google/uuid"
)

type ExecutionRepository struct {
	db *sql.DB
}

func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

func (r *ExecutionRepository) Record(ctx context.Context, e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedule_executions
			(id, schedule_id, result, reference, error, retry_count, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScheduleID, e.Result, e.Reference, e.Error, e.RetryCount,
		formatTime(&e.StartedAt), e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]*domain.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, schedule_id, result, reference, error, retry_count, started_at, duration_ms
		FROM schedule_executions
		WHERE schedule_id = ?
		ORDER BY started_at DESC
		LIMIT ?`, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*domain.Execution
	for rows.Next() {
		var (
			e         domain.Execution
			startedAt string
		)
		if err := rows.Scan(&e.ID, &e.ScheduleID, &e.Result, &e.Reference, &e.Error,
			&e.RetryCount, &startedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		if e.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		executions = append(executions, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return executions, nil
}
