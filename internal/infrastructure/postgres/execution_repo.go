package postgres

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) Record(ctx context.Context, e *domain.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO schedule_executions
			(id, schedule_id, result, reference, error, retry_count, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ScheduleID, e.Result, e.Reference, e.Error, e.RetryCount, e.StartedAt, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepository) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]*domain.Execution, error) {
	if !validID(scheduleID) {
		return nil, nil
	}
	query := `
		SELECT id, schedule_id, result, reference, error, retry_count, started_at, duration_ms
		FROM schedule_executions
		WHERE schedule_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, scheduleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return executions, nil
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	err := row.Scan(
		&e.ID, &e.ScheduleID, &e.Result, &e.Reference, &e.Error,
		&e.RetryCount, &e.StartedAt, &e.DurationMS,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	return &e, nil
}
