package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/schedulerow"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const scheduleColumns = `id, kind, wallet_address, recipient, biller_service, billers_code,
		       amount::text, currency, frequency, custom_cron, custom_day_of_month,
		       cron_expr, metadata, cancelled_at, created_at, updated_at`

type ScheduleRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewScheduleRepository(pool *pgxpool.Pool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{pool: pool, logger: logger.With("component", "schedule_repo")}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	row, err := schedulerow.FromDomain(s)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO recurring_schedules (
			id, kind, wallet_address, recipient, biller_service, billers_code,
			amount, currency, frequency, custom_cron, custom_day_of_month,
			cron_expr, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13)
		RETURNING ` + scheduleColumns

	return scanSchedule(r.pool.QueryRow(ctx, query,
		row.ID, row.Kind, row.WalletAddress, row.Recipient, row.BillerService, row.BillersCode,
		row.Amount, row.Currency, row.Frequency, row.CustomCron, row.CustomDayOfMonth,
		row.CronExpr, row.Metadata,
	))
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	if !validID(id) {
		return nil, domain.ErrScheduleNotFound
	}
	query := `SELECT ` + scheduleColumns + ` FROM recurring_schedules WHERE id = $1`
	return scanSchedule(r.pool.QueryRow(ctx, query, id))
}

func (r *ScheduleRepository) ListByWallet(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	args := []any{input.WalletAddress}
	where := []string{"wallet_address = $1"}

	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM recurring_schedules
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d`,
		scheduleColumns, strings.Join(where, " AND "), len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update locks the row with SELECT ... FOR UPDATE so concurrent ticks and API
// calls for the same schedule serialize instead of losing writes.
func (r *ScheduleRepository) Update(ctx context.Context, id string, fn repository.MutateFunc) (updated *domain.Schedule, err error) {
	if !validID(id) {
		return nil, domain.ErrScheduleNotFound
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanSchedule(tx.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM recurring_schedules WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err = fn(current); err != nil {
		return nil, err
	}

	row, err := schedulerow.FromDomain(current)
	if err != nil {
		return nil, err
	}

	updated, err = scanSchedule(tx.QueryRow(ctx, `
		UPDATE recurring_schedules SET
			recipient = $2, biller_service = $3, billers_code = $4,
			amount = $5::numeric, currency = $6, frequency = $7, custom_cron = $8,
			custom_day_of_month = $9, cron_expr = $10, metadata = $11,
			cancelled_at = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING `+scheduleColumns,
		row.ID, row.Recipient, row.BillerService, row.BillersCode,
		row.Amount, row.Currency, row.Frequency, row.CustomCron,
		row.CustomDayOfMonth, row.CronExpr, row.Metadata,
		row.CancelledAt,
	))
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (r *ScheduleRepository) ListRegistrable(ctx context.Context) ([]*domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+`
		FROM recurring_schedules
		WHERE cancelled_at IS NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list registrable schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ResumeExpired clears timed pauses that ran out. SKIP LOCKED leaves rows
// held by an in-flight tick for the next sweep.
func (r *ScheduleRepository) ResumeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recurring_schedules
		SET metadata = (metadata || '{"isPaused": false}'::jsonb) - 'pausedUntil',
		    updated_at = NOW()
		WHERE id IN (
			SELECT id FROM recurring_schedules
			WHERE cancelled_at IS NULL
			  AND (metadata->>'isPaused')::boolean
			  AND metadata->>'pausedUntil' IS NOT NULL
			  AND (metadata->>'pausedUntil')::timestamptz < $1
			  AND COALESCE(metadata->>'failureReason', '') <> 'max_retries_exceeded'
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)`, now, limit)
	if err != nil {
		return 0, fmt.Errorf("resume expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// validID keeps malformed ids from reaching the uuid column as a cast error.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// pgx.Row and pgx.Rows both implement this.
type rowScanner interface {
	Scan(dest ...any) error
}

func collectSchedules(rows pgx.Rows) ([]*domain.Schedule, error) {
	defer rows.Close()

	var schedules []*domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	var sr schedulerow.Row
	err := row.Scan(
		&sr.ID, &sr.Kind, &sr.WalletAddress, &sr.Recipient, &sr.BillerService, &sr.BillersCode,
		&sr.Amount, &sr.Currency, &sr.Frequency, &sr.CustomCron, &sr.CustomDayOfMonth,
		&sr.CronExpr, &sr.Metadata, &sr.CancelledAt, &sr.CreatedAt, &sr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return sr.ToDomain()
}
