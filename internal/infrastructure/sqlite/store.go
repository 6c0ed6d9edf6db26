// Package sqlite is a single-file schedule store for local development and
// single-node deployments. Timestamps are stored as fixed-width RFC 3339 text.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/schedulerow"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// URLPrefix marks a DATABASE_URL that should be served by this package.
const URLPrefix = "sqlite://"

const columns = `id, kind, wallet_address, recipient, biller_service, billers_code,
	amount, currency, frequency, custom_cron, custom_day_of_month,
	cron_expr, metadata, cancelled_at, created_at, updated_at`

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers, which is what makes Update atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger.With("component", "schedule_repo"), now: time.Now}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *domain.Schedule) (*domain.Schedule, error) {
	now := r.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	row, err := schedulerow.FromDomain(s)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_schedules (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Kind, row.WalletAddress, row.Recipient, row.BillerService, row.BillersCode,
		row.Amount, row.Currency, row.Frequency, row.CustomCron, row.CustomDayOfMonth,
		row.CronExpr, string(row.Metadata), formatTime(row.CancelledAt),
		formatTime(&row.CreatedAt), formatTime(&row.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert schedule: %w", err)
	}
	return r.GetByID(ctx, s.ID)
}

func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	return scanSchedule(r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM recurring_schedules WHERE id = ?`, id))
}

func (r *ScheduleRepository) ListByWallet(ctx context.Context, input repository.ListSchedulesInput) ([]*domain.Schedule, error) {
	args := []any{input.WalletAddress}
	where := "wallet_address = ?"
	if input.CursorTime != nil {
		cursor := formatTime(input.CursorTime)
		where += " AND (created_at < ? OR (created_at = ? AND id < ?))"
		args = append(args, cursor, cursor, input.CursorID)
	}
	args = append(args, input.Limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM recurring_schedules
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

func (r *ScheduleRepository) Update(ctx context.Context, id string, fn repository.MutateFunc) (updated *domain.Schedule, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := scanSchedule(tx.QueryRowContext(ctx,
		`SELECT `+columns+` FROM recurring_schedules WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err = fn(current); err != nil {
		return nil, err
	}
	current.UpdatedAt = r.now().UTC()

	row, err := schedulerow.FromDomain(current)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recurring_schedules SET
			recipient = ?, biller_service = ?, billers_code = ?,
			amount = ?, currency = ?, frequency = ?, custom_cron = ?,
			custom_day_of_month = ?, cron_expr = ?, metadata = ?,
			cancelled_at = ?, updated_at = ?
		WHERE id = ?`,
		row.Recipient, row.BillerService, row.BillersCode,
		row.Amount, row.Currency, row.Frequency, row.CustomCron,
		row.CustomDayOfMonth, row.CronExpr, string(row.Metadata),
		formatTime(row.CancelledAt), formatTime(&row.UpdatedAt),
		row.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return current, nil
}

func (r *ScheduleRepository) ListRegistrable(ctx context.Context) ([]*domain.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+`
		FROM recurring_schedules
		WHERE cancelled_at IS NULL
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list registrable schedules: %w", err)
	}
	return collectSchedules(rows)
}

var errPauseStillActive = errors.New("pause still active")

func (r *ScheduleRepository) ResumeExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM recurring_schedules
		WHERE cancelled_at IS NULL
		  AND json_extract(metadata, '$.isPaused') = 1
		  AND json_extract(metadata, '$.pausedUntil') IS NOT NULL
		  AND julianday(json_extract(metadata, '$.pausedUntil')) < julianday(?)
		  AND COALESCE(json_extract(metadata, '$.failureReason'), '') <> 'max_retries_exceeded'
		LIMIT ?`, now.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return 0, fmt.Errorf("query paused schedules: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate paused schedules: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		_, err := r.Update(ctx, id, func(s *domain.Schedule) error {
			if !s.Metadata.PauseExpired(now) {
				return errPauseStillActive
			}
			s.Metadata.IsPaused = false
			s.Metadata.PausedUntil = nil
			return nil
		})
		switch {
		case err == nil:
			resumed++
		case errors.Is(err, errPauseStillActive):
		default:
			return resumed, err
		}
	}
	return resumed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectSchedules(rows *sql.Rows) ([]*domain.Schedule, error) {
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
	var (
		sr                   schedulerow.Row
		metadata             string
		dayOfMonth           sql.NullInt64
		cancelledAt          sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&sr.ID, &sr.Kind, &sr.WalletAddress, &sr.Recipient, &sr.BillerService, &sr.BillersCode,
		&sr.Amount, &sr.Currency, &sr.Frequency, &sr.CustomCron, &dayOfMonth,
		&sr.CronExpr, &metadata, &cancelledAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	sr.Metadata = []byte(metadata)
	if dayOfMonth.Valid {
		d := int(dayOfMonth.Int64)
		sr.CustomDayOfMonth = &d
	}
	if cancelledAt.Valid {
		t, err := parseTime(cancelledAt.String)
		if err != nil {
			return nil, err
		}
		sr.CancelledAt = &t
	}
	if sr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return sr.ToDomain()
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
