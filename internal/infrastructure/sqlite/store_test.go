package sqlite_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T) *sqlite.ScheduleRepository {
	t.Helper()
	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewScheduleRepository(db, slog.Default())
}

func newSchedule(wallet string) *domain.Schedule {
	return &domain.Schedule{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Target:        domain.PaymentTarget{Recipient: "0xrecipient"},
		Amount:        decimal.NewFromInt(100),
		Currency:      "USDm",
		Frequency:     domain.FrequencyMonthly15th,
		CronExpr:      "0 0 15 * *",
		Metadata:      domain.Metadata{MaxRetries: 3, Language: domain.LanguageEnglish},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, newSchedule("0xwallet"))
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, domain.PaymentTarget{Recipient: "0xrecipient"}, got.Target)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Amount))
	assert.Equal(t, domain.StatusActive, got.Status())
}

func TestGetByID_NotFound(t *testing.T) {
	_, err := newRepo(t).GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestUpdate_AppliesMutation(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx, newSchedule("0xwallet"))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, func(s *domain.Schedule) error {
		s.Metadata.RetryCount = 2
		s.Metadata.FailureReason = domain.FailureInsufficientBalance
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Metadata.RetryCount)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Metadata.RetryCount)
	assert.Equal(t, domain.FailureInsufficientBalance, got.Metadata.FailureReason)
}

func TestUpdate_MutationErrorAbortsWrite(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	created, err := repo.Create(ctx, newSchedule("0xwallet"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = repo.Update(ctx, created.ID, func(s *domain.Schedule) error {
		s.Metadata.RetryCount = 9
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Metadata.RetryCount)
}

func TestListByWallet_PagesNewestFirst(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var ids []string
	for range 3 {
		s, err := repo.Create(ctx, newSchedule("0xwallet"))
		require.NoError(t, err)
		ids = append(ids, s.ID)
		time.Sleep(time.Millisecond)
	}
	_, err := repo.Create(ctx, newSchedule("0xother"))
	require.NoError(t, err)

	first, err := repo.ListByWallet(ctx, repository.ListSchedulesInput{WalletAddress: "0xwallet", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ids[2], first[0].ID)
	assert.Equal(t, ids[1], first[1].ID)

	last := first[1]
	rest, err := repo.ListByWallet(ctx, repository.ListSchedulesInput{
		WalletAddress: "0xwallet",
		CursorTime:    &last.CreatedAt,
		CursorID:      last.ID,
		Limit:         2,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)
}

func TestResumeExpired(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	expired := newSchedule("0xwallet")
	expired.Metadata.IsPaused = true
	expired.Metadata.PausedUntil = &past

	timed := newSchedule("0xwallet")
	timed.Metadata.IsPaused = true
	timed.Metadata.PausedUntil = &future

	indefinite := newSchedule("0xwallet")
	indefinite.Metadata.IsPaused = true

	exhausted := newSchedule("0xwallet")
	exhausted.Metadata.IsPaused = true
	exhausted.Metadata.PausedUntil = &past
	exhausted.Metadata.RetryCount = 4
	exhausted.Metadata.FailureReason = domain.FailureMaxRetriesExceeded

	for _, s := range []*domain.Schedule{expired, timed, indefinite, exhausted} {
		_, err := repo.Create(ctx, s)
		require.NoError(t, err)
	}

	n, err := repo.ResumeExpired(ctx, now, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.False(t, got.Metadata.IsPaused)
	assert.Nil(t, got.Metadata.PausedUntil)

	got, err = repo.GetByID(ctx, timed.ID)
	require.NoError(t, err)
	assert.True(t, got.Metadata.IsPaused)

	got, err = repo.GetByID(ctx, indefinite.ID)
	require.NoError(t, err)
	assert.True(t, got.Metadata.IsPaused)

	got, err = repo.GetByID(ctx, exhausted.ID)
	require.NoError(t, err)
	assert.True(t, got.Metadata.IsPaused)
	assert.Equal(t, domain.FailureMaxRetriesExceeded, got.Metadata.FailureReason)
}

func TestListRegistrable_SkipsCancelled(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	active, err := repo.Create(ctx, newSchedule("0xwallet"))
	require.NoError(t, err)
	cancelled, err := repo.Create(ctx, newSchedule("0xwallet"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, cancelled.ID, func(s *domain.Schedule) error {
		now := time.Now()
		s.CancelledAt = &now
		return nil
	})
	require.NoError(t, err)

	all, err := repo.ListRegistrable(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, active.ID, all[0].ID)
}
