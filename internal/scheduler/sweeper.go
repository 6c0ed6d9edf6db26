package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/metrics"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
)

const sweepBatchSize = 100

// Sweeper lifts timed pauses that have run out, so a schedule shows as active
// before its next tick would clear the pause anyway.
type Sweeper struct {
	repo     repository.ScheduleRepository
	logger   *slog.Logger
	interval time.Duration
}

func NewSweeper(repo repository.ScheduleRepository, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		repo:     repo,
		logger:   logger.With("component", "sweeper"),
		interval: interval,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper shut down")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle and returns how many schedules were resumed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.SweeperCycleDuration.Observe(time.Since(start).Seconds()) }()

	total := 0
	for {
		n, err := s.repo.ResumeExpired(ctx, time.Now(), sweepBatchSize)
		if err != nil {
			s.logger.Error("resume expired pauses", "error", err)
			return total
		}
		total += n
		if n < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		metrics.SweeperResumedTotal.Add(float64(total))
		s.logger.Info("resumed schedules with expired pauses", "count", total)
	}
	return total
}
