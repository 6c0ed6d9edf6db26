package main

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/recurring-payments/internal/health"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
)

type store struct {
	driver     string
	schedules  repository.ScheduleRepository
	executions repository.ExecutionRepository
	pinger     health.Pinger
	close      func()
}

// openStore picks the backend from the URL scheme: sqlite://path or a
// postgres connection string.
func openStore(ctx context.Context, databaseURL string, logger *slog.Logger) (*store, error) {
	if path, ok := strings.CutPrefix(databaseURL, sqlite.URLPrefix); ok {
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return &store{
			driver:     "sqlite",
			schedules:  sqlite.NewScheduleRepository(db, logger),
			executions: sqlite.NewExecutionRepository(db),
			pinger:     health.PingerFunc(db.PingContext),
			close:      func() { _ = db.Close() },
		}, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &store{
		driver:     "postgres",
		schedules:  postgres.NewScheduleRepository(pool, logger),
		executions: postgres.NewExecutionRepository(pool),
		pinger:     pool,
		close:      pool.Close,
	}, nil
}
