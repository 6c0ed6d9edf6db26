package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/scheduler"
)

func TestSweeper_ResumesExpiredPauses(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	expired := paymentSchedule()
	expired.ID = "expired"
	expired.Metadata.IsPaused = true
	expired.Metadata.PausedUntil = &past

	pending := paymentSchedule()
	pending.ID = "pending"
	pending.Metadata.IsPaused = true
	pending.Metadata.PausedUntil = &future

	indefinite := paymentSchedule()
	indefinite.ID = "indefinite"
	indefinite.Metadata.IsPaused = true

	repo := newMemRepo(expired, pending, indefinite)
	sw := scheduler.NewSweeper(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)

	if n := sw.Sweep(context.Background()); n != 1 {
		t.Fatalf("expected 1 resumed, got %d", n)
	}

	checks := map[string]bool{"expired": false, "pending": true, "indefinite": true}
	for id, wantPaused := range checks {
		if got := repo.get(id).Metadata.IsPaused; got != wantPaused {
			t.Errorf("%s: expected paused=%v, got %v", id, wantPaused, got)
		}
	}
}

func TestSweeper_StopsOnCancel(t *testing.T) {
	repo := newMemRepo(domain.Schedule{ID: "x"})
	sw := scheduler.NewSweeper(repo, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
