package scheduler_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/retry"
	"github.com/ErlanBelekov/recurring-payments/internal/scheduler"
)

var now = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func activeSchedule() domain.Schedule {
	return domain.Schedule{
		ID:       "s-1",
		Metadata: domain.Metadata{MaxRetries: 3, Language: domain.LanguageEnglish},
	}
}

func TestApplyTick_FailureLadder(t *testing.T) {
	s := activeSchedule()
	policy := retry.DefaultPolicy()
	wantDelays := []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour}

	for i, want := range wantDelays {
		s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultInsufficientBalance}, policy, now)
		if s.Metadata.RetryCount != i+1 {
			t.Fatalf("attempt %d: expected retryCount %d, got %d", i+1, i+1, s.Metadata.RetryCount)
		}
		if s.Metadata.IsPaused {
			t.Fatalf("attempt %d: unexpectedly paused", i+1)
		}
		if s.Metadata.NextAttempt == nil || !s.Metadata.NextAttempt.Equal(now.Add(want)) {
			t.Fatalf("attempt %d: expected next attempt %v, got %v", i+1, now.Add(want), s.Metadata.NextAttempt)
		}
		if s.Metadata.FailureReason != domain.FailureInsufficientBalance {
			t.Fatalf("attempt %d: expected insufficient_balance, got %q", i+1, s.Metadata.FailureReason)
		}
	}

	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultInsufficientBalance}, policy, now)
	if !s.Metadata.IsPaused || s.Metadata.PausedUntil != nil {
		t.Fatalf("expected indefinite pause, got %+v", s.Metadata)
	}
	if s.Metadata.FailureReason != domain.FailureMaxRetriesExceeded {
		t.Errorf("expected max_retries_exceeded, got %q", s.Metadata.FailureReason)
	}
	if s.Metadata.RetryCount != 4 {
		t.Errorf("expected retryCount 4, got %d", s.Metadata.RetryCount)
	}
}

func TestApplyTick_SuccessResets(t *testing.T) {
	s := activeSchedule()
	s.Metadata.RetryCount = 2
	s.Metadata.FailureReason = "gateway returned 502"
	next := now.Add(time.Hour)
	s.Metadata.NextAttempt = &next

	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultSuccess}, retry.DefaultPolicy(), now)

	m := s.Metadata
	if m.RetryCount != 0 || m.FailureReason != "" || m.NextAttempt != nil {
		t.Errorf("expected clean metadata, got %+v", m)
	}
	if m.LastAttempt == nil || !m.LastAttempt.Equal(now) {
		t.Errorf("expected lastAttempt=now, got %v", m.LastAttempt)
	}
}

func TestApplyTick_ClearsExpiredPause(t *testing.T) {
	s := activeSchedule()
	until := now.Add(-time.Minute)
	s.Metadata.IsPaused = true
	s.Metadata.PausedUntil = &until

	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultSuccess}, retry.DefaultPolicy(), now)

	if s.Metadata.IsPaused || s.Metadata.PausedUntil != nil {
		t.Errorf("expected pause cleared, got %+v", s.Metadata)
	}
}

func TestApplyTick_KeepsActivePause(t *testing.T) {
	s := activeSchedule()
	until := now.Add(time.Hour)
	s.Metadata.IsPaused = true
	s.Metadata.PausedUntil = &until

	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultPaused}, retry.DefaultPolicy(), now)

	if !s.Metadata.IsPaused || s.Metadata.RetryCount != 0 {
		t.Errorf("expected untouched pause, got %+v", s.Metadata)
	}
}

func TestApplyTick_CancelledUnchanged(t *testing.T) {
	s := activeSchedule()
	cancelledAt := now.Add(-time.Hour)
	s.CancelledAt = &cancelledAt

	out := scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultFailed, Reason: "x"}, retry.DefaultPolicy(), now)

	if out.Metadata.RetryCount != 0 || out.Metadata.FailureReason != "" {
		t.Errorf("expected cancelled schedule untouched, got %+v", out.Metadata)
	}
}

func TestApplyTick_CustomMaxRetries(t *testing.T) {
	s := activeSchedule()
	s.Metadata.MaxRetries = 1
	policy := retry.DefaultPolicy()

	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultFailed, Reason: "boom"}, policy, now)
	if s.Metadata.IsPaused {
		t.Fatal("expected first failure to retry")
	}
	s = scheduler.ApplyTick(s, scheduler.Outcome{Result: scheduler.ResultFailed, Reason: "boom"}, policy, now)
	if !s.Metadata.IsPaused {
		t.Fatal("expected pause after exceeding maxRetries=1")
	}
}
