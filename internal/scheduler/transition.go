package scheduler

import (
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/retry"
)

// Result is the outcome of one tick.
type Result string

const (
	ResultPaused              Result = "paused"
	ResultInsufficientBalance Result = "insufficient_balance"
	ResultSuccess             Result = "success"
	ResultFailed              Result = "failed"
	ResultSkipped             Result = "skipped" // cancelled, missing or unreadable schedule
)

// Outcome is what the collaborators reported for one attempt.
type Outcome struct {
	Result Result
	Reason string // failure reason for ResultFailed
}

// ApplyTick returns the schedule after an attempt with outcome o at now. It
// performs no I/O. A timed pause that has run out is cleared first; cancelled
// schedules and paused or skipped outcomes leave retry state untouched.
func ApplyTick(s domain.Schedule, o Outcome, policy retry.Policy, now time.Time) domain.Schedule {
	if s.Cancelled() {
		return s
	}
	if s.Metadata.PauseExpired(now) {
		s.Metadata.IsPaused = false
		s.Metadata.PausedUntil = nil
	}

	switch o.Result {
	case ResultSuccess:
		s.Metadata = policy.NextSuccessState(s.Metadata, now)
	case ResultInsufficientBalance:
		s.Metadata = policy.NextFailureState(s.Metadata, domain.FailureInsufficientBalance, now)
		s.Metadata.LastAttempt = &now
	case ResultFailed:
		s.Metadata = policy.NextFailureState(s.Metadata, o.Reason, now)
		s.Metadata.LastAttempt = &now
	}
	return s
}
