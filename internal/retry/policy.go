// Package retry decides what a schedule's metadata looks like after a
// failed or successful execution attempt.
package retry

import (
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
)

// DefaultLadder is indexed by consecutive failures; the last rung repeats.
var DefaultLadder = []time.Duration{
	1 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

type Policy struct {
	Ladder []time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Ladder: DefaultLadder}
}

// Delay returns the backoff after the n-th consecutive failure (n >= 1).
func (p Policy) Delay(n int) time.Duration {
	ladder := p.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	idx := min(max(n-1, 0), len(ladder)-1)
	return ladder[idx]
}

// NextFailureState records a failed attempt. Once the failure count passes
// MaxRetries the schedule is paused indefinitely and needs an explicit resume.
func (p Policy) NextFailureState(m domain.Metadata, reason string, now time.Time) domain.Metadata {
	maxRetries := effectiveMaxRetries(m)
	m.RetryCount = min(m.RetryCount+1, maxRetries+1)

	if m.RetryCount <= maxRetries {
		next := now.Add(p.Delay(m.RetryCount))
		m.NextAttempt = &next
		m.FailureReason = reason
		return m
	}

	m.IsPaused = true
	m.PausedUntil = nil
	m.FailureReason = domain.FailureMaxRetriesExceeded
	m.NextAttempt = nil
	return m
}

// NextSuccessState clears all failure bookkeeping regardless of how many
// retries preceded the success.
func (p Policy) NextSuccessState(m domain.Metadata, now time.Time) domain.Metadata {
	m.RetryCount = 0
	m.LastAttempt = &now
	m.FailureReason = ""
	m.NextAttempt = nil
	return m
}

// Exhausted reports whether m is in the terminal auto-paused state.
func Exhausted(m domain.Metadata) bool {
	return m.RetriesExhausted()
}

func effectiveMaxRetries(m domain.Metadata) int {
	if m.MaxRetries <= 0 {
		return domain.DefaultMaxRetries
	}
	return m.MaxRetries
}
