package domain

import "time"

// Execution is one recorded tick of a schedule.
type Execution struct {
	ID         string
	ScheduleID string
	Result     string
	Reference  *string // transaction reference on success
	Error      *string
	RetryCount int
	StartedAt  time.Time
	DurationMS int64
}
