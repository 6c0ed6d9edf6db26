package handler

const (
	errInternalServer    = "Internal server error"
	errScheduleNotFound  = "Schedule not found"
	errScheduleCancelled = "Schedule is cancelled"
)
