// Package requestid carries correlation ids through a context. HTTP requests
// and cadence ticks each get one; ticks also carry the schedule they act on.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header used to accept and propagate request ids.
const Header = "X-Request-ID"

type (
	ctxKey         struct{}
	scheduleCtxKey struct{}
)

// New generates a random UUID v4 request ID.
func New() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx with the request ID attached.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the request ID from ctx. Returns "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func WithScheduleID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scheduleCtxKey{}, id)
}

func ScheduleIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(scheduleCtxKey{}).(string)
	return id
}
