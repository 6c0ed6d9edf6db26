package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/cadence"
	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/metrics"
	"github.com/robfig/cron/v3"
)

// ErrNotRegistered is returned for operations on an unknown schedule id.
var ErrNotRegistered = errors.New("cadence not registered")

// TickHandler receives every firing, natural or retry.
type TickHandler func(ctx context.Context, payload domain.CadencePayload)

type registration struct {
	entryID  cron.EntryID
	cronExpr string
	payload  domain.CadencePayload
	retry    *time.Timer
}

// CronTrigger is the in-process recurring trigger. It fires at most one tick
// per schedule id at a time; a firing that finds the previous one still
// running is dropped. A natural cadence firing supersedes a pending retry.
type CronTrigger struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu       sync.Mutex
	entries  map[string]*registration
	inflight map[string]struct{}
	handler  TickHandler
	ctx      context.Context
}

func NewCronTrigger(logger *slog.Logger) *CronTrigger {
	logger = logger.With("component", "trigger")
	cl := cronLogger{logger: logger}
	return &CronTrigger{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		logger:   logger,
		entries:  make(map[string]*registration),
		inflight: make(map[string]struct{}),
	}
}

// Start begins delivering ticks to handler until ctx is done. Cadences may be
// registered before Start; they fire only once it runs.
func (t *CronTrigger) Start(ctx context.Context, handler TickHandler) {
	t.mu.Lock()
	t.handler = handler
	t.ctx = ctx
	t.mu.Unlock()

	t.cron.Start()
	t.logger.Info("trigger started", "cadences", t.Len())

	<-ctx.Done()

	<-t.cron.Stop().Done()
	t.mu.Lock()
	for _, reg := range t.entries {
		if reg.retry != nil {
			reg.retry.Stop()
		}
	}
	t.mu.Unlock()
	t.logger.Info("trigger shut down")
}

// Register schedules recurring ticks for id. Registering an id again
// replaces its cadence.
func (t *CronTrigger) Register(_ context.Context, id, cronExpr string, payload domain.CadencePayload) error {
	sched, err := cadence.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("parse cadence: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.entries[id]; ok {
		t.cron.Remove(prev.entryID)
		if prev.retry != nil {
			prev.retry.Stop()
		}
	}

	entryID := t.cron.Schedule(sched, cron.FuncJob(func() { t.fire(id, true) }))
	t.entries[id] = &registration{entryID: entryID, cronExpr: cronExpr, payload: payload}
	metrics.RegisteredCadences.Set(float64(len(t.entries)))
	return nil
}

// Deregister stops future ticks for id. A tick already running finishes.
// Unknown ids are ignored.
func (t *CronTrigger) Deregister(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.entries[id]
	if !ok {
		return nil
	}
	t.cron.Remove(reg.entryID)
	if reg.retry != nil {
		reg.retry.Stop()
	}
	delete(t.entries, id)
	metrics.RegisteredCadences.Set(float64(len(t.entries)))
	return nil
}

// UpdatePayload replaces the payload delivered with future ticks without
// touching the cadence.
func (t *CronTrigger) UpdatePayload(_ context.Context, id string, payload domain.CadencePayload) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.entries[id]
	if !ok {
		return ErrNotRegistered
	}
	reg.payload = payload
	return nil
}

// ScheduleRetry arranges one extra tick for id at the given time, replacing
// any retry already pending.
func (t *CronTrigger) ScheduleRetry(_ context.Context, id string, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	reg, ok := t.entries[id]
	if !ok {
		return ErrNotRegistered
	}
	if reg.retry != nil {
		reg.retry.Stop()
	}
	reg.retry = time.AfterFunc(max(time.Until(at), 0), func() { t.fireRetry(id) })
	return nil
}

// fireRetry runs outside the cron job chain, so it recovers panics itself
// the way cron.Recover does for natural firings.
func (t *CronTrigger) fireRetry(id string) {
	defer func() {
		if r := recover(); r != nil {
			cronLogger{logger: t.logger}.Error(fmt.Errorf("%v", r), "panic in retry tick",
				"schedule_id", id, "stack", string(debug.Stack()))
		}
	}()
	t.fire(id, false)
}

// Next reports when the cadence for id fires next. Only meaningful once the
// trigger has started.
func (t *CronTrigger) Next(id string) (time.Time, bool) {
	t.mu.Lock()
	reg, ok := t.entries[id]
	t.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return t.cron.Entry(reg.entryID).Next, true
}

func (t *CronTrigger) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *CronTrigger) fire(id string, natural bool) {
	t.mu.Lock()
	reg, ok := t.entries[id]
	if !ok || t.handler == nil {
		t.mu.Unlock()
		return
	}
	if natural && reg.retry != nil {
		reg.retry.Stop()
		reg.retry = nil
	}
	if !natural {
		reg.retry = nil
	}
	if _, busy := t.inflight[id]; busy {
		t.mu.Unlock()
		metrics.TicksSkippedTotal.WithLabelValues("in_flight").Inc()
		t.logger.Warn("previous tick still running, dropping", "schedule_id", id, "retry", !natural)
		return
	}
	t.inflight[id] = struct{}{}
	payload, handler, ctx := reg.payload, t.handler, t.ctx
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.inflight, id)
		t.mu.Unlock()
	}()

	handler(ctx, payload)
}

// cronLogger routes robfig/cron's logr-style logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
