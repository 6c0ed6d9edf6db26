package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
)

func newTestTrigger(handler TickHandler) *CronTrigger {
	t := NewCronTrigger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.handler = handler
	t.ctx = context.Background()
	return t
}

func TestCronTrigger_RegisterRejectsInvalidCron(t *testing.T) {
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) {})

	if err := tr.Register(context.Background(), "s-1", "not a cron", domain.CadencePayload{}); err == nil {
		t.Fatal("expected error")
	}
	if tr.Len() != 0 {
		t.Errorf("expected nothing registered, got %d", tr.Len())
	}
}

func TestCronTrigger_RegisterReplacesAndDeregisters(t *testing.T) {
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) {})
	ctx := context.Background()

	if err := tr.Register(ctx, "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.Register(ctx, "s-1", "0 0 L * *", domain.CadencePayload{ScheduleID: "s-1"}); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected re-register to replace, got %d entries", tr.Len())
	}
	if got := tr.entries["s-1"].cronExpr; got != "0 0 L * *" {
		t.Errorf("expected replaced cadence, got %q", got)
	}
	if len(tr.cron.Entries()) != 1 {
		t.Errorf("expected one cron entry, got %d", len(tr.cron.Entries()))
	}

	if err := tr.Deregister(ctx, "s-1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Deregister(ctx, "s-1"); err != nil {
		t.Fatalf("expected idempotent deregister, got %v", err)
	}
	if tr.Len() != 0 || len(tr.cron.Entries()) != 0 {
		t.Error("expected empty trigger")
	}
}

func TestCronTrigger_RetryDeliversCurrentPayload(t *testing.T) {
	got := make(chan domain.CadencePayload, 1)
	tr := newTestTrigger(func(_ context.Context, p domain.CadencePayload) { got <- p })
	ctx := context.Background()

	_ = tr.Register(ctx, "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1", WalletAddress: "0xA"})
	if err := tr.UpdatePayload(ctx, "s-1", domain.CadencePayload{ScheduleID: "s-1", WalletAddress: "0xB"}); err != nil {
		t.Fatal(err)
	}
	if err := tr.ScheduleRetry(ctx, "s-1", time.Now()); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		if p.WalletAddress != "0xB" {
			t.Errorf("expected updated payload, got %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not fire")
	}
}

func TestCronTrigger_UnknownID(t *testing.T) {
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) {})
	ctx := context.Background()

	if err := tr.UpdatePayload(ctx, "nope", domain.CadencePayload{}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if err := tr.ScheduleRetry(ctx, "nope", time.Now()); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestCronTrigger_DropsOverlappingTicks(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) {
		calls.Add(1)
		close(started)
		<-release
	})
	_ = tr.Register(context.Background(), "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1"})

	go tr.fire("s-1", true)
	<-started

	// A second firing while the first is running is dropped.
	tr.fire("s-1", false)
	close(release)

	if calls.Load() != 1 {
		t.Errorf("expected 1 handler call, got %d", calls.Load())
	}
}

func TestCronTrigger_NaturalTickCancelsPendingRetry(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) { calls.Add(1) })
	ctx := context.Background()

	_ = tr.Register(ctx, "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1"})
	_ = tr.ScheduleRetry(ctx, "s-1", time.Now().Add(200*time.Millisecond))

	tr.fire("s-1", true)
	time.Sleep(400 * time.Millisecond)

	if calls.Load() != 1 {
		t.Errorf("expected only the natural tick, got %d calls", calls.Load())
	}
}

func TestCronTrigger_DeregisterCancelsPendingRetry(t *testing.T) {
	var calls atomic.Int32
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) { calls.Add(1) })
	ctx := context.Background()

	_ = tr.Register(ctx, "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1"})
	_ = tr.ScheduleRetry(ctx, "s-1", time.Now().Add(100*time.Millisecond))
	_ = tr.Deregister(ctx, "s-1")

	time.Sleep(300 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("expected no ticks after deregister, got %d", calls.Load())
	}
}

func waitIdle(t *testing.T, tr *CronTrigger, id string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		tr.mu.Lock()
		_, busy := tr.inflight[id]
		tr.mu.Unlock()
		if !busy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("in-flight guard not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCronTrigger_RetryPanicIsRecovered(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{}, 2)
	tr := newTestTrigger(func(context.Context, domain.CadencePayload) {
		defer func() { done <- struct{}{} }()
		if calls.Add(1) == 1 {
			panic("boom")
		}
	})
	ctx := context.Background()
	_ = tr.Register(ctx, "s-1", "0 0 1 * *", domain.CadencePayload{ScheduleID: "s-1"})

	for i := 0; i < 2; i++ {
		if err := tr.ScheduleRetry(ctx, "s-1", time.Now()); err != nil {
			t.Fatal(err)
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("retry %d did not fire", i+1)
		}
		waitIdle(t, tr, "s-1")
	}

	if calls.Load() != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls.Load())
	}
}
