package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/cadence"
	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/metrics"
	"github.com/ErlanBelekov/recurring-payments/internal/notify"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
	"github.com/ErlanBelekov/recurring-payments/internal/requestid"
	"github.com/ErlanBelekov/recurring-payments/internal/retry"
	"github.com/shopspring/decimal"
)

type BalanceQuerier interface {
	QueryBalance(ctx context.Context, walletAddress string) (map[string]decimal.Decimal, error)
}

type PaymentExecutor interface {
	ExecutePayment(ctx context.Context, walletAddress, recipient string, amount decimal.Decimal, currency string) (domain.Receipt, error)
	ExecuteBillPurchase(ctx context.Context, walletAddress, billerService, billersCode string, amount decimal.Decimal) (domain.Receipt, error)
}

type ContactResolver interface {
	ResolveContact(ctx context.Context, walletAddress string) (domain.Contact, error)
}

type Notifier interface {
	Send(ctx context.Context, kind notify.Kind, data notify.TemplateContext, lang domain.Language, contact domain.Contact)
}

// RetryScheduler arranges a one-off extra tick for a schedule.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, scheduleID string, at time.Time) error
}

type ProcessorConfig struct {
	Timeout     time.Duration // per collaborator call
	ExplorerURL string
	Policy      retry.Policy
}

// Processor runs one execution attempt per tick: pause check, balance check,
// transfer, retry bookkeeping and best-effort notification.
type Processor struct {
	repo     repository.ScheduleRepository
	balances BalanceQuerier
	executor PaymentExecutor
	contacts ContactResolver
	notifier Notifier
	retries  RetryScheduler
	history  repository.ExecutionRepository
	cfg      ProcessorConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(
	repo repository.ScheduleRepository,
	balances BalanceQuerier,
	executor PaymentExecutor,
	contacts ContactResolver,
	notifier Notifier,
	cfg ProcessorConfig,
	logger *slog.Logger,
) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.Policy.Ladder) == 0 {
		cfg.Policy = retry.DefaultPolicy()
	}
	return &Processor{
		repo:     repo,
		balances: balances,
		executor: executor,
		contacts: contacts,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "processor"),
		now:      time.Now,
	}
}

// SetRetryScheduler wires the trigger that fires early retries. Without one,
// retries simply happen on the next natural tick.
func (p *Processor) SetRetryScheduler(r RetryScheduler) {
	p.retries = r
}

// SetHistory enables recording of every attempt that reaches the gateway
// stage.
func (p *Processor) SetHistory(h repository.ExecutionRepository) {
	p.history = h
}

// Tick processes one firing for payload. It never returns an error: every
// failure is recorded on the schedule or logged.
func (p *Processor) Tick(ctx context.Context, payload domain.CadencePayload) Result {
	ctx = requestid.WithRequestID(ctx, requestid.New())
	ctx = requestid.WithScheduleID(ctx, payload.ScheduleID)

	metrics.TicksInFlight.Inc()
	defer metrics.TicksInFlight.Dec()

	start := time.Now()
	result := p.tick(ctx, payload.ScheduleID, start)

	metrics.TickDuration.WithLabelValues(string(result)).Observe(time.Since(start).Seconds())
	metrics.TicksTotal.WithLabelValues(string(result)).Inc()
	return result
}

func (p *Processor) tick(ctx context.Context, id string, start time.Time) Result {
	s, err := p.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrScheduleNotFound) {
			p.logger.WarnContext(ctx, "tick for unknown schedule", "schedule_id", id)
		} else {
			p.logger.ErrorContext(ctx, "load schedule", "schedule_id", id, "error", err)
		}
		return ResultSkipped
	}
	if s.Cancelled() {
		p.logger.DebugContext(ctx, "tick for cancelled schedule", "schedule_id", id)
		return ResultSkipped
	}

	now := p.now()
	if s.Metadata.IsPaused && !s.Metadata.PauseExpired(now) {
		p.logger.InfoContext(ctx, "schedule paused, skipping", "schedule_id", id, "paused_until", s.Metadata.PausedUntil)
		return ResultPaused
	}

	balances, err := p.queryBalance(ctx, s.WalletAddress)
	if err != nil {
		return p.finish(ctx, s, Outcome{Result: ResultFailed, Reason: err.Error()}, domain.Receipt{}, start)
	}
	if balance, ok := balances[s.Currency]; !ok || balance.LessThan(s.Amount) {
		p.logger.WarnContext(ctx, "insufficient balance",
			"schedule_id", id,
			"currency", s.Currency,
			"required", s.Amount.String(),
			"available", balance.String(),
		)
		return p.finish(ctx, s, Outcome{Result: ResultInsufficientBalance}, domain.Receipt{}, start)
	}

	p.logger.InfoContext(ctx, "executing schedule", "schedule_id", id, "kind", s.Kind(), "amount", s.Amount.String(), "currency", s.Currency)

	receipt, err := p.execute(ctx, s)
	if err != nil {
		return p.finish(ctx, s, Outcome{Result: ResultFailed, Reason: err.Error()}, domain.Receipt{}, start)
	}
	return p.finish(ctx, s, Outcome{Result: ResultSuccess}, receipt, start)
}

func (p *Processor) queryBalance(ctx context.Context, wallet string) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.balances.QueryBalance(ctx, wallet)
}

func (p *Processor) execute(ctx context.Context, s *domain.Schedule) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	switch t := s.Target.(type) {
	case domain.PaymentTarget:
		return p.executor.ExecutePayment(ctx, s.WalletAddress, t.Recipient, s.Amount, s.Currency)
	case domain.BillTarget:
		return p.executor.ExecuteBillPurchase(ctx, s.WalletAddress, t.BillerService, t.BillersCode, s.Amount)
	default:
		return domain.Receipt{}, fmt.Errorf("unsupported target %T", s.Target)
	}
}

// finish persists the outcome against the freshest copy of the schedule,
// then notifies and arranges an early retry when one is due.
func (p *Processor) finish(ctx context.Context, s *domain.Schedule, o Outcome, receipt domain.Receipt, start time.Time) Result {
	now := p.now()
	p.record(ctx, s, o, receipt, start)

	updated, err := p.repo.Update(ctx, s.ID, func(cur *domain.Schedule) error {
		if cur.Cancelled() {
			return domain.ErrScheduleCancelled
		}
		*cur = ApplyTick(*cur, o, p.cfg.Policy, now)
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrScheduleCancelled):
		p.logger.InfoContext(ctx, "schedule cancelled during tick, outcome not recorded", "schedule_id", s.ID, "result", o.Result)
		updated = nil
	case err != nil:
		p.logger.ErrorContext(ctx, "persist tick outcome", "schedule_id", s.ID, "result", o.Result, "error", err)
		updated = nil
	}

	after := s
	if updated != nil {
		after = updated
	}

	switch o.Result {
	case ResultSuccess:
		p.logger.InfoContext(ctx, "schedule executed", "schedule_id", s.ID, "reference", receipt.Reference)
		p.notify(ctx, after, notify.KindPaymentSent, receipt)
	case ResultInsufficientBalance:
		p.notify(ctx, after, notify.KindPaymentFailed, receipt)
	case ResultFailed:
		p.logger.WarnContext(ctx, "schedule execution failed",
			"schedule_id", s.ID,
			"error", o.Reason,
			"retry_count", after.Metadata.RetryCount,
			"max_retries", after.Metadata.MaxRetries,
		)
		if updated != nil && retry.Exhausted(updated.Metadata) {
			p.notify(ctx, after, notify.KindPaymentFailed, receipt)
		}
	}

	if updated == nil {
		return o.Result
	}
	if retry.Exhausted(updated.Metadata) && !retry.Exhausted(s.Metadata) {
		metrics.AutoPausesTotal.Inc()
		p.logger.WarnContext(ctx, "schedule paused after exhausting retries", "schedule_id", s.ID, "retry_count", updated.Metadata.RetryCount)
	}
	p.scheduleRetry(ctx, updated)
	return o.Result
}

func (p *Processor) record(ctx context.Context, s *domain.Schedule, o Outcome, receipt domain.Receipt, start time.Time) {
	if p.history == nil {
		return
	}
	e := &domain.Execution{
		ScheduleID: s.ID,
		Result:     string(o.Result),
		RetryCount: s.Metadata.RetryCount,
		StartedAt:  start.UTC(),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if receipt.Reference != "" {
		ref := receipt.Reference
		e.Reference = &ref
	}
	if o.Reason != "" {
		reason := o.Reason
		e.Error = &reason
	}
	if err := p.history.Record(ctx, e); err != nil {
		p.logger.WarnContext(ctx, "record execution", "schedule_id", s.ID, "error", err)
	}
}

func (p *Processor) scheduleRetry(ctx context.Context, s *domain.Schedule) {
	if p.retries == nil || s.Metadata.NextAttempt == nil {
		return
	}
	if err := p.retries.ScheduleRetry(ctx, s.ID, *s.Metadata.NextAttempt); err != nil {
		p.logger.WarnContext(ctx, "schedule retry", "schedule_id", s.ID, "error", err)
		return
	}
	p.logger.InfoContext(ctx, "retry scheduled", "schedule_id", s.ID, "at", *s.Metadata.NextAttempt)
}

func (p *Processor) notify(ctx context.Context, s *domain.Schedule, kind notify.Kind, receipt domain.Receipt) {
	if p.notifier == nil || p.contacts == nil {
		return
	}

	contact, err := p.resolveContact(ctx, s.WalletAddress)
	if err != nil {
		p.logger.WarnContext(ctx, "resolve contact", "schedule_id", s.ID, "error", err)
		return
	}
	if contact.Empty() {
		p.logger.DebugContext(ctx, "no contact for wallet", "schedule_id", s.ID)
		return
	}

	data := notify.TemplateContext{
		Amount:      s.Amount,
		Currency:    s.Currency,
		Recipient:   recipientLabel(s.Target),
		Reference:   receipt.Reference,
		Savings:     receipt.Savings,
		ExplorerURL: notify.ExplorerURL(p.cfg.ExplorerURL, receipt.Reference),
	}
	p.notifier.Send(ctx, kind, data, s.Metadata.Language, contact)
}

func (p *Processor) resolveContact(ctx context.Context, wallet string) (domain.Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	return p.contacts.ResolveContact(ctx, wallet)
}

// Remind sends the upcoming-payment reminder for a schedule. Delivery is
// best effort; only lookup failures are returned.
func (p *Processor) Remind(ctx context.Context, id string) error {
	s, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	if s.Cancelled() {
		return domain.ErrScheduleCancelled
	}

	next, err := cadence.Next(s.CronExpr, p.now())
	if err != nil {
		return fmt.Errorf("next execution: %w", err)
	}

	if p.notifier == nil || p.contacts == nil {
		return nil
	}
	contact, err := p.resolveContact(ctx, s.WalletAddress)
	if err != nil {
		p.logger.WarnContext(ctx, "resolve contact", "schedule_id", s.ID, "error", err)
		return nil
	}

	p.notifier.Send(ctx, notify.KindRecurringReminder, notify.TemplateContext{
		Amount:    s.Amount,
		Currency:  s.Currency,
		Recipient: recipientLabel(s.Target),
		Date:      next.Format("2006-01-02 15:04 MST"),
	}, s.Metadata.Language, contact)
	return nil
}

func recipientLabel(t domain.Target) string {
	switch t := t.(type) {
	case domain.PaymentTarget:
		return t.Recipient
	case domain.BillTarget:
		return t.BillerService + " " + t.BillersCode
	default:
		return ""
	}
}
