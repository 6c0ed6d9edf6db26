package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/cadence"
	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
	"github.com/ErlanBelekov/recurring-payments/internal/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CadenceTrigger is the recurring-trigger primitive. It must deliver at most
// one in-flight tick per schedule id.
type CadenceTrigger interface {
	Register(ctx context.Context, scheduleID, cronExpr string, payload domain.CadencePayload) error
	Deregister(ctx context.Context, scheduleID string) error
	UpdatePayload(ctx context.Context, scheduleID string, payload domain.CadencePayload) error
}

type ScheduleConfig struct {
	DefaultBillCurrency string
	DefaultMaxRetries   int
}

type ScheduleUsecase struct {
	repo    repository.ScheduleRepository
	trigger CadenceTrigger
	cfg     ScheduleConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewScheduleUsecase(repo repository.ScheduleRepository, trigger CadenceTrigger, cfg ScheduleConfig, logger *slog.Logger) *ScheduleUsecase {
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = domain.DefaultMaxRetries
	}
	return &ScheduleUsecase{
		repo:    repo,
		trigger: trigger,
		cfg:     cfg,
		logger:  logger.With("component", "schedule_usecase"),
		now:     time.Now,
	}
}

// ScheduleResult pairs a schedule with its next cadence firing. NextExecution
// is zero for cancelled schedules.
type ScheduleResult struct {
	Schedule      *domain.Schedule
	NextExecution time.Time
}

type CadenceInput struct {
	Frequency        domain.Frequency
	CustomCron       string
	CustomDayOfMonth *int
}

type CreatePaymentScheduleInput struct {
	WalletAddress string
	Recipient     string
	Amount        decimal.Decimal
	Currency      string
	Cadence       CadenceInput
	Language      string
	MaxRetries    int
}

type CreateBillScheduleInput struct {
	WalletAddress string
	BillerService string
	BillersCode   string
	Amount        decimal.Decimal
	Currency      string // defaults to ScheduleConfig.DefaultBillCurrency
	Cadence       CadenceInput
	Language      string
	MaxRetries    int
}

func (u *ScheduleUsecase) CreatePaymentSchedule(ctx context.Context, input CreatePaymentScheduleInput) (ScheduleResult, error) {
	if strings.TrimSpace(input.Recipient) == "" {
		return ScheduleResult{}, domain.NewValidationError("recipient", "is required")
	}
	if strings.TrimSpace(input.Currency) == "" {
		return ScheduleResult{}, domain.NewValidationError("currency", "is required")
	}

	return u.create(ctx, newScheduleInput{
		walletAddress: input.WalletAddress,
		target:        domain.PaymentTarget{Recipient: input.Recipient},
		amount:        input.Amount,
		currency:      input.Currency,
		cadence:       input.Cadence,
		language:      input.Language,
		maxRetries:    input.MaxRetries,
	})
}

func (u *ScheduleUsecase) CreateBillSchedule(ctx context.Context, input CreateBillScheduleInput) (ScheduleResult, error) {
	if strings.TrimSpace(input.BillerService) == "" {
		return ScheduleResult{}, domain.NewValidationError("billerService", "is required")
	}
	if strings.TrimSpace(input.BillersCode) == "" {
		return ScheduleResult{}, domain.NewValidationError("billersCode", "is required")
	}
	currency := input.Currency
	if currency == "" {
		currency = u.cfg.DefaultBillCurrency
	}

	return u.create(ctx, newScheduleInput{
		walletAddress: input.WalletAddress,
		target:        domain.BillTarget{BillerService: input.BillerService, BillersCode: input.BillersCode},
		amount:        input.Amount,
		currency:      currency,
		cadence:       input.Cadence,
		language:      input.Language,
		maxRetries:    input.MaxRetries,
	})
}

type newScheduleInput struct {
	walletAddress string
	target        domain.Target
	amount        decimal.Decimal
	currency      string
	cadence       CadenceInput
	language      string
	maxRetries    int
}

func (u *ScheduleUsecase) create(ctx context.Context, in newScheduleInput) (ScheduleResult, error) {
	if strings.TrimSpace(in.walletAddress) == "" {
		return ScheduleResult{}, domain.NewValidationError("walletAddress", "is required")
	}
	if !in.amount.IsPositive() {
		return ScheduleResult{}, domain.NewValidationError("amount", "must be greater than zero")
	}
	lang, err := domain.ParseLanguage(in.language)
	if err != nil {
		return ScheduleResult{}, err
	}
	maxRetries, err := u.maxRetries(in.maxRetries)
	if err != nil {
		return ScheduleResult{}, err
	}
	cronExpr, err := resolveCadence(in.cadence)
	if err != nil {
		return ScheduleResult{}, err
	}

	s := &domain.Schedule{
		ID:               uuid.NewString(),
		WalletAddress:    in.walletAddress,
		Target:           in.target,
		Amount:           in.amount,
		Currency:         in.currency,
		Frequency:        in.cadence.Frequency,
		CustomCron:       customCron(in.cadence),
		CustomDayOfMonth: in.cadence.CustomDayOfMonth,
		CronExpr:         cronExpr,
		Metadata: domain.Metadata{
			RetryCount: 0,
			MaxRetries: maxRetries,
			IsPaused:   false,
			Language:   lang,
		},
	}

	created, err := u.repo.Create(ctx, s)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("create schedule: %w", err)
	}

	if err := u.trigger.Register(ctx, created.ID, created.CronExpr, created.Payload()); err != nil {
		// Leave no orphan: a schedule that never fires is marked cancelled.
		if _, cancelErr := u.repo.Update(ctx, created.ID, func(s *domain.Schedule) error {
			now := u.now()
			s.CancelledAt = &now
			return nil
		}); cancelErr != nil {
			u.logger.ErrorContext(ctx, "cancel unregistered schedule", "schedule_id", created.ID, "error", cancelErr)
		}
		return ScheduleResult{}, fmt.Errorf("register cadence: %w", err)
	}

	u.logger.InfoContext(ctx, "schedule created",
		"schedule_id", created.ID,
		"kind", created.Kind(),
		"wallet", created.WalletAddress,
		"cron", created.CronExpr,
	)
	return u.result(created), nil
}

func (u *ScheduleUsecase) GetSchedule(ctx context.Context, id string) (ScheduleResult, error) {
	s, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("get schedule: %w", err)
	}
	return u.result(s), nil
}

type ListSchedulesInput struct {
	WalletAddress string
	Cursor        string
	Limit         int
}

type ListSchedulesResult struct {
	Schedules  []ScheduleResult
	NextCursor *string
}

type scheduleCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

var ErrInvalidCursor = domain.NewValidationError("cursor", "is malformed")

func decodeScheduleCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c scheduleCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeScheduleCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(scheduleCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (u *ScheduleUsecase) ListByWallet(ctx context.Context, input ListSchedulesInput) (ListSchedulesResult, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	repoInput := repository.ListSchedulesInput{
		WalletAddress: input.WalletAddress,
		Limit:         limit + 1,
	}

	if input.Cursor != "" {
		cursorTime, cursorID, err := decodeScheduleCursor(input.Cursor)
		if err != nil {
			return ListSchedulesResult{}, ErrInvalidCursor
		}
		repoInput.CursorTime = cursorTime
		repoInput.CursorID = cursorID
	}

	schedules, err := u.repo.ListByWallet(ctx, repoInput)
	if err != nil {
		return ListSchedulesResult{}, fmt.Errorf("list schedules: %w", err)
	}

	var nextCursor *string
	if len(schedules) == limit+1 {
		last := schedules[limit-1]
		s := encodeScheduleCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		schedules = schedules[:limit]
	}

	results := make([]ScheduleResult, len(schedules))
	for i, s := range schedules {
		results[i] = u.result(s)
	}
	return ListSchedulesResult{Schedules: results, NextCursor: nextCursor}, nil
}

// UpdateScheduleInput is a sparse patch; nil fields are left untouched.
// CustomCron and CustomDayOfMonth are only accepted together with Frequency.
type UpdateScheduleInput struct {
	Amount           *decimal.Decimal
	Recipient        *string
	BillersCode      *string
	Frequency        *domain.Frequency
	CustomCron       *string
	CustomDayOfMonth *int
	Language         *string
	MaxRetries       *int
	IsPaused         *bool
}

func (u *ScheduleUsecase) UpdateSchedule(ctx context.Context, id string, patch UpdateScheduleInput) (ScheduleResult, error) {
	if patch.Frequency == nil && (patch.CustomCron != nil || patch.CustomDayOfMonth != nil) {
		return ScheduleResult{}, domain.NewValidationError("frequency", "is required when changing customCron or customDayOfMonth")
	}

	cadenceChanged := false
	updated, err := u.repo.Update(ctx, id, func(s *domain.Schedule) error {
		if s.Cancelled() {
			return domain.ErrScheduleCancelled
		}
		if err := u.applyFieldPatch(s, patch); err != nil {
			return err
		}
		if patch.Frequency == nil {
			return nil
		}

		next := CadenceInput{
			Frequency:        *patch.Frequency,
			CustomCron:       deref(patch.CustomCron, s.CustomCron),
			CustomDayOfMonth: dayOfMonth(*patch.Frequency, patch.CustomDayOfMonth, s.CustomDayOfMonth),
		}
		newCron, err := resolveCadence(next)
		if err != nil {
			return err
		}

		s.Frequency = next.Frequency
		s.CustomCron = customCron(next)
		s.CustomDayOfMonth = next.CustomDayOfMonth
		if newCron == s.CronExpr {
			return nil
		}

		if err := u.replaceCadence(ctx, s, newCron); err != nil {
			return err
		}
		s.CronExpr = newCron
		cadenceChanged = true
		return nil
	})
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("update schedule: %w", err)
	}

	if !cadenceChanged {
		if err := u.trigger.UpdatePayload(ctx, updated.ID, updated.Payload()); err != nil {
			u.logger.WarnContext(ctx, "update cadence payload", "schedule_id", updated.ID, "error", err)
		}
	}

	u.logger.InfoContext(ctx, "schedule updated", "schedule_id", updated.ID, "cadence_changed", cadenceChanged)
	return u.result(updated), nil
}

// replaceCadence swaps the trigger registration under the same id. On a
// failed re-register the old cadence is restored so the caller's write can
// be rolled back without losing the trigger.
func (u *ScheduleUsecase) replaceCadence(ctx context.Context, s *domain.Schedule, newCron string) error {
	if err := u.trigger.Deregister(ctx, s.ID); err != nil {
		return fmt.Errorf("deregister cadence: %w", err)
	}
	if err := u.trigger.Register(ctx, s.ID, newCron, s.Payload()); err != nil {
		if restoreErr := u.trigger.Register(ctx, s.ID, s.CronExpr, s.Payload()); restoreErr != nil {
			u.logger.ErrorContext(ctx, "restore cadence", "schedule_id", s.ID, "error", restoreErr)
		}
		return fmt.Errorf("register cadence: %w", err)
	}
	return nil
}

func (u *ScheduleUsecase) applyFieldPatch(s *domain.Schedule, patch UpdateScheduleInput) error {
	if patch.Amount != nil {
		if !patch.Amount.IsPositive() {
			return domain.NewValidationError("amount", "must be greater than zero")
		}
		s.Amount = *patch.Amount
	}

	if patch.Recipient != nil {
		if _, ok := s.Target.(domain.PaymentTarget); !ok {
			return domain.NewValidationError("recipient", "only applies to payment schedules")
		}
		if strings.TrimSpace(*patch.Recipient) == "" {
			return domain.NewValidationError("recipient", "must not be empty")
		}
		s.Target = domain.PaymentTarget{Recipient: *patch.Recipient}
	}

	if patch.BillersCode != nil {
		bill, ok := s.Target.(domain.BillTarget)
		if !ok {
			return domain.NewValidationError("billersCode", "only applies to bill schedules")
		}
		if strings.TrimSpace(*patch.BillersCode) == "" {
			return domain.NewValidationError("billersCode", "must not be empty")
		}
		bill.BillersCode = *patch.BillersCode
		s.Target = bill
	}

	if patch.Language != nil {
		lang, err := domain.ParseLanguage(*patch.Language)
		if err != nil {
			return err
		}
		s.Metadata.Language = lang
	}

	if patch.MaxRetries != nil {
		maxRetries, err := u.maxRetries(*patch.MaxRetries)
		if err != nil {
			return err
		}
		s.Metadata.MaxRetries = maxRetries
	}

	if patch.IsPaused != nil {
		if *patch.IsPaused {
			pause(s, nil)
		} else {
			resume(s)
		}
	}
	return nil
}

// PauseSchedule pauses until the given time, or indefinitely when until is
// nil. The cadence stays registered; paused ticks are no-ops.
func (u *ScheduleUsecase) PauseSchedule(ctx context.Context, id string, until *time.Time) (ScheduleResult, error) {
	if until != nil && !until.After(u.now()) {
		return ScheduleResult{}, domain.NewValidationError("until", "must be in the future")
	}

	updated, err := u.repo.Update(ctx, id, func(s *domain.Schedule) error {
		if s.Cancelled() {
			return domain.ErrScheduleCancelled
		}
		if until != nil && retry.Exhausted(s.Metadata) {
			return domain.NewValidationError("until", "schedule is paused after exhausting retries; resume it first")
		}
		pause(s, until)
		return nil
	})
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("pause schedule: %w", err)
	}

	u.logger.InfoContext(ctx, "schedule paused", "schedule_id", id, "until", until)
	return u.result(updated), nil
}

func (u *ScheduleUsecase) ResumeSchedule(ctx context.Context, id string) (ScheduleResult, error) {
	updated, err := u.repo.Update(ctx, id, func(s *domain.Schedule) error {
		if s.Cancelled() {
			return domain.ErrScheduleCancelled
		}
		resume(s)
		return nil
	})
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("resume schedule: %w", err)
	}

	u.logger.InfoContext(ctx, "schedule resumed", "schedule_id", id)
	return u.result(updated), nil
}

// CancelSchedule deregisters the cadence and marks the schedule terminal.
// A tick already in flight is allowed to finish.
func (u *ScheduleUsecase) CancelSchedule(ctx context.Context, id string) error {
	_, err := u.repo.Update(ctx, id, func(s *domain.Schedule) error {
		if s.Cancelled() {
			return domain.ErrScheduleCancelled
		}
		if err := u.trigger.Deregister(ctx, s.ID); err != nil {
			return fmt.Errorf("deregister cadence: %w", err)
		}
		now := u.now()
		s.CancelledAt = &now
		s.Metadata.NextAttempt = nil
		return nil
	})
	if err != nil {
		return fmt.Errorf("cancel schedule: %w", err)
	}

	u.logger.InfoContext(ctx, "schedule cancelled", "schedule_id", id)
	return nil
}

// RestoreCadences registers every non-cancelled schedule with the trigger.
// The in-process trigger keeps no state across restarts.
func (u *ScheduleUsecase) RestoreCadences(ctx context.Context) (int, error) {
	schedules, err := u.repo.ListRegistrable(ctx)
	if err != nil {
		return 0, fmt.Errorf("list registrable schedules: %w", err)
	}

	var errs []error
	restored := 0
	for _, s := range schedules {
		if err := u.trigger.Register(ctx, s.ID, s.CronExpr, s.Payload()); err != nil {
			errs = append(errs, fmt.Errorf("schedule %s: %w", s.ID, err))
			continue
		}
		restored++
	}
	return restored, errors.Join(errs...)
}

func (u *ScheduleUsecase) result(s *domain.Schedule) ScheduleResult {
	r := ScheduleResult{Schedule: s}
	if s.Cancelled() {
		return r
	}
	next, err := cadence.Next(s.CronExpr, u.now())
	if err != nil {
		u.logger.Error("compute next execution", "schedule_id", s.ID, "cron", s.CronExpr, "error", err)
		return r
	}
	r.NextExecution = next
	return r
}

func (u *ScheduleUsecase) maxRetries(v int) (int, error) {
	if v == 0 {
		return u.cfg.DefaultMaxRetries, nil
	}
	if v < 1 || v > domain.MaxMaxRetries {
		return 0, domain.NewValidationError("maxRetries", "must be between 1 and %d", domain.MaxMaxRetries)
	}
	return v, nil
}

func resolveCadence(c CadenceInput) (string, error) {
	if !c.Frequency.Valid() {
		return "", domain.NewValidationError("frequency", "unsupported frequency %q", c.Frequency)
	}
	return cadence.Resolve(c.Frequency, c.CustomDayOfMonth, c.CustomCron)
}

// customCron keeps the stored expression only where it has meaning.
func customCron(c CadenceInput) string {
	if c.Frequency != domain.FrequencyCustom {
		return ""
	}
	return c.CustomCron
}

// dayOfMonth keeps the stored override unless the patch sets one. Custom
// cadences carry their own day-of-month field.
func dayOfMonth(freq domain.Frequency, patched, stored *int) *int {
	if freq == domain.FrequencyCustom {
		return nil
	}
	if patched != nil {
		return patched
	}
	return stored
}

func pause(s *domain.Schedule, until *time.Time) {
	s.Metadata.IsPaused = true
	s.Metadata.PausedUntil = until
}

// resume lifts any pause. Leaving the terminal retries-exhausted state also
// restores the full retry budget.
func resume(s *domain.Schedule) {
	if retry.Exhausted(s.Metadata) {
		s.Metadata.RetryCount = 0
		s.Metadata.FailureReason = ""
	}
	s.Metadata.IsPaused = false
	s.Metadata.PausedUntil = nil
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
