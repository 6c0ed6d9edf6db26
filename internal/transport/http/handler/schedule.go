package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/transport/http/middleware"
	"github.com/ErlanBelekov/recurring-payments/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type scheduleUsecaser interface {
	CreatePaymentSchedule(ctx context.Context, input usecase.CreatePaymentScheduleInput) (usecase.ScheduleResult, error)
	CreateBillSchedule(ctx context.Context, input usecase.CreateBillScheduleInput) (usecase.ScheduleResult, error)
	GetSchedule(ctx context.Context, id string) (usecase.ScheduleResult, error)
	ListByWallet(ctx context.Context, input usecase.ListSchedulesInput) (usecase.ListSchedulesResult, error)
	UpdateSchedule(ctx context.Context, id string, patch usecase.UpdateScheduleInput) (usecase.ScheduleResult, error)
	PauseSchedule(ctx context.Context, id string, until *time.Time) (usecase.ScheduleResult, error)
	ResumeSchedule(ctx context.Context, id string) (usecase.ScheduleResult, error)
	CancelSchedule(ctx context.Context, id string) error
}

type reminder interface {
	Remind(ctx context.Context, id string) error
}

type executionLister interface {
	ListExecutions(ctx context.Context, scheduleID string, limit int) ([]*domain.Execution, error)
}

type ScheduleHandler struct {
	uc         scheduleUsecaser
	reminder   reminder
	executions executionLister
	logger     *slog.Logger
}

func NewScheduleHandler(uc scheduleUsecaser, reminder reminder, executions executionLister, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		uc:         uc,
		reminder:   reminder,
		executions: executions,
		logger:     logger.With("component", "schedule_handler"),
	}
}

type cadenceRequest struct {
	Frequency        domain.Frequency `json:"frequency"        binding:"required"`
	CustomCron       string           `json:"customCron"       binding:"max=128"`
	CustomDayOfMonth *int             `json:"customDayOfMonth" binding:"omitempty,min=1,max=31"`
	Language         string           `json:"language"         binding:"omitempty,oneof=en es pt fr"`
	MaxRetries       int              `json:"maxRetries"       binding:"omitempty,min=1,max=10"`
}

func (r cadenceRequest) cadence() usecase.CadenceInput {
	return usecase.CadenceInput{
		Frequency:        r.Frequency,
		CustomCron:       r.CustomCron,
		CustomDayOfMonth: r.CustomDayOfMonth,
	}
}

type createPaymentRequest struct {
	cadenceRequest
	Recipient string          `json:"recipient" binding:"required,max=256"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"  binding:"required,max=16"`
}

type createBillRequest struct {
	cadenceRequest
	BillerService string          `json:"billerService" binding:"required,max=128"`
	BillersCode   string          `json:"billersCode"   binding:"required,max=128"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"      binding:"max=16"`
}

type updateScheduleRequest struct {
	Amount           *decimal.Decimal  `json:"amount"`
	Recipient        *string           `json:"recipient"        binding:"omitempty,max=256"`
	BillersCode      *string           `json:"billersCode"      binding:"omitempty,max=128"`
	Frequency        *domain.Frequency `json:"frequency"`
	CustomCron       *string           `json:"customCron"       binding:"omitempty,max=128"`
	CustomDayOfMonth *int              `json:"customDayOfMonth" binding:"omitempty,min=1,max=31"`
	Language         *string           `json:"language"         binding:"omitempty,oneof=en es pt fr"`
	MaxRetries       *int              `json:"maxRetries"       binding:"omitempty,min=1,max=10"`
	IsPaused         *bool             `json:"isPaused"`
}

type pauseRequest struct {
	Until *time.Time `json:"until"`
}

type scheduleResponse struct {
	ID               string           `json:"id"`
	Kind             domain.Kind      `json:"kind"`
	WalletAddress    string           `json:"walletAddress"`
	Recipient        string           `json:"recipient,omitempty"`
	BillerService    string           `json:"billerService,omitempty"`
	BillersCode      string           `json:"billersCode,omitempty"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Frequency        domain.Frequency `json:"frequency"`
	CustomCron       string           `json:"customCron,omitempty"`
	CustomDayOfMonth *int             `json:"customDayOfMonth,omitempty"`
	Cron             string           `json:"cron"`
	Status           domain.Status    `json:"status"`
	Metadata         domain.Metadata  `json:"metadata"`
	NextExecution    *time.Time       `json:"nextExecution,omitempty"`
	CancelledAt      *time.Time       `json:"cancelledAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func toScheduleResponse(r usecase.ScheduleResult) scheduleResponse {
	s := r.Schedule
	resp := scheduleResponse{
		ID:               s.ID,
		Kind:             s.Kind(),
		WalletAddress:    s.WalletAddress,
		Amount:           s.Amount,
		Currency:         s.Currency,
		Frequency:        s.Frequency,
		CustomCron:       s.CustomCron,
		CustomDayOfMonth: s.CustomDayOfMonth,
		Cron:             s.CronExpr,
		Status:           s.Status(),
		Metadata:         s.Metadata,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	switch t := s.Target.(type) {
	case domain.PaymentTarget:
		resp.Recipient = t.Recipient
	case domain.BillTarget:
		resp.BillerService = t.BillerService
		resp.BillersCode = t.BillersCode
	}
	if !r.NextExecution.IsZero() {
		next := r.NextExecution
		resp.NextExecution = &next
	}
	return resp
}

type executionResponse struct {
	ID         string    `json:"id"`
	Result     string    `json:"result"`
	Reference  *string   `json:"reference,omitempty"`
	Error      *string   `json:"error,omitempty"`
	RetryCount int       `json:"retryCount"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMS int64     `json:"durationMs"`
}

func (h *ScheduleHandler) CreatePayment(ctx *gin.Context) {
	var req createPaymentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.uc.CreatePaymentSchedule(ctx.Request.Context(), usecase.CreatePaymentScheduleInput{
		WalletAddress: ctx.GetString(middleware.WalletKey),
		Recipient:     req.Recipient,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Cadence:       req.cadence(),
		Language:      req.Language,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		h.writeError(ctx, "create payment schedule", "", err)
		return
	}

	ctx.JSON(http.StatusCreated, toScheduleResponse(res))
}

func (h *ScheduleHandler) CreateBill(ctx *gin.Context) {
	var req createBillRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.uc.CreateBillSchedule(ctx.Request.Context(), usecase.CreateBillScheduleInput{
		WalletAddress: ctx.GetString(middleware.WalletKey),
		BillerService: req.BillerService,
		BillersCode:   req.BillersCode,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Cadence:       req.cadence(),
		Language:      req.Language,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		h.writeError(ctx, "create bill schedule", "", err)
		return
	}

	ctx.JSON(http.StatusCreated, toScheduleResponse(res))
}

func (h *ScheduleHandler) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	result, err := h.uc.ListByWallet(ctx.Request.Context(), usecase.ListSchedulesInput{
		WalletAddress: ctx.GetString(middleware.WalletKey),
		Cursor:        ctx.Query("cursor"),
		Limit:         limit,
	})
	if err != nil {
		h.writeError(ctx, "list schedules", "", err)
		return
	}

	items := make([]scheduleResponse, len(result.Schedules))
	for i, s := range result.Schedules {
		items[i] = toScheduleResponse(s)
	}
	ctx.JSON(http.StatusOK, gin.H{
		"schedules":  items,
		"nextCursor": result.NextCursor,
	})
}

func (h *ScheduleHandler) GetByID(ctx *gin.Context) {
	res, ok := h.owned(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, toScheduleResponse(res))
}

func (h *ScheduleHandler) Update(ctx *gin.Context) {
	var req updateScheduleRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	res, err := h.uc.UpdateSchedule(ctx.Request.Context(), id, usecase.UpdateScheduleInput{
		Amount:           req.Amount,
		Recipient:        req.Recipient,
		BillersCode:      req.BillersCode,
		Frequency:        req.Frequency,
		CustomCron:       req.CustomCron,
		CustomDayOfMonth: req.CustomDayOfMonth,
		Language:         req.Language,
		MaxRetries:       req.MaxRetries,
		IsPaused:         req.IsPaused,
	})
	if err != nil {
		h.writeError(ctx, "update schedule", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(res))
}

func (h *ScheduleHandler) Pause(ctx *gin.Context) {
	var req pauseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	res, err := h.uc.PauseSchedule(ctx.Request.Context(), id, req.Until)
	if err != nil {
		h.writeError(ctx, "pause schedule", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(res))
}

func (h *ScheduleHandler) Resume(ctx *gin.Context) {
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	res, err := h.uc.ResumeSchedule(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "resume schedule", id, err)
		return
	}

	ctx.JSON(http.StatusOK, toScheduleResponse(res))
}

func (h *ScheduleHandler) Cancel(ctx *gin.Context) {
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	if err := h.uc.CancelSchedule(ctx.Request.Context(), id); err != nil {
		h.writeError(ctx, "cancel schedule", id, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func (h *ScheduleHandler) Remind(ctx *gin.Context) {
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	if err := h.reminder.Remind(ctx.Request.Context(), id); err != nil {
		h.writeError(ctx, "send reminder", id, err)
		return
	}

	ctx.Status(http.StatusAccepted)
}

func (h *ScheduleHandler) ListExecutions(ctx *gin.Context) {
	if _, ok := h.owned(ctx); !ok {
		return
	}

	id := ctx.Param("id")
	limit, _ := strconv.Atoi(ctx.Query("limit"))

	executions, err := h.executions.ListExecutions(ctx.Request.Context(), id, limit)
	if err != nil {
		h.writeError(ctx, "list executions", id, err)
		return
	}

	items := make([]executionResponse, len(executions))
	for i, e := range executions {
		items[i] = executionResponse{
			ID:         e.ID,
			Result:     e.Result,
			Reference:  e.Reference,
			Error:      e.Error,
			RetryCount: e.RetryCount,
			StartedAt:  e.StartedAt,
			DurationMS: e.DurationMS,
		}
	}
	ctx.JSON(http.StatusOK, gin.H{"executions": items})
}

// owned loads the schedule named in the path and checks it belongs to the
// caller's wallet. Someone else's schedule reads as not found.
func (h *ScheduleHandler) owned(ctx *gin.Context) (usecase.ScheduleResult, bool) {
	id := ctx.Param("id")

	res, err := h.uc.GetSchedule(ctx.Request.Context(), id)
	if err != nil {
		h.writeError(ctx, "get schedule", id, err)
		return usecase.ScheduleResult{}, false
	}
	if res.Schedule.WalletAddress != ctx.GetString(middleware.WalletKey) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
		return usecase.ScheduleResult{}, false
	}
	return res, true
}

func (h *ScheduleHandler) writeError(ctx *gin.Context, op, id string, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, domain.ErrScheduleNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
	case errors.Is(err, domain.ErrScheduleCancelled):
		ctx.JSON(http.StatusConflict, gin.H{"error": errScheduleCancelled})
	default:
		h.logger.ErrorContext(ctx.Request.Context(), op, "schedule_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}
