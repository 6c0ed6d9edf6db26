package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPayment Kind = "payment"
	KindBill    Kind = "bill"
)

type Frequency string

const (
	FrequencyDaily       Frequency = "daily"
	FrequencyWeekly      Frequency = "weekly"
	FrequencyBiweekly    Frequency = "biweekly"
	FrequencyMonthly     Frequency = "monthly"
	FrequencyMonthly5th  Frequency = "monthly_5th"
	FrequencyMonthly10th Frequency = "monthly_10th"
	FrequencyMonthly15th Frequency = "monthly_15th"
	FrequencyMonthly20th Frequency = "monthly_20th"
	FrequencyMonthly25th Frequency = "monthly_25th"
	FrequencyMonthlyLast Frequency = "monthly_last"
	FrequencyCustom      Frequency = "custom"
)

// Frequencies lists every accepted frequency, in display order.
var Frequencies = []Frequency{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyMonthly,
	FrequencyMonthly5th,
	FrequencyMonthly10th,
	FrequencyMonthly15th,
	FrequencyMonthly20th,
	FrequencyMonthly25th,
	FrequencyMonthlyLast,
	FrequencyCustom,
}

func (f Frequency) Valid() bool {
	for _, known := range Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// Status is derived from metadata and cancellation, never stored on its own.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

const (
	DefaultMaxRetries = 3
	MaxMaxRetries     = 10

	FailureInsufficientBalance = "insufficient_balance"
	FailureMaxRetriesExceeded  = "max_retries_exceeded"
)

// Target is what a schedule pays: a wallet recipient or a biller account.
// The set of implementations is closed.
type Target interface {
	Kind() Kind
	isTarget()
}

type PaymentTarget struct {
	Recipient string
}

func (PaymentTarget) Kind() Kind { return KindPayment }
func (PaymentTarget) isTarget()  {}

type BillTarget struct {
	BillerService string
	BillersCode   string
}

func (BillTarget) Kind() Kind { return KindBill }
func (BillTarget) isTarget()  {}

// Metadata is the retry/pause state mutated on every tick. It is persisted
// as a single JSON document next to the schedule row.
type Metadata struct {
	RetryCount    int        `json:"retryCount"`
	MaxRetries    int        `json:"maxRetries"`
	LastAttempt   *time.Time `json:"lastAttempt,omitempty"`
	NextAttempt   *time.Time `json:"nextAttempt,omitempty"`
	FailureReason string     `json:"failureReason,omitempty"`
	IsPaused      bool       `json:"isPaused"`
	PausedUntil   *time.Time `json:"pausedUntil,omitempty"`
	Language      Language   `json:"language"`
}

// RetriesExhausted reports the terminal auto-pause. Only an explicit resume
// lifts it.
func (m Metadata) RetriesExhausted() bool {
	return m.IsPaused && m.FailureReason == FailureMaxRetriesExceeded
}

// PauseExpired reports whether a timed pause has run out at now.
// Indefinite pauses and the terminal auto-pause never expire.
func (m Metadata) PauseExpired(now time.Time) bool {
	return m.IsPaused && m.PausedUntil != nil && now.After(*m.PausedUntil) && !m.RetriesExhausted()
}

type Schedule struct {
	ID            string
	WalletAddress string
	Target        Target
	Amount        decimal.Decimal
	Currency      string

	Frequency        Frequency
	CustomCron       string
	CustomDayOfMonth *int
	CronExpr         string

	Metadata Metadata

	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Schedule) Kind() Kind {
	if s.Target == nil {
		return ""
	}
	return s.Target.Kind()
}

func (s *Schedule) Cancelled() bool {
	return s.CancelledAt != nil
}

func (s *Schedule) Status() Status {
	switch {
	case s.Cancelled():
		return StatusCancelled
	case s.Metadata.IsPaused:
		return StatusPaused
	default:
		return StatusActive
	}
}

// CadencePayload is handed to the recurring trigger on registration and
// returned with every tick.
type CadencePayload struct {
	ScheduleID    string `json:"scheduleId"`
	Kind          Kind   `json:"kind"`
	WalletAddress string `json:"walletAddress"`
}

func (s *Schedule) Payload() CadencePayload {
	return CadencePayload{ScheduleID: s.ID, Kind: s.Kind(), WalletAddress: s.WalletAddress}
}
