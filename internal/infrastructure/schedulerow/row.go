// Package schedulerow flattens the Schedule aggregate into the column set
// shared by the SQL stores.
package schedulerow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/shopspring/decimal"
)

type Row struct {
	ID               string
	Kind             string
	WalletAddress    string
	Recipient        *string
	BillerService    *string
	BillersCode      *string
	Amount           string
	Currency         string
	Frequency        string
	CustomCron       *string
	CustomDayOfMonth *int
	CronExpr         string
	Metadata         []byte
	CancelledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func FromDomain(s *domain.Schedule) (Row, error) {
	meta, err := json.Marshal(s.Metadata)
	if err != nil {
		return Row{}, fmt.Errorf("marshal metadata: %w", err)
	}

	r := Row{
		ID:               s.ID,
		Kind:             string(s.Kind()),
		WalletAddress:    s.WalletAddress,
		Amount:           s.Amount.String(),
		Currency:         s.Currency,
		Frequency:        string(s.Frequency),
		CustomDayOfMonth: s.CustomDayOfMonth,
		CronExpr:         s.CronExpr,
		Metadata:         meta,
		CancelledAt:      s.CancelledAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
	if s.CustomCron != "" {
		r.CustomCron = &s.CustomCron
	}

	switch t := s.Target.(type) {
	case domain.PaymentTarget:
		r.Recipient = &t.Recipient
	case domain.BillTarget:
		r.BillerService = &t.BillerService
		r.BillersCode = &t.BillersCode
	default:
		return Row{}, fmt.Errorf("schedule %s has no target", s.ID)
	}
	return r, nil
}

func (r Row) ToDomain() (*domain.Schedule, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", r.Amount, err)
	}

	var meta domain.Metadata
	if err := json.Unmarshal(r.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	s := &domain.Schedule{
		ID:               r.ID,
		WalletAddress:    r.WalletAddress,
		Amount:           amount,
		Currency:         r.Currency,
		Frequency:        domain.Frequency(r.Frequency),
		CustomDayOfMonth: r.CustomDayOfMonth,
		CronExpr:         r.CronExpr,
		Metadata:         meta,
		CancelledAt:      r.CancelledAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.CustomCron != nil {
		s.CustomCron = *r.CustomCron
	}

	switch domain.Kind(r.Kind) {
	case domain.KindPayment:
		s.Target = domain.PaymentTarget{Recipient: deref(r.Recipient)}
	case domain.KindBill:
		s.Target = domain.BillTarget{BillerService: deref(r.BillerService), BillersCode: deref(r.BillersCode)}
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", r.Kind)
	}
	return s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
