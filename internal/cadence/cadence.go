// Package cadence maps schedule frequencies to cron expressions and parses
// those expressions, including the "L" (last day of month) day-of-month token.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/robfig/cron/v3"
)

// LastDayToken in the day-of-month field fires on the month's final day.
const LastDayToken = "L"

const dayOfMonthField = 2

var fixed = map[domain.Frequency]string{
	domain.FrequencyDaily:       "0 0 * * *",
	domain.FrequencyWeekly:      "0 0 * * 0",
	domain.FrequencyBiweekly:    "0 0 */14 * *",
	domain.FrequencyMonthly:     "0 0 1 * *",
	domain.FrequencyMonthly5th:  "0 0 5 * *",
	domain.FrequencyMonthly10th: "0 0 10 * *",
	domain.FrequencyMonthly15th: "0 0 15 * *",
	domain.FrequencyMonthly20th: "0 0 20 * *",
	domain.FrequencyMonthly25th: "0 0 25 * *",
	domain.FrequencyMonthlyLast: "0 0 L * *",
}

// Resolve returns the cron expression for a frequency. dayOfMonth, when set,
// replaces the day-of-month field of any non-custom mapping. customCron is
// only consulted (and required) for domain.FrequencyCustom.
func Resolve(freq domain.Frequency, dayOfMonth *int, customCron string) (string, error) {
	if freq == domain.FrequencyCustom {
		if strings.TrimSpace(customCron) == "" {
			return "", domain.NewValidationError("customCron", "required when frequency is custom")
		}
		if err := Validate(customCron); err != nil {
			return "", err
		}
		return customCron, nil
	}

	expr, ok := fixed[freq]
	if !ok {
		return "", domain.NewValidationError("frequency", "unsupported frequency %q", freq)
	}
	if dayOfMonth == nil {
		return expr, nil
	}
	if *dayOfMonth < 1 || *dayOfMonth > 31 {
		return "", domain.NewValidationError("customDayOfMonth", "must be between 1 and 31")
	}

	fields := strings.Fields(expr)
	fields[dayOfMonthField] = strconv.Itoa(*dayOfMonth)
	return strings.Join(fields, " "), nil
}

// Validate checks that expr is a well-formed 5-field cron expression.
func Validate(expr string) error {
	if _, err := Parse(expr); err != nil {
		return domain.NewValidationError("customCron", "%v", err)
	}
	return nil
}

// Parse compiles a standard 5-field expression. Descriptors such as "@daily"
// are rejected so stored expressions always have the same shape.
func Parse(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	dom := fields[dayOfMonthField]
	if dom == LastDayToken {
		fields[dayOfMonthField] = "*"
		inner, err := cron.ParseStandard(strings.Join(fields, " "))
		if err != nil {
			return nil, err
		}
		return lastDaySchedule{inner: inner}, nil
	}
	if strings.Contains(dom, LastDayToken) {
		return nil, fmt.Errorf("%q must be the only day-of-month value", LastDayToken)
	}

	return cron.ParseStandard(expr)
}

// Next returns the first activation of expr strictly after from.
func Next(expr string, from time.Time) (time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next, nil
}

// lastDaySchedule fires on activations of inner that fall on the last day of
// their month. inner has a wildcard day-of-month, so any day-of-week
// restriction still applies.
type lastDaySchedule struct {
	inner cron.Schedule
}

// Ten years of months; inner returns zero time on its own after five.
const maxMonthsScanned = 120

func (s lastDaySchedule) Next(t time.Time) time.Time {
	next := s.inner.Next(t)
	for i := 0; i < maxMonthsScanned && !next.IsZero(); i++ {
		if isLastDayOfMonth(next) {
			return next
		}
		lastDay := time.Date(next.Year(), next.Month()+1, 0, 0, 0, 0, 0, next.Location())
		if lastDay.After(next) {
			next = s.inner.Next(lastDay.Add(-time.Second))
		} else {
			next = s.inner.Next(next)
		}
	}
	return time.Time{}
}

func isLastDayOfMonth(t time.Time) bool {
	return t.AddDate(0, 0, 1).Day() == 1
}
