package cadence_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/cadence"
	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestResolve_EveryFrequencyYieldsValidCron(t *testing.T) {
	for _, freq := range domain.Frequencies {
		t.Run(string(freq), func(t *testing.T) {
			custom := ""
			if freq == domain.FrequencyCustom {
				custom = "30 9 * * 1-5"
			}
			expr, err := cadence.Resolve(freq, nil, custom)
			require.NoError(t, err)
			assert.Len(t, strings.Fields(expr), 5)

			_, err = cadence.Parse(expr)
			assert.NoError(t, err)
		})
	}
}

func TestResolve_FixedTable(t *testing.T) {
	tests := []struct {
		freq domain.Frequency
		want string
	}{
		{domain.FrequencyDaily, "0 0 * * *"},
		{domain.FrequencyWeekly, "0 0 * * 0"},
		{domain.FrequencyBiweekly, "0 0 */14 * *"},
		{domain.FrequencyMonthly, "0 0 1 * *"},
		{domain.FrequencyMonthly5th, "0 0 5 * *"},
		{domain.FrequencyMonthly15th, "0 0 15 * *"},
		{domain.FrequencyMonthly25th, "0 0 25 * *"},
		{domain.FrequencyMonthlyLast, "0 0 L * *"},
	}
	for _, tt := range tests {
		got, err := cadence.Resolve(tt.freq, nil, "")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.freq)
	}
}

func TestResolve_Monthly15thDayOfMonthField(t *testing.T) {
	expr, err := cadence.Resolve(domain.FrequencyMonthly15th, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "15", strings.Fields(expr)[2])
}

func TestResolve_CustomDayOfMonthOverridesField(t *testing.T) {
	expr, err := cadence.Resolve(domain.FrequencyMonthly, intPtr(28), "")
	require.NoError(t, err)
	assert.Equal(t, "0 0 28 * *", expr)

	expr, err = cadence.Resolve(domain.FrequencyMonthlyLast, intPtr(3), "")
	require.NoError(t, err)
	assert.Equal(t, "0 0 3 * *", expr)
}

func TestResolve_CustomDayOfMonthOutOfRange(t *testing.T) {
	_, err := cadence.Resolve(domain.FrequencyMonthly, intPtr(32), "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestResolve_CustomIgnoresDayOfMonth(t *testing.T) {
	expr, err := cadence.Resolve(domain.FrequencyCustom, intPtr(3), "15 8 * * *")
	require.NoError(t, err)
	assert.Equal(t, "15 8 * * *", expr)
}

func TestResolve_CustomRequiresExpression(t *testing.T) {
	_, err := cadence.Resolve(domain.FrequencyCustom, nil, "  ")

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "customCron", verr.Field)
}

func TestResolve_CustomRejectsMalformed(t *testing.T) {
	for _, expr := range []string{"* * *", "@daily", "61 * * * *", "0 0 1,L * *", "0 0 * * * *"} {
		_, err := cadence.Resolve(domain.FrequencyCustom, nil, expr)
		assert.ErrorIs(t, err, domain.ErrValidation, expr)
	}
}

func TestResolve_UnknownFrequency(t *testing.T) {
	_, err := cadence.Resolve("fortnightly", nil, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNext_LastDayOfMonth(t *testing.T) {
	from := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)

	next, err := cadence.Next("0 0 L * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC), next)

	next, err = cadence.Next("0 0 L * *", next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC), next)
}

func TestNext_LastDayLeapYear(t *testing.T) {
	from := time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC)

	next, err := cadence.Next("30 6 L * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2028, time.February, 29, 6, 30, 0, 0, time.UTC), next)
}

func TestNext_LastDayWithWeekday(t *testing.T) {
	// The first month after Jan 2026 whose last day is a Friday is July 2026.
	from := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	next, err := cadence.Next("0 0 L * 5", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.July, 31, 0, 0, 0, 0, time.UTC), next)
}

func TestNext_Monthly15th(t *testing.T) {
	from := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

	next, err := cadence.Next("0 0 15 * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.November, 15, 0, 0, 0, 0, time.UTC), next)
}
