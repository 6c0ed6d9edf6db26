package schedulerow_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/schedulerow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDomain_BillColumns(t *testing.T) {
	until := time.Date(2026, time.December, 1, 0, 0, 0, 0, time.UTC)
	s := &domain.Schedule{
		ID:            "s-1",
		WalletAddress: "0xabc",
		Target:        domain.BillTarget{BillerService: "mtn-data", BillersCode: "08011111111"},
		Amount:        decimal.RequireFromString("12.50"),
		Currency:      "USDm",
		Frequency:     domain.FrequencyMonthlyLast,
		CronExpr:      "0 0 L * *",
		Metadata:      domain.Metadata{MaxRetries: 3, IsPaused: true, PausedUntil: &until, Language: domain.LanguageSpanish},
	}

	r, err := schedulerow.FromDomain(s)
	require.NoError(t, err)
	assert.Equal(t, "bill", r.Kind)
	assert.Nil(t, r.Recipient)
	assert.Nil(t, r.CustomCron)
	require.NotNil(t, r.BillersCode)
	assert.Equal(t, "08011111111", *r.BillersCode)
	assert.Equal(t, "12.5", r.Amount)

	back, err := r.ToDomain()
	require.NoError(t, err)
	assert.Equal(t, s.Target, back.Target)
	assert.True(t, s.Amount.Equal(back.Amount))
	assert.Equal(t, domain.StatusPaused, back.Status())
	require.NotNil(t, back.Metadata.PausedUntil)
	assert.True(t, until.Equal(*back.Metadata.PausedUntil))
}

func TestFromDomain_MissingTarget(t *testing.T) {
	_, err := schedulerow.FromDomain(&domain.Schedule{ID: "s-1"})
	assert.Error(t, err)
}

func TestToDomain_UnknownKind(t *testing.T) {
	_, err := schedulerow.Row{Kind: "transfer", Amount: "1", Metadata: []byte(`{}`)}.ToDomain()
	assert.Error(t, err)
}
