package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://data/test.db")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("WALLET_GATEWAY_URL", "http://localhost:4000")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.CollaboratorTimeout())
	assert.Equal(t, time.Minute, cfg.SweepInterval())
	assert.Equal(t, 3, cfg.MaxRetriesDefault)
	assert.Equal(t, "USDm", cfg.DefaultBillCurrency)
	assert.Equal(t, "https://celoscan.io/tx/", cfg.ExplorerTxURL)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("WALLET_GATEWAY_URL", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoad_ProductionRequiresResend(t *testing.T) {
	setRequired(t)
	t.Setenv("ENV", "production")
	t.Setenv("WALLET_GATEWAY_API_KEY", "gw-key")

	_, err := config.Load()
	require.Error(t, err)

	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("RESEND_FROM", "noreply@example.com")
	_, err = config.Load()
	assert.NoError(t, err)
}

func TestLoad_MaxRetriesBounds(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_RETRIES_DEFAULT", "11")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}
