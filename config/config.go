package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	// postgres://... or sqlite://path/to/file.db
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret string `env:"JWT_SECRET,required" validate:"required,min=32"`

	WalletGatewayURL       string `env:"WALLET_GATEWAY_URL,required" validate:"required,url"`
	WalletGatewayAPIKey    string `env:"WALLET_GATEWAY_API_KEY"      validate:"required_unless=Env local"`
	CollaboratorTimeoutSec int    `env:"COLLABORATOR_TIMEOUT_SEC"    envDefault:"30"  validate:"min=1,max=300"`

	SweepIntervalSec    int    `env:"SWEEP_INTERVAL_SEC"    envDefault:"60"   validate:"min=1,max=3600"`
	MaxRetriesDefault   int    `env:"MAX_RETRIES_DEFAULT"   envDefault:"3"    validate:"min=1,max=10"`
	DefaultBillCurrency string `env:"DEFAULT_BILL_CURRENCY" envDefault:"USDm" validate:"required"`

	TelegramBotToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramRatePerSec int    `env:"TELEGRAM_RATE_PER_SEC" envDefault:"25" validate:"min=1,max=30"`
	ResendAPIKey       string `env:"RESEND_API_KEY"        validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom         string `env:"RESEND_FROM"           validate:"required_if=Env production,required_if=Env staging"`
	ExplorerTxURL      string `env:"EXPLORER_TX_URL"       envDefault:"https://celoscan.io/tx/" validate:"omitempty,url"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutSec) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}
