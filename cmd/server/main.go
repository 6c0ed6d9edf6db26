package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/recurring-payments/config"
	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/email"
	"github.com/ErlanBelekov/recurring-payments/internal/gateway"
	"github.com/ErlanBelekov/recurring-payments/internal/health"
	ctxlog "github.com/ErlanBelekov/recurring-payments/internal/log"
	"github.com/ErlanBelekov/recurring-payments/internal/metrics"
	"github.com/ErlanBelekov/recurring-payments/internal/notify"
	"github.com/ErlanBelekov/recurring-payments/internal/retry"
	"github.com/ErlanBelekov/recurring-payments/internal/scheduler"
	httptransport "github.com/ErlanBelekov/recurring-payments/internal/transport/http"
	"github.com/ErlanBelekov/recurring-payments/internal/transport/http/handler"
	"github.com/ErlanBelekov/recurring-payments/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer st.close()
	logger.Info("store ready", "driver", st.driver)

	metrics.Register()
	metrics.StartTime.SetToCurrentTime()

	// Wallet gateway
	gw := gateway.New(gateway.Config{
		BaseURL: cfg.WalletGatewayURL,
		APIKey:  cfg.WalletGatewayAPIKey,
		Timeout: cfg.CollaboratorTimeout(),
	}, logger)

	// Notifications
	notifier := notify.NewNotifier(
		telegramChannel(cfg, logger),
		notify.NewEmailChannel(email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)),
		cfg.CollaboratorTimeout(),
		logger,
	)

	// Execution
	policy := retry.DefaultPolicy()
	processor := scheduler.NewProcessor(st.schedules, gw, gw, gw, notifier, scheduler.ProcessorConfig{
		Timeout:     cfg.CollaboratorTimeout(),
		ExplorerURL: cfg.ExplorerTxURL,
		Policy:      policy,
	}, logger)
	processor.SetHistory(st.executions)

	trigger := scheduler.NewCronTrigger(logger)
	processor.SetRetryScheduler(trigger)

	// Schedules
	scheduleUsecase := usecase.NewScheduleUsecase(st.schedules, trigger, usecase.ScheduleConfig{
		DefaultBillCurrency: cfg.DefaultBillCurrency,
		DefaultMaxRetries:   cfg.MaxRetriesDefault,
	}, logger)
	executionUsecase := usecase.NewExecutionUsecase(st.executions)
	scheduleHandler := handler.NewScheduleHandler(scheduleUsecase, processor, executionUsecase, logger)

	restored, err := scheduleUsecase.RestoreCadences(ctx)
	if err != nil {
		logger.Error("restore cadences", "restored", restored, "error", err)
	} else {
		logger.Info("cadences restored", "count", restored)
	}

	sweeper := scheduler.NewSweeper(st.schedules, logger, cfg.SweepInterval())

	checker := health.NewChecker(map[string]health.Pinger{"database": st.pinger}, logger, prometheus.DefaultRegisterer)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, scheduleHandler, []byte(cfg.JWTSecret)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		trigger.Start(gctx, func(ctx context.Context, p domain.CadencePayload) {
			processor.Tick(ctx, p)
		})
		return nil
	})

	g.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		metrics.ShutdownsTotal.Inc()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", "error", err)
		st.close()
		os.Exit(1)
	}
	logger.Info("server shut down")
}

// telegramChannel falls back to logging when no bot token is configured.
func telegramChannel(cfg *config.Config, logger *slog.Logger) notify.Channel {
	if cfg.TelegramBotToken == "" {
		return notify.NewLogChannel("telegram", logger)
	}
	ch, err := notify.NewTelegramChannel(notify.TelegramConfig{
		Token:      cfg.TelegramBotToken,
		RatePerSec: cfg.TelegramRatePerSec,
	})
	if err != nil {
		logger.Error("telegram disabled", "error", err)
		return notify.NewLogChannel("telegram", logger)
	}
	return ch
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
