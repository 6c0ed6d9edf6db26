// seed inserts a demo wallet's schedules into the local dev database and
// prints a bearer token for that wallet.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/recurring-payments/internal/infrastructure/sqlite"
	"github.com/ErlanBelekov/recurring-payments/internal/repository"
	"github.com/ErlanBelekov/recurring-payments/internal/usecase"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const seedWallet = "0x5eed00000000000000000000000000000000beef"

// noopTrigger lets the usecase validate and persist without a running
// trigger. The server registers every stored cadence when it starts.
type noopTrigger struct{}

func (noopTrigger) Register(context.Context, string, string, domain.CadencePayload) error { return nil }
func (noopTrigger) Deregister(context.Context, string) error { return nil }
func (noopTrigger) UpdatePayload(context.Context, string, domain.CadencePayload) error { return nil }

type paymentSpec struct {
	recipient string
	amount    string
	currency  string
	cadence   usecase.CadenceInput
	language  string
}

var payments = []paymentSpec{
	{"0x1111111111111111111111111111111111111111", "25", "USDm", usecase.CadenceInput{Frequency: domain.FrequencyMonthly}, "en"},
	{"0x2222222222222222222222222222222222222222", "5.50", "USDm", usecase.CadenceInput{Frequency: domain.FrequencyWeekly}, "es"},
	{"0x3333333333333333333333333333333333333333", "100", "cEUR", usecase.CadenceInput{Frequency: domain.FrequencyMonthly15th}, "pt"},
	{"0x4444444444444444444444444444444444444444", "12", "USDm", usecase.CadenceInput{Frequency: domain.FrequencyMonthlyLast}, "fr"},

	// Fires every minute so the processor has something to do right away.
	{"0x5555555555555555555555555555555555555555", "0.01", "USDm", usecase.CadenceInput{Frequency: domain.FrequencyCustom, CustomCron: "* * * * *"}, "en"},
}

type billSpec struct {
	service string
	code    string
	amount  string
	cadence usecase.CadenceInput
}

var bills = []billSpec{
	{"electricity", "METER-0042", "30", usecase.CadenceInput{Frequency: domain.FrequencyMonthly5th}},
	{"airtime", "+2348000000000", "2", usecase.CadenceInput{Frequency: domain.FrequencyBiweekly}},
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set, run: direnv allow")
	}

	repo, closeDB, err := openRepo(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := usecase.NewScheduleUsecase(repo, noopTrigger{}, usecase.ScheduleConfig{
		DefaultBillCurrency: "USDm",
		DefaultMaxRetries:   3,
	}, logger)

	var ids []string
	for _, p := range payments {
		res, err := uc.CreatePaymentSchedule(ctx, usecase.CreatePaymentScheduleInput{
			WalletAddress: seedWallet,
			Recipient:     p.recipient,
			Amount:        decimal.RequireFromString(p.amount),
			Currency:      p.currency,
			Cadence:       p.cadence,
			Language:      p.language,
		})
		if err != nil {
			closeDB()
			log.Fatalf("create payment schedule to %s: %v", p.recipient, err)
		}
		ids = append(ids, res.Schedule.ID)
	}
	for _, b := range bills {
		res, err := uc.CreateBillSchedule(ctx, usecase.CreateBillScheduleInput{
			WalletAddress: seedWallet,
			BillerService: b.service,
			BillersCode:   b.code,
			Amount:        decimal.RequireFromString(b.amount),
			Cadence:       b.cadence,
		})
		if err != nil {
			closeDB()
			log.Fatalf("create bill schedule for %s: %v", b.service, err)
		}
		ids = append(ids, res.Schedule.ID)
	}
	closeDB()

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Wallet:             %s\n", seedWallet)
	fmt.Printf("  Schedules created:  %d\n", len(ids))
	fmt.Println()
	fmt.Println("  Schedule IDs:")
	for _, id := range ids {
		fmt.Printf("    %s\n", id)
	}
	fmt.Println()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("  JWT_SECRET is not set, skipping token.")
		return
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   seedWallet,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	}).SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}

	fmt.Println("How to test:")
	fmt.Println()
	fmt.Printf("    export JWT=%s\n", token)
	fmt.Println()
	fmt.Println("  List the wallet's schedules:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/schedules -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Restart the server so it registers the new cadences, wait a minute, then:")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/schedules/SCHEDULE_ID/executions -H \"Authorization: Bearer $JWT\"")
}

func openRepo(ctx context.Context, dbURL string) (repository.ScheduleRepository, func(), error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if path, ok := strings.CutPrefix(dbURL, sqlite.URLPrefix); ok {
		db, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewScheduleRepository(db, logger), func() { _ = db.Close() }, nil
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return postgres.NewScheduleRepository(pool, logger), pool.Close, nil
}
