// Package gateway talks to the wallet service that holds user balances,
// signs transfers and knows how to reach wallet owners. Every call goes
// through one circuit breaker so a failing gateway sheds load quickly.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/domain"
	"github.com/ErlanBelekov/recurring-payments/internal/requestid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx answer from the gateway.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Body)
}

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("wallet gateway unavailable")

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	logger = logger.With("component", "wallet_gateway")

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "wallet-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// 4xx is the caller's fault, not a sign the gateway is down.
		IsSuccessful: func(err error) bool {
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		http:    &http.Client{}, // per-call timeouts come from the context
		breaker: breaker,
		logger:  logger,
	}
}

type balancesResponse struct {
	Balances map[string]decimal.Decimal `json:"balances"`
}

// QueryBalance returns the wallet's balance per currency. A currency the
// wallet has never held is simply absent.
func (c *Client) QueryBalance(ctx context.Context, walletAddress string) (map[string]decimal.Decimal, error) {
	var resp balancesResponse
	if err := c.do(ctx, http.MethodGet, "/v1/wallets/"+url.PathEscape(walletAddress)+"/balances", nil, &resp); err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	if resp.Balances == nil {
		resp.Balances = map[string]decimal.Decimal{}
	}
	return resp.Balances, nil
}

type paymentRequest struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type billRequest struct {
	From          string          `json:"from"`
	BillerService string          `json:"billerService"`
	BillersCode   string          `json:"billersCode"`
	Amount        decimal.Decimal `json:"amount"`
}

type receiptResponse struct {
	Reference string           `json:"reference"`
	Savings   *decimal.Decimal `json:"savings,omitempty"`
}

func (c *Client) ExecutePayment(ctx context.Context, walletAddress, recipient string, amount decimal.Decimal, currency string) (domain.Receipt, error) {
	var resp receiptResponse
	err := c.do(ctx, http.MethodPost, "/v1/payments", paymentRequest{
		From:     walletAddress,
		To:       recipient,
		Amount:   amount,
		Currency: currency,
	}, &resp)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("execute payment: %w", err)
	}
	return domain.Receipt{Reference: resp.Reference, Savings: resp.Savings}, nil
}

func (c *Client) ExecuteBillPurchase(ctx context.Context, walletAddress, billerService, billersCode string, amount decimal.Decimal) (domain.Receipt, error) {
	var resp receiptResponse
	err := c.do(ctx, http.MethodPost, "/v1/bills", billRequest{
		From:          walletAddress,
		BillerService: billerService,
		BillersCode:   billersCode,
		Amount:        amount,
	}, &resp)
	if err != nil {
		return domain.Receipt{}, fmt.Errorf("execute bill purchase: %w", err)
	}
	return domain.Receipt{Reference: resp.Reference, Savings: resp.Savings}, nil
}

type contactResponse struct {
	Phone          string `json:"phone"`
	TelegramChatID int64  `json:"telegramChatId"`
	Email          string `json:"email"`
}

func (c *Client) ResolveContact(ctx context.Context, walletAddress string) (domain.Contact, error) {
	var resp contactResponse
	if err := c.do(ctx, http.MethodGet, "/v1/wallets/"+url.PathEscape(walletAddress)+"/contact", nil, &resp); err != nil {
		return domain.Contact{}, fmt.Errorf("resolve contact: %w", err)
	}
	return domain.Contact{Phone: resp.Phone, TelegramChatID: resp.TelegramChatID, Email: resp.Email}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = b
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if id := requestid.FromContext(ctx); id != "" {
			req.Header.Set(requestid.Header, id)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
