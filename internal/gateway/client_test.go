package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/recurring-payments/internal/gateway"
	"github.com/ErlanBelekov/recurring-payments/internal/requestid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, h http.HandlerFunc) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return gateway.New(gateway.Config{BaseURL: srv.URL, APIKey: "secret", Timeout: 2 * time.Second}, logger)
}

func TestQueryBalance(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/wallets/0xA/balances", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "req-7", r.Header.Get(requestid.Header))
		_, _ = w.Write([]byte(`{"balances":{"USDm":"150.25","cUSD":3}}`))
	})

	ctx := requestid.WithRequestID(context.Background(), "req-7")
	balances, err := c.QueryBalance(ctx, "0xA")
	require.NoError(t, err)
	assert.True(t, balances["USDm"].Equal(decimal.RequireFromString("150.25")))
	assert.True(t, balances["cUSD"].Equal(decimal.NewFromInt(3)))
	_, ok := balances["EUR"]
	assert.False(t, ok)
}

func TestExecutePayment(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xA", body["from"])
		assert.Equal(t, "0xB", body["to"])
		assert.Equal(t, "10.5", body["amount"])
		assert.Equal(t, "USDm", body["currency"])
		_, _ = w.Write([]byte(`{"reference":"0xdeadbeef","savings":"1.20"}`))
	})

	receipt, err := c.ExecutePayment(context.Background(), "0xA", "0xB", decimal.RequireFromString("10.5"), "USDm")
	require.NoError(t, err)
	assert.Equal(t, "0xdeadbeef", receipt.Reference)
	require.NotNil(t, receipt.Savings)
	assert.True(t, receipt.Savings.Equal(decimal.RequireFromString("1.2")))
}

func TestExecuteBillPurchase(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/bills", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "electricity", body["billerService"])
		assert.Equal(t, "METER-1", body["billersCode"])
		_, _ = w.Write([]byte(`{"reference":"bill-9"}`))
	})

	receipt, err := c.ExecuteBillPurchase(context.Background(), "0xA", "electricity", "METER-1", decimal.NewFromInt(20))
	require.NoError(t, err)
	assert.Equal(t, "bill-9", receipt.Reference)
	assert.Nil(t, receipt.Savings)
}

func TestResolveContact(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/0xA/contact", r.URL.Path)
		_, _ = w.Write([]byte(`{"phone":"+15550001","telegramChatId":42,"email":"a@example.com"}`))
	})

	contact, err := c.ResolveContact(context.Background(), "0xA")
	require.NoError(t, err)
	assert.Equal(t, "+15550001", contact.Phone)
	assert.Equal(t, int64(42), contact.TelegramChatID)
	assert.Equal(t, "a@example.com", contact.Email)
}

func TestStatusError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient allowance", http.StatusUnprocessableEntity)
	})

	_, err := c.ExecutePayment(context.Background(), "0xA", "0xB", decimal.NewFromInt(1), "USDm")
	var statusErr *gateway.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "insufficient allowance", statusErr.Body)
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	for range 6 {
		_, err := c.QueryBalance(context.Background(), "0xA")
		require.Error(t, err)
	}

	_, err := c.QueryBalance(context.Background(), "0xA")
	assert.True(t, errors.Is(err, gateway.ErrUnavailable), "expected open breaker, got %v", err)
	assert.Equal(t, int32(6), hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for range 10 {
		_, err := c.ResolveContact(context.Background(), "0xA")
		var statusErr *gateway.StatusError
		require.ErrorAs(t, err, &statusErr)
	}
}
