package standx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"main/internal/model"
	"main/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderValidatesInput(t *testing.T) {
	d := NewDelegator(nil, "", "token")

	_, err := d.NewOrder(context.Background(), PlaceOrderInput{Symbol: "BTC-USD"})
	assert.ErrorIs(t, err, exception.ErrOrderInvalidRequest)

	_, err = d.NewOrder(context.Background(), PlaceOrderInput{
		Symbol: "BTC-USD",
		Side:   model.OrderSideBuy,
		Type:   model.OrderTypeLimit,
		Qty:    "0.004",
	})
	assert.ErrorIs(t, err, exception.ErrOrderInvalidRequest, "limit order without price")
}

func TestCancelOrderRequiresIdentity(t *testing.T) {
	d := NewDelegator(nil, "", "token")

	_, err := d.CancelOrder(context.Background(), 0, "")
	assert.ErrorIs(t, err, exception.ErrOrderMissingIdentity)
}

func TestNewOrderRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/new_order", r.URL.Path)
		require.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":0,"request_id":"req-1","order_id":42}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, "token")
	resp, err := d.NewOrder(context.Background(), PlaceOrderInput{
		Symbol: "BTC-USD",
		Side:   model.OrderSideBuy,
		Type:   model.OrderTypeLimit,
		Qty:    "0.004",
		Price:  "49950.00",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, int64(42), resp.OrderID)
}

func TestQueryOpenOrdersNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "BTC-USD", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"result":[
			{"id":1,"symbol":"BTC-USD","side":"buy","status":"open","qty":"0.004","price":"49950.00"},
			{"id":2,"symbol":"BTC-USD","side":"sell","status":"open","qty":"0.004","price":"50050.00"}
		]}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, "token")
	orders, err := d.QueryOpenOrders(context.Background(), "BTC-USD", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, model.OrderSideBuy, orders[0].Side)
	assert.InDelta(t, 49950.0, orders[0].Price, 1e-9)
	assert.Equal(t, model.OrderSideSell, orders[1].Side)
}

func TestQueryBalanceZeroSnapshotOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"user balance not found"}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, "token")
	balance, err := d.QueryBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.ZeroBalance(), balance)
}

func TestBusinessErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"insufficient margin"}`))
	}))
	defer srv.Close()

	d := NewDelegator(srv.Client(), srv.URL, "token")
	_, err := d.NewOrder(context.Background(), PlaceOrderInput{
		Symbol: "BTC-USD",
		Side:   model.OrderSideSell,
		Type:   model.OrderTypeMarket,
		Qty:    "0.004",
	})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryableClassification(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(&APIError{Status: 400}))
	assert.False(t, isRetryable(context.Canceled))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, isRetryable(&url.Error{Op: "Get", URL: "http://x", Err: errors.New("eof")}))
}

func TestConnectionFailureIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	// Closed immediately so every dial fails.
	addr := srv.URL
	srv.Close()

	d := NewDelegator(&http.Client{}, addr, "token")
	_, err := d.QueryOpenOrders(context.Background(), "BTC-USD", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
}
