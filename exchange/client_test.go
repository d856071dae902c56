package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *APIClient {
	return NewAPIClient("test-key", "test-secret", serverURL, 5, 5)
}

// verifySignature recomputes the HMAC over the query string minus the
// signature parameter, the way the venue validates it.
func verifySignature(t *testing.T, r *http.Request, secret string) {
	t.Helper()

	query := r.URL.Query()
	gotSig := query.Get("signature")
	require.NotEmpty(t, gotSig, "request must be signed")
	query.Del("signature")

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(query.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestAPIClient_PlaceOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MEXC-APIKEY"))
		verifySignature(t, r, "test-secret")

		query := r.URL.Query()
		assert.Equal(t, "BTCUSDT", query.Get("symbol"))
		assert.Equal(t, "BUY", query.Get("side"))
		assert.Equal(t, "MARKET", query.Get("type"))
		assert.Equal(t, "0.01", query.Get("quantity"))
		assert.NotEmpty(t, query.Get("newClientOrderId"))
		assert.NotEmpty(t, query.Get("timestamp"))
		assert.NotEmpty(t, query.Get("recvWindow"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orderId": 12345, "symbol": "BTCUSDT", "side": "BUY", "type": "MARKET", "status": "FILLED", "executedQty": "0.01", "avgPrice": "50000.5"}`))
	}))
	defer server.Close()

	order, err := newTestClient(server.URL).PlaceOrder(context.Background(), &OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     Buy,
		Type:     Market,
		Quantity: 0.01,
	})
	require.NoError(t, err)

	assert.Equal(t, "12345", order.OrderID)
	assert.Equal(t, "FILLED", order.Status)
	assert.Equal(t, "50000.5", order.AvgPrice)
}

func TestAPIClient_PlaceOrder_StopMarketCarriesStopPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		assert.Equal(t, "STOP_MARKET", query.Get("type"))
		assert.Equal(t, "49000", query.Get("stopPrice"))
		assert.Empty(t, query.Get("price"))

		_, _ = w.Write([]byte(`{"orderId": 2, "status": "NEW"}`))
	}))
	defer server.Close()

	order, err := newTestClient(server.URL).PlaceOrder(context.Background(), &OrderRequest{
		Symbol:    "BTCUSDT",
		Side:      Sell,
		Type:      StopMarket,
		Quantity:  0.01,
		StopPrice: 49000,
	})
	require.NoError(t, err)
	assert.Equal(t, "2", order.OrderID)
}

func TestAPIClient_PlaceOrder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": -2010, "msg": "Account has insufficient balance"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).PlaceOrder(context.Background(), &OrderRequest{
		Symbol:   "BTCUSDT",
		Side:     Buy,
		Type:     Market,
		Quantity: 100,
	})

	var vErr *VenueError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "MEXC", vErr.Venue)
	assert.Equal(t, "/api/v3/order", vErr.Endpoint)
	assert.Contains(t, vErr.Error(), "insufficient balance")
	assert.Contains(t, vErr.Error(), "-2010")
}

func TestAPIClient_GetMarkPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/premiumIndex", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol": "ETHUSDT", "markPrice": "3201.42"}`))
	}))
	defer server.Close()

	price, err := newTestClient(server.URL).GetMarkPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 3201.42, price, 1e-9)
}

func TestAPIClient_GetMarkPrice_Unparsable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"markPrice": "not-a-number"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetMarkPrice(context.Background(), "ETHUSDT")
	var vErr *VenueError
	assert.ErrorAs(t, err, &vErr)
}

func TestAPIClient_SetLeverage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/leverage", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("leverage"))
		verifySignature(t, r, "test-secret")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).SetLeverage(context.Background(), "BTCUSDT", 10)
	assert.NoError(t, err)
}

func TestAPIClient_CancelOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "12345", r.URL.Query().Get("orderId"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).CancelOrder(context.Background(), "BTCUSDT", "12345")
	assert.NoError(t, err)
}

func TestAPIClient_GetAccountInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"balances": [{"asset": "USDT", "free": "1234.5", "locked": "10"}, {"asset": "BTC", "free": "0.5", "locked": "0"}]}`))
	}))
	defer server.Close()

	info, err := newTestClient(server.URL).GetAccountInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, info.Balances, 2)
	assert.InDelta(t, 1234.5, info.FreeBalance("USDT"), 1e-9)
	assert.Zero(t, info.FreeBalance("DOGE"))
}

func TestAPIClient_SyncTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/time", r.URL.Path)
		_, _ = w.Write([]byte(`{"serverTime": 1700000000000}`))
	}))
	defer server.Close()

	err := newTestClient(server.URL).SyncTime()
	assert.NoError(t, err)
}

func TestAPIClient_GetKlines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		query := r.URL.Query()
		assert.Equal(t, "BTCUSDT", query.Get("symbol"))
		assert.Equal(t, "1h", query.Get("interval"))
		// Public endpoint, no signature.
		assert.Empty(t, query.Get("signature"))

		_, _ = w.Write([]byte(`[
			[1700000000000, "100.0", "105.0", "99.0", "104.0", "1200.5", 1700003599999],
			[1700003600000, "104.0", "110.0", "103.0", "108.0", "900.2", 1700007199999]
		]`))
	}))
	defer server.Close()

	klines, err := newTestClient(server.URL).GetKlines(context.Background(), "BTCUSDT", "1h", 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	assert.Equal(t, int64(1700000000000), klines[0].OpenTime)
	assert.InDelta(t, 100.0, klines[0].Open, 1e-9)
	assert.InDelta(t, 105.0, klines[0].High, 1e-9)
	assert.InDelta(t, 99.0, klines[0].Low, 1e-9)
	assert.InDelta(t, 104.0, klines[0].Close, 1e-9)
	assert.InDelta(t, 108.0, klines[1].Close, 1e-9)
}
