// exchange/client.go
package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"signal_trader_go/logs"

	"github.com/google/uuid"
)

// Ensure APIClient implements the Adapter interface.
var _ Adapter = (*APIClient)(nil)

// APIClient talks to a MEXC-style REST API. All signed endpoints use
// HMAC-SHA256 over the encoded query string with timestamp and recvWindow
// parameters appended.
type APIClient struct {
	ApiKey     string
	ApiSecret  string
	BaseURL    string
	Http       *http.Client
	timeOffset int64 // Difference between server time and local time
	recvWindow int64 // Request valid window (milliseconds)
	mu         sync.Mutex
}

// mexcError is the API error response body.
type mexcError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// orderResponse is the wire shape of an order; order IDs arrive as numbers.
type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	PositionSide  string `json:"positionSide"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
}

// NewAPIClient creates a new API client instance.
func NewAPIClient(apiKey, apiSecret, baseURL string, timeoutSeconds, recvWindowSeconds int) *APIClient {
	return &APIClient{
		ApiKey:     apiKey,
		ApiSecret:  apiSecret,
		BaseURL:    baseURL,
		Http:       &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		timeOffset: 0,
		recvWindow: int64(recvWindowSeconds * 1000),
	}
}

// Name returns the venue identifier.
func (c *APIClient) Name() string { return "MEXC" }

// SupportsLeverage reports that the margin venue can take leveraged positions.
func (c *APIClient) SupportsLeverage() bool { return true }

// SyncTime synchronizes with the server clock and stores the offset.
func (c *APIClient) SyncTime() error {
	resp, err := c.Http.Get(c.BaseURL + "/api/v3/time")
	if err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: "/api/v3/time", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: "/api/v3/time", Err: err}
	}
	if resp.StatusCode >= 400 {
		return &VenueError{Venue: c.Name(), Endpoint: "/api/v3/time",
			Err: fmt.Errorf("HTTP %d, body: %s", resp.StatusCode, string(body))}
	}

	var timeResp serverTimeResponse
	if err := json.Unmarshal(body, &timeResp); err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: "/api/v3/time",
			Err: fmt.Errorf("failed to parse server time: %w", err)}
	}

	c.mu.Lock()
	c.timeOffset = timeResp.ServerTime - time.Now().UnixMilli()
	offset := c.timeOffset
	c.mu.Unlock()

	logs.Infof("[API Client] Time synchronization completed, offset: %d ms", offset)
	return nil
}

// sendRequest signs and sends a request, decoding the response into target.
func (c *APIClient) sendRequest(ctx context.Context, method, endpoint string, params url.Values, target interface{}) error {
	// Serialize requests through this client instance; the signed timestamp
	// and the shared connection pool are not safe to race on.
	c.mu.Lock()
	defer c.mu.Unlock()

	timestamp := time.Now().UnixMilli() + c.timeOffset
	params.Set("timestamp", strconv.FormatInt(timestamp, 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))

	// The signature covers exactly the encoded query string; all parameters
	// travel in the URL, the body stays empty.
	queryString := params.Encode()
	mac := hmac.New(sha256.New, []byte(c.ApiSecret))
	_, _ = mac.Write([]byte(queryString))
	signature := hex.EncodeToString(mac.Sum(nil))

	fullURL := fmt.Sprintf("%s%s?%s&signature=%s", c.BaseURL, endpoint, queryString, signature)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: endpoint, Err: err}
	}
	if method == http.MethodPost || method == http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("X-MEXC-APIKEY", c.ApiKey)

	resp, err := c.Http.Do(req)
	if err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &VenueError{Venue: c.Name(), Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode >= 400 {
		var errResp mexcError
		if json.Unmarshal(body, &errResp) == nil && errResp.Msg != "" {
			return &VenueError{Venue: c.Name(), Endpoint: endpoint,
				Err: fmt.Errorf("API error: %s (code: %d)", errResp.Msg, errResp.Code)}
		}
		return &VenueError{Venue: c.Name(), Endpoint: endpoint,
			Err: fmt.Errorf("API error: HTTP %d, body: %s", resp.StatusCode, string(body))}
	}

	if target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return &VenueError{Venue: c.Name(), Endpoint: endpoint,
				Err: fmt.Errorf("failed to decode JSON: %w, body: %s", err, string(body))}
		}
	}

	return nil
}

// isTimeout reports whether err looks like a network timeout.
func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// PlaceOrder submits a new order. A network timeout is retried once before
// being surfaced as fatal for this attempt.
func (c *APIClient) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", string(req.Type))
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("newClientOrderId", req.ClientOrderID)
	if req.PositionSide != "" {
		params.Set("positionSide", string(req.PositionSide))
	}
	if req.Type == Limit {
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	}
	if req.Type == StopMarket || req.Type == TakeProfitMarket {
		params.Set("stopPrice", strconv.FormatFloat(req.StopPrice, 'f', -1, 64))
	}

	var resp orderResponse
	err := c.sendRequest(ctx, http.MethodPost, "/api/v3/order", cloneValues(params), &resp)
	if err != nil && isTimeout(err) {
		logs.Warnf("[API Client] Order placement timed out for %s, retrying once...", req.Symbol)
		err = c.sendRequest(ctx, http.MethodPost, "/api/v3/order", cloneValues(params), &resp)
	}
	if err != nil {
		return nil, err
	}
	return resp.toOrder(), nil
}

// CancelOrder cancels an active order.
func (c *APIClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	return c.sendRequest(ctx, http.MethodDelete, "/api/v3/order", params, nil)
}

// GetMarkPrice returns the current mark price for a symbol.
func (c *APIClient) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var data struct {
		MarkPrice string `json:"markPrice"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v3/premiumIndex", params, &data); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(data.MarkPrice, 64)
	if err != nil {
		return 0, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/premiumIndex",
			Err: fmt.Errorf("unparsable mark price %q: %w", data.MarkPrice, err)}
	}
	return price, nil
}

// SetLeverage sets the leverage multiple for a symbol.
func (c *APIClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))
	return c.sendRequest(ctx, http.MethodPost, "/api/v3/leverage", params, nil)
}

// GetAccountInfo returns the account balances.
func (c *APIClient) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Kline is one historical candle as returned by the klines endpoint.
type Kline struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// GetKlines fetches historical candles for backtesting. The endpoint is
// public, so the request is unsigned.
func (c *APIClient) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]Kline, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if startTime > 0 {
		params.Set("startTime", strconv.FormatInt(startTime, 10))
	}
	if endTime > 0 {
		params.Set("endTime", strconv.FormatInt(endTime, 10))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	fullURL := fmt.Sprintf("%s/api/v3/klines?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/klines", Err: err}
	}

	resp, err := c.Http.Do(req)
	if err != nil {
		return nil, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/klines", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/klines", Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/klines",
			Err: fmt.Errorf("HTTP %d, body: %s", resp.StatusCode, string(body))}
	}

	// Each row is [openTime, open, high, low, close, volume, ...], with the
	// price fields encoded as strings.
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &VenueError{Venue: c.Name(), Endpoint: "/api/v3/klines",
			Err: fmt.Errorf("failed to decode klines: %w", err)}
	}

	klines := make([]Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		k := Kline{}
		if t, ok := row[0].(float64); ok {
			k.OpenTime = int64(t)
		}
		k.Open = parseKlineField(row[1])
		k.High = parseKlineField(row[2])
		k.Low = parseKlineField(row[3])
		k.Close = parseKlineField(row[4])
		k.Volume = parseKlineField(row[5])
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKlineField(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	case float64:
		return x
	}
	return 0
}

func (r *orderResponse) toOrder() *Order {
	return &Order{
		OrderID:       strconv.FormatInt(r.OrderID, 10),
		ClientOrderID: r.ClientOrderID,
		Symbol:        r.Symbol,
		Side:          OrderSide(r.Side),
		Type:          OrderType(r.Type),
		Status:        r.Status,
		PositionSide:  PositionSide(r.PositionSide),
		ExecutedQty:   r.ExecutedQty,
		AvgPrice:      r.AvgPrice,
	}
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
