package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_trader_go/backtest"
	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/risk"
	"signal_trader_go/signal"
	"signal_trader_go/swap"
	"signal_trader_go/trader"
)

func testConfig() *config.Config {
	return &config.Config{
		Risk: &config.RiskConfig{
			MaxPositionSize:      1000,
			MaxLeverage:          10,
			DefaultStopLossPct:   2.0,
			DefaultTakeProfitPct: 6.0,
			MaxDailyDrawdownPct:  5.0,
			MaxTotalRiskPct:      10.0,
		},
		Normal: &config.NormalConfig{PricePrecision: 2},
		Swap:   &config.SwapConfig{StableToken: "USDC"},
		Signal: &config.SignalConfig{DefaultQuantity: 0.01, QuoteAsset: "USDT"},
		Server: &config.ServerConfig{ListenAddr: ":0"},
	}
}

type fixture struct {
	margin   *exchange.MockAdapter
	swapper  *swap.MockSwapper
	ledger   *risk.Ledger
	trader   *trader.Trader
	registry *signal.ChannelRegistry
	server   *Server
}

func newFixture(t *testing.T, history backtest.HistoryProvider) *fixture {
	t.Helper()
	cfg := testConfig()

	margin := exchange.NewMockAdapter("MEXC")
	swapper := swap.NewMockSwapper()
	ledger := risk.NewLedger(cfg.Risk)
	tr := trader.New(margin, swapper, ledger, cfg)

	registry, err := signal.NewChannelRegistry(filepath.Join(t.TempDir(), "channels.json"))
	require.NoError(t, err)
	dispatcher := signal.NewDispatcher(registry, signal.NewParser(cfg.Signal), tr)

	return &fixture{
		margin:   margin,
		swapper:  swapper,
		ledger:   ledger,
		trader:   tr,
		registry: registry,
		server:   NewServer(cfg.Server, tr, ledger, registry, dispatcher, history),
	}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Status(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "running", body["status"])
	assert.EqualValues(t, 0, body["openPositions"])
}

func TestServer_ChannelLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/channels", map[string]string{"channelId": "chan-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.registry.Contains("chan-1"))

	rec = f.do(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, []string{"chan-1"}, listing["monitoredChannels"])

	rec = f.do(t, http.MethodDelete, "/api/channels/chan-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.registry.Contains("chan-1"))
}

func TestServer_AddChannelRequiresID(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/channels", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SignalWebhook_ExecutesTrade(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.registry.Add("chan-1"))
	f.margin.SetMarkPrice("BTCUSDT", 50000)

	rec := f.do(t, http.MethodPost, "/api/signal", map[string]string{
		"channelId": "chan-1",
		"text":      "LONG: BTC Entry: 50000 Leverage: 5x",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result trader.TradeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "MEXC", result.Platform)
	assert.Contains(t, f.trader.ActivePositions(), "BTCUSDT")
}

func TestServer_SignalWebhook_IgnoresUnmonitoredChannel(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/signal", map[string]string{
		"channelId": "chan-9",
		"text":      "LONG: BTC Entry: 50000 Leverage: 5x",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ignored", body["status"])
	assert.Empty(t, f.trader.ActivePositions())
}

func TestServer_SignalWebhook_RiskDenied(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.registry.Add("chan-1"))
	f.margin.SetMarkPrice("BTCUSDT", 50000)

	rec := f.do(t, http.MethodPost, "/api/signal", map[string]string{
		"channelId": "chan-1",
		"text":      "LONG: BTC Entry: 50000 Leverage: 50x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Leverage 50x")
}

func TestServer_ClosePosition(t *testing.T) {
	f := newFixture(t, nil)
	f.margin.SetMarkPrice("BTCUSDT", 50000)

	_, err := f.trader.OpenLeveragedPosition(context.Background(), "BTCUSDT", exchange.Long, 0.01, 5, 0, 0)
	require.NoError(t, err)

	f.margin.SetMarkPrice("BTCUSDT", 51000)
	rec := f.do(t, http.MethodPost, "/api/positions/BTCUSDT/close", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result trader.CloseResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 10.0, result.RealizedPnL, 1e-9)
	assert.Empty(t, f.trader.ActivePositions())
}

func TestServer_ClosePosition_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/positions/BTCUSDT/close", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Positions(t *testing.T) {
	f := newFixture(t, nil)
	f.margin.SetMarkPrice("ETHUSDT", 2000)

	_, err := f.trader.OpenLeveragedPosition(context.Background(), "ETHUSDT", exchange.Long, 0.5, 3, 0, 0)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var positions map[string]trader.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Contains(t, positions, "ETHUSDT")
	assert.InDelta(t, 2000, positions["ETHUSDT"].EntryPrice, 1e-9)
}

func TestServer_Backtest_WithoutProvider(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/backtest", backtest.RunConfig{
		Pairs:          []string{"BTCUSDT"},
		InitialCapital: 10000,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type staticHistory struct {
	candles []exchange.Kline
}

func (s *staticHistory) GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]exchange.Kline, error) {
	return s.candles, nil
}

func TestServer_Backtest(t *testing.T) {
	candles := make([]exchange.Kline, 40)
	for i := range candles {
		candles[i] = exchange.Kline{
			OpenTime: int64(i) * 3600000,
			Open:     100, High: 100, Low: 100, Close: 100,
		}
	}
	f := newFixture(t, &staticHistory{candles: candles})

	rec := f.do(t, http.MethodPost, "/api/backtest", backtest.RunConfig{
		Pairs:          []string{"BTCUSDT"},
		InitialCapital: 10000,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var summary backtest.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Zero(t, summary.TotalTrades)
	assert.Len(t, summary.EquityCurve, 40)
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSweepPositions_RatchetsStopToBreakeven(t *testing.T) {
	f := newFixture(t, nil)
	f.margin.SetMarkPrice("BTCUSDT", 50000)

	pos, err := f.trader.OpenLeveragedPosition(context.Background(), "BTCUSDT", exchange.Long, 0.01, 5, 0, 0)
	require.NoError(t, err)
	oldStopID := pos.StopOrderID

	// +3% puts the position past the breakeven trigger.
	f.margin.SetMarkPrice("BTCUSDT", 51500)
	sweepPositions(f.margin, f.trader, f.ledger)

	updated := f.trader.ActivePositions()["BTCUSDT"]
	assert.InDelta(t, 50000, updated.StopLoss, 1e-9)
	assert.True(t, f.margin.Cancelled(oldStopID))

	// A second sweep at the same level leaves the stop alone.
	orders := len(f.margin.Orders())
	sweepPositions(f.margin, f.trader, f.ledger)
	assert.Len(t, f.margin.Orders(), orders)
}

func TestSweepPositions_BelowTriggerLeavesStop(t *testing.T) {
	f := newFixture(t, nil)
	f.margin.SetMarkPrice("BTCUSDT", 50000)

	_, err := f.trader.OpenLeveragedPosition(context.Background(), "BTCUSDT", exchange.Long, 0.01, 5, 0, 0)
	require.NoError(t, err)

	f.margin.SetMarkPrice("BTCUSDT", 50500) // +1%, under the trigger
	sweepPositions(f.margin, f.trader, f.ledger)

	updated := f.trader.ActivePositions()["BTCUSDT"]
	assert.InDelta(t, 49000, updated.StopLoss, 1e-9)
}
