// Package backtest replays historical price series through the same sizing
// formula the live trader uses and aggregates summary statistics. It is a
// consumer of the risk ledger's sizing, not a statistics engine.
package backtest

import (
	"context"
	"fmt"

	"signal_trader_go/exchange"
	"signal_trader_go/logs"
	"signal_trader_go/risk"
)

// HistoryProvider supplies historical candles. exchange.APIClient satisfies
// it in live wiring; tests feed slices.
type HistoryProvider interface {
	GetKlines(ctx context.Context, symbol, interval string, startTime, endTime int64, limit int) ([]exchange.Kline, error)
}

// Trade is one simulated round trip.
type Trade struct {
	Pair       string  `json:"pair"`
	EntryTime  int64   `json:"entryTime"`
	ExitTime   int64   `json:"exitTime"`
	EntryPrice float64 `json:"entryPrice"`
	ExitPrice  float64 `json:"exitPrice"`
	Size       float64 `json:"size"`
	PnL        float64 `json:"pnl"`
}

// EquityPoint is one sample of the simulated equity curve.
type EquityPoint struct {
	Time   int64   `json:"time"`
	Equity float64 `json:"equity"`
}

// Result is the outcome of simulating a single price series.
type Result struct {
	Trades      []Trade
	EquityCurve []EquityPoint
	TotalReturn float64
}

// RunConfig describes an aggregate backtest run.
type RunConfig struct {
	Pairs          []string `json:"pairs"`
	Interval       string   `json:"interval"`
	StartTime      int64    `json:"startTime"`
	EndTime        int64    `json:"endTime"`
	InitialCapital float64  `json:"initialCapital"`
}

// Summary aggregates per-pair simulations.
type Summary struct {
	TotalTrades   int           `json:"totalTrades"`
	WinningTrades int           `json:"winningTrades"`
	WinRate       float64       `json:"winRate"`
	TotalPnL      float64       `json:"totalPnL"`
	AveragePnL    float64       `json:"averagePnL"`
	Trades        []Trade       `json:"trades"`
	EquityCurve   []EquityPoint `json:"equityCurve"`
}

const (
	fastWindow = 10
	slowWindow = 30
)

// sma returns the simple moving average of the last window closes ending at
// index i, or 0 when not enough data exists yet.
func sma(candles []exchange.Kline, i, window int) float64 {
	if i+1 < window {
		return 0
	}
	var sum float64
	for j := i + 1 - window; j <= i; j++ {
		sum += candles[j].Close
	}
	return sum / float64(window)
}

// Simulate replays one candle series: long entries on a fast/slow SMA cross,
// exits on the stop or target produced by the ledger's sizing formula, and
// a final liquidation at the last close.
func Simulate(candles []exchange.Kline, initialCapital float64, ledger *risk.Ledger) Result {
	result := Result{}
	equity := initialCapital

	var open *Trade
	var stop, target float64

	for i := range candles {
		c := candles[i]

		if open != nil {
			exitPrice := 0.0
			switch {
			case c.Low <= stop:
				exitPrice = stop
			case c.High >= target:
				exitPrice = target
			}
			if exitPrice > 0 {
				open.ExitTime = c.OpenTime
				open.ExitPrice = exitPrice
				open.PnL = (exitPrice - open.EntryPrice) * open.Size
				equity += open.PnL
				result.Trades = append(result.Trades, *open)
				open = nil
			}
		}

		if open == nil && i > 0 {
			fast, slow := sma(candles, i, fastWindow), sma(candles, i, slowWindow)
			prevFast, prevSlow := sma(candles, i-1, fastWindow), sma(candles, i-1, slowWindow)
			crossedUp := slow > 0 && prevSlow > 0 && prevFast <= prevSlow && fast > slow
			if crossedUp {
				sizing, err := ledger.CalculatePositionSize(equity, c.Close, 0)
				if err != nil {
					continue
				}
				open = &Trade{
					EntryTime:  c.OpenTime,
					EntryPrice: c.Close,
					Size:       sizing.Size,
				}
				stop = sizing.StopLoss
				target = sizing.TakeProfit
			}
		}

		result.EquityCurve = append(result.EquityCurve, EquityPoint{Time: c.OpenTime, Equity: equity})
	}

	// Liquidate anything still open at the end of the series.
	if open != nil && len(candles) > 0 {
		last := candles[len(candles)-1]
		open.ExitTime = last.OpenTime
		open.ExitPrice = last.Close
		open.PnL = (last.Close - open.EntryPrice) * open.Size
		equity += open.PnL
		result.Trades = append(result.Trades, *open)
	}

	result.TotalReturn = equity - initialCapital
	return result
}

// Run fetches history for every configured pair, simulates each with an
// equal capital share, and aggregates the summary metrics.
func Run(ctx context.Context, cfg RunConfig, provider HistoryProvider, ledger *risk.Ledger) (*Summary, error) {
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("backtest: no pairs configured")
	}
	if cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be positive")
	}
	interval := cfg.Interval
	if interval == "" {
		interval = "1h"
	}

	summary := &Summary{}
	perPairCapital := cfg.InitialCapital / float64(len(cfg.Pairs))

	for _, pair := range cfg.Pairs {
		candles, err := provider.GetKlines(ctx, pair, interval, cfg.StartTime, cfg.EndTime, 0)
		if err != nil {
			return nil, fmt.Errorf("backtest: fetch history for %s: %w", pair, err)
		}
		if len(candles) == 0 {
			logs.Warnf("[Backtest] No history for %s, skipping.", pair)
			continue
		}

		result := Simulate(candles, perPairCapital, ledger)

		summary.TotalTrades += len(result.Trades)
		for i := range result.Trades {
			result.Trades[i].Pair = pair
			if result.Trades[i].PnL > 0 {
				summary.WinningTrades++
			}
			summary.Trades = append(summary.Trades, result.Trades[i])
		}
		summary.TotalPnL += result.TotalReturn

		summary.EquityCurve = mergeEquityCurves(summary.EquityCurve, result.EquityCurve)
	}

	if summary.TotalTrades > 0 {
		summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100
		summary.AveragePnL = summary.TotalPnL / float64(summary.TotalTrades)
	}

	return summary, nil
}

// mergeEquityCurves sums two per-pair curves index by index so the aggregate
// reflects total capital across pairs at each step. The shorter curve's final
// equity is carried forward; timestamps come from the longer curve.
func mergeEquityCurves(a, b []EquityPoint) []EquityPoint {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	long, short := a, b
	if len(b) > len(a) {
		long, short = b, a
	}
	out := make([]EquityPoint, len(long))
	carry := short[len(short)-1].Equity
	for i := range long {
		v := carry
		if i < len(short) {
			v = short[i].Equity
		}
		out[i] = EquityPoint{Time: long[i].Time, Equity: long[i].Equity + v}
	}
	return out
}
