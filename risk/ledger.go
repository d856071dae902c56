// risk/ledger.go
package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"signal_trader_go/config"
	"signal_trader_go/exchange"
)

// RiskPerTradeFraction is the fixed fraction of account balance risked per
// trade. It is deliberately a constant rather than a config field: the
// configurable limits in config.RiskConfig cap exposure, this one defines it.
const RiskPerTradeFraction = 0.02

// BreakevenTriggerPct is the unrealized profit (percent of entry) at which
// the stop-loss is ratcheted to breakeven.
const BreakevenTriggerPct = 2.0

// ErrDegenerateStop is returned when the stop-loss equals the entry price,
// making the per-unit risk zero and the position size undefined.
var ErrDegenerateStop = errors.New("stop distance is zero, cannot size position")

// DeniedError reports a failed risk admission check. Denials are never
// retried automatically; they require a limit change or the daily reset.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("risk check denied: %s", e.Reason)
}

// SizingResult is the outcome of position sizing. A pure computed value.
type SizingResult struct {
	Size       float64
	RiskAmount float64
	StopLoss   float64
	TakeProfit float64
}

// PositionRisk is the ledger's record of one open position's risk exposure.
type PositionRisk struct {
	RiskAmount float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Side       exchange.PositionSide
}

// StopLevels is the pair of protective levels for an open position.
type StopLevels struct {
	StopLoss   float64
	TakeProfit float64
}

// Decision is the result of an admission check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Ledger holds the immutable risk limits and the mutable daily/aggregate risk
// state. Its open-position keys must stay in lockstep with the trader's
// active-position table: every path that opens or closes a position updates
// both.
type Ledger struct {
	mu            sync.RWMutex
	cfg           config.RiskConfig
	dailyPnL      float64
	openPositions map[string]*PositionRisk
}

// NewLedger creates a ledger with zeroed daily state.
func NewLedger(cfg *config.RiskConfig) *Ledger {
	return &Ledger{
		cfg:           *cfg,
		openPositions: make(map[string]*PositionRisk),
	}
}

// CalculatePositionSize computes a safe position size from the account
// balance and stop distance. Pass stopLoss <= 0 to derive the stop from the
// configured default (long-side convention). Pure function, no mutation.
func (l *Ledger) CalculatePositionSize(accountBalance, entryPrice, stopLoss float64) (SizingResult, error) {
	if stopLoss <= 0 {
		stopLoss = entryPrice * (1 - l.cfg.DefaultStopLossPct/100)
	}

	riskAmount := accountBalance * RiskPerTradeFraction
	riskPerUnit := math.Abs(entryPrice - stopLoss)
	if riskPerUnit == 0 {
		return SizingResult{}, ErrDegenerateStop
	}

	size := math.Min(riskAmount/riskPerUnit, l.cfg.MaxPositionSize)

	return SizingResult{
		Size:       size,
		RiskAmount: riskAmount,
		StopLoss:   stopLoss,
		TakeProfit: entryPrice * (1 + l.cfg.DefaultTakeProfitPct/100),
	}, nil
}

// CanOpenPosition runs the admission checks in a fixed order so denial
// reasons stay deterministic: leverage, then daily drawdown, then total risk.
// Pure read, no side effects.
func (l *Ledger) CanOpenPosition(symbol string, side exchange.PositionSide, size float64, leverage int) Decision {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if leverage > l.cfg.MaxLeverage {
		return Decision{Reason: fmt.Sprintf("Leverage %dx exceeds maximum %dx", leverage, l.cfg.MaxLeverage)}
	}

	if l.dailyPnL <= -l.cfg.MaxDailyDrawdownPct {
		return Decision{Reason: fmt.Sprintf("Daily drawdown limit reached: %.2f%%", l.dailyPnL)}
	}

	var totalRisk float64
	for _, pos := range l.openPositions {
		totalRisk += pos.RiskAmount
	}
	if totalRisk >= l.cfg.MaxTotalRiskPct {
		return Decision{Reason: fmt.Sprintf("Maximum total risk reached: %.2f%%", totalRisk)}
	}

	return Decision{Allowed: true}
}

// Register records the risk exposure of a newly opened position.
func (l *Ledger) Register(symbol string, pos PositionRisk) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := pos
	l.openPositions[symbol] = &copied
}

// UpdatePosition adds pnl to the daily total and, when the position is
// closed, drops it from the open set. Removing an absent symbol is a no-op.
func (l *Ledger) UpdatePosition(symbol string, pnl float64, isClosed bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dailyPnL += pnl
	if isClosed {
		delete(l.openPositions, symbol)
	}
}

// ResetDailyMetrics zeroes the daily PnL. Called by the monitor once per
// trading day; the ledger has no internal clock.
func (l *Ledger) ResetDailyMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dailyPnL = 0
}

// DailyPnL returns the cumulative PnL since the last daily reset.
func (l *Ledger) DailyPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dailyPnL
}

// TotalRisk returns the sum of risk amounts across all open positions.
func (l *Ledger) TotalRisk() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, pos := range l.openPositions {
		total += pos.RiskAmount
	}
	return total
}

// OpenPositions returns a copy of the tracked risk records keyed by symbol.
func (l *Ledger) OpenPositions() map[string]PositionRisk {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]PositionRisk, len(l.openPositions))
	for sym, pos := range l.openPositions {
		out[sym] = *pos
	}
	return out
}

// AdjustedStops returns the protective levels for symbol at the current
// price, ratcheting the stop-loss to breakeven once unrealized profit
// reaches BreakevenTriggerPct. The ratchet is persisted in the ledger, so a
// later call at a lower price never retracts it. Returns ok=false when the
// symbol has no tracked position.
func (l *Ledger) AdjustedStops(symbol string, currentPrice float64) (StopLevels, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.openPositions[symbol]
	if !ok {
		return StopLevels{}, false
	}

	pnlPercent := (currentPrice - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Side == exchange.Short {
		pnlPercent = -pnlPercent
	}

	if pnlPercent >= BreakevenTriggerPct {
		if pos.Side == exchange.Short {
			pos.StopLoss = math.Min(pos.StopLoss, pos.EntryPrice)
		} else {
			pos.StopLoss = math.Max(pos.StopLoss, pos.EntryPrice)
		}
	}

	return StopLevels{StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit}, true
}
