// trader/trader.go
package trader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/logs"
	"signal_trader_go/risk"
	"signal_trader_go/swap"
	"signal_trader_go/utils"
)

// TradeIntent is a normalized trade request. Symbol carries the bare token
// ("BTC"); venue-specific pair names are derived per venue. Leverage 0 means
// an unleveraged (swap) trade; zero percentages fall back to the configured
// defaults.
type TradeIntent struct {
	Symbol        string
	Side          exchange.PositionSide
	Quantity      float64
	Leverage      int
	StopLossPct   float64
	TakeProfitPct float64
}

// Position is one tracked open position, keyed by symbol in the active
// table. At most one position per symbol.
type Position struct {
	Symbol            string
	Side              exchange.PositionSide
	Leverage          int
	Quantity          float64
	EntryPrice        float64
	StopLoss          float64
	TakeProfit        float64
	EntryOrderID      string
	StopOrderID       string
	TakeProfitOrderID string
	Platform          string
	OpenedAt          time.Time
}

// CloseResult reports an executed close. Warnings carry best-effort bracket
// cancellation failures that did not stop the close itself.
type CloseResult struct {
	Symbol       string
	Platform     string
	CloseOrderID string
	ExitPrice    float64
	RealizedPnL  float64
	Warnings     []string
}

// VenueAttempt records one venue tried while executing an intent.
type VenueAttempt struct {
	Venue string
	Err   string
}

// TradeResult is the outcome of executing a TradeIntent across venues.
type TradeResult struct {
	Status   string
	Platform string
	Position *Position
	Swap     *swap.SwapResult
	Warnings []string
	Attempts []VenueAttempt
}

// Trader converts trade intents into sized, risk-checked, bracketed
// positions and tracks them to closure. Operations on the same symbol are
// serialized; different symbols proceed concurrently.
type Trader struct {
	margin  exchange.Adapter
	swapper swap.Swapper
	ledger  *risk.Ledger
	riskCfg config.RiskConfig

	quoteAsset     string
	stableToken    string
	pricePrecision int

	mu        sync.Mutex
	positions map[string]*Position
	symLocks  map[string]*sync.Mutex
}

// New creates a trader. Either venue may be nil; Execute skips absent ones.
func New(margin exchange.Adapter, swapper swap.Swapper, ledger *risk.Ledger, cfg *config.Config) *Trader {
	return &Trader{
		margin:         margin,
		swapper:        swapper,
		ledger:         ledger,
		riskCfg:        *cfg.Risk,
		quoteAsset:     cfg.Signal.QuoteAsset,
		stableToken:    cfg.Swap.StableToken,
		pricePrecision: cfg.Normal.PricePrecision,
		positions:      make(map[string]*Position),
		symLocks:       make(map[string]*sync.Mutex),
	}
}

// symbolLock returns the mutex serializing operations on one symbol.
func (t *Trader) symbolLock(symbol string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.symLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		t.symLocks[symbol] = lock
	}
	return lock
}

func (t *Trader) getPosition(symbol string) (*Position, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.positions[symbol]
	return pos, ok
}

func (t *Trader) setPosition(pos *Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[pos.Symbol] = pos
}

func (t *Trader) removePosition(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, symbol)
}

// marginSymbol maps a bare token to the margin venue's pair name.
func (t *Trader) marginSymbol(token string) string {
	if strings.HasSuffix(token, t.quoteAsset) {
		return token
	}
	return token + t.quoteAsset
}

// bracketPrices computes stop-loss and take-profit from the mark price.
// LONG: stop below, target above; SHORT inverted.
func (t *Trader) bracketPrices(markPrice float64, side exchange.PositionSide, slPct, tpPct float64) (stopLoss, takeProfit float64) {
	if slPct <= 0 {
		slPct = t.riskCfg.DefaultStopLossPct
	}
	if tpPct <= 0 {
		tpPct = t.riskCfg.DefaultTakeProfitPct
	}
	if side == exchange.Long {
		stopLoss = markPrice * (1 - slPct/100)
		takeProfit = markPrice * (1 + tpPct/100)
	} else {
		stopLoss = markPrice * (1 + slPct/100)
		takeProfit = markPrice * (1 - tpPct/100)
	}
	stopLoss = utils.RoundToPrecision(stopLoss, t.pricePrecision)
	takeProfit = utils.RoundToPrecision(takeProfit, t.pricePrecision)
	return stopLoss, takeProfit
}

// OpenLeveragedPosition opens a bracketed leveraged position on the margin
// venue: mark price, risk gate, leverage, entry, stop-loss, take-profit.
// A protective-leg failure after the entry filled returns a
// *PartialBracketError and keeps the position tracked.
func (t *Trader) OpenLeveragedPosition(ctx context.Context, symbol string, side exchange.PositionSide, quantity float64, leverage int, slPct, tpPct float64) (*Position, error) {
	if symbol == "" {
		return nil, &ValidationError{Field: "symbol", Msg: "must not be empty"}
	}
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Msg: "must be positive"}
	}
	if leverage <= 0 {
		return nil, &ValidationError{Field: "leverage", Msg: "must be positive"}
	}
	if side != exchange.Long && side != exchange.Short {
		return nil, &ValidationError{Field: "side", Msg: "must be LONG or SHORT"}
	}
	if t.margin == nil {
		return nil, fmt.Errorf("open %s: no margin venue configured", symbol)
	}

	lock := t.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	if _, exists := t.getPosition(symbol); exists {
		return nil, fmt.Errorf("open %s: %w", symbol, ErrPositionAlreadyOpen)
	}

	markPrice, err := t.margin.GetMarkPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("open %s: query mark price: %w", symbol, err)
	}

	// Risk gate. Sizing runs first so the denial accounting sees the same
	// risk amount that gets registered on success.
	account, err := t.margin.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: query balance: %w", symbol, err)
	}
	sizing, err := t.ledger.CalculatePositionSize(account.FreeBalance(t.quoteAsset), markPrice, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: sizing: %w", symbol, err)
	}
	if decision := t.ledger.CanOpenPosition(symbol, side, quantity, leverage); !decision.Allowed {
		return nil, &risk.DeniedError{Reason: decision.Reason}
	}

	// Leverage is a venue-level side effect. If it fails, abort before any
	// order placement.
	if err := t.margin.SetLeverage(ctx, symbol, leverage); err != nil {
		return nil, fmt.Errorf("open %s: set leverage %dx: %w", symbol, leverage, err)
	}

	stopLoss, takeProfit := t.bracketPrices(markPrice, side, slPct, tpPct)

	entryOrder, err := t.margin.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side.EntrySide(),
		Type:         exchange.Market,
		Quantity:     quantity,
		PositionSide: side,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: entry order: %w", symbol, err)
	}

	entryPrice := markPrice
	if p, perr := strconv.ParseFloat(entryOrder.AvgPrice, 64); perr == nil && p > 0 {
		entryPrice = p
	}

	pos := &Position{
		Symbol:       symbol,
		Side:         side,
		Leverage:     leverage,
		Quantity:     quantity,
		EntryPrice:   entryPrice,
		StopLoss:     stopLoss,
		TakeProfit:   takeProfit,
		EntryOrderID: entryOrder.OrderID,
		Platform:     t.margin.Name(),
		OpenedAt:     time.Now().UTC(),
	}

	track := func() {
		t.setPosition(pos)
		t.ledger.Register(symbol, risk.PositionRisk{
			RiskAmount: sizing.RiskAmount,
			EntryPrice: entryPrice,
			StopLoss:   stopLoss,
			TakeProfit: takeProfit,
			Side:       side,
		})
	}

	stopOrder, err := t.margin.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side.Opposite(),
		Type:         exchange.StopMarket,
		Quantity:     quantity,
		StopPrice:    stopLoss,
		PositionSide: side,
	})
	if err != nil {
		// Entry is filled; the position exists on the venue whether we track
		// it or not. Track it and surface the incomplete bracket.
		track()
		return nil, &PartialBracketError{
			Symbol:       symbol,
			EntryOrderID: entryOrder.OrderID,
			Err:          err,
		}
	}
	pos.StopOrderID = stopOrder.OrderID

	tpOrder, err := t.margin.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       symbol,
		Side:         side.Opposite(),
		Type:         exchange.TakeProfitMarket,
		Quantity:     quantity,
		StopPrice:    takeProfit,
		PositionSide: side,
	})
	if err != nil {
		track()
		return nil, &PartialBracketError{
			Symbol:       symbol,
			EntryOrderID: entryOrder.OrderID,
			StopOrderID:  stopOrder.OrderID,
			Err:          err,
		}
	}
	pos.TakeProfitOrderID = tpOrder.OrderID

	track()
	logs.Infof("[Trader] Opened %s %s x%d on %s: qty=%.6f entry=%.4f stop=%.4f target=%.4f",
		side, symbol, leverage, pos.Platform, quantity, entryPrice, stopLoss, takeProfit)
	return pos, nil
}

// ClosePosition closes a tracked position: cancel both protective legs
// (best-effort), then exit with an opposite market order. The position is
// removed from the active table and the risk ledger only after the venue
// accepts the closing order, keeping both structures in lockstep.
func (t *Trader) ClosePosition(ctx context.Context, symbol string) (*CloseResult, error) {
	lock := t.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	pos, ok := t.getPosition(symbol)
	if !ok {
		return nil, fmt.Errorf("close %s: %w", symbol, ErrNoActivePosition)
	}

	if t.swapper != nil && pos.Platform == t.swapper.Name() {
		return t.closeSwapPosition(ctx, pos)
	}

	result := &CloseResult{Symbol: symbol, Platform: pos.Platform}

	// Bracket cancellations are best-effort: the goal is to flatten the
	// position regardless of bracket-order state.
	for _, leg := range []struct{ name, orderID string }{
		{"stop-loss", pos.StopOrderID},
		{"take-profit", pos.TakeProfitOrderID},
	} {
		if leg.orderID == "" {
			continue
		}
		if err := t.margin.CancelOrder(ctx, symbol, leg.orderID); err != nil {
			warning := fmt.Sprintf("failed to cancel %s order %s: %v", leg.name, leg.orderID, err)
			logs.Warnf("[Trader] %s: %s", symbol, warning)
			result.Warnings = append(result.Warnings, warning)
		}
	}

	closeOrder, err := t.margin.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       symbol,
		Side:         pos.Side.Opposite(),
		Type:         exchange.Market,
		Quantity:     pos.Quantity,
		PositionSide: pos.Side,
	})
	if err != nil {
		// The close failed; keep the position tracked so the operator can
		// retry instead of silently losing it.
		return nil, fmt.Errorf("close %s: close order: %w", symbol, err)
	}

	exitPrice := pos.EntryPrice
	if p, perr := strconv.ParseFloat(closeOrder.AvgPrice, 64); perr == nil && p > 0 {
		exitPrice = p
	}

	pnl := (exitPrice - pos.EntryPrice) * pos.Quantity
	if pos.Side == exchange.Short {
		pnl = -pnl
	}

	t.removePosition(symbol)
	t.ledger.UpdatePosition(symbol, pnl, true)

	result.CloseOrderID = closeOrder.OrderID
	result.ExitPrice = exitPrice
	result.RealizedPnL = pnl
	logs.Infof("[Trader] Closed %s on %s: exit=%.4f pnl=%.4f warnings=%d",
		symbol, pos.Platform, exitPrice, pnl, len(result.Warnings))
	return result, nil
}

// closeSwapPosition exits a swap position by routing the held token back to
// the stable token. Caller holds the symbol lock.
func (t *Trader) closeSwapPosition(ctx context.Context, pos *Position) (*CloseResult, error) {
	route, err := t.swapper.GetBestRoute(ctx, pos.Symbol, t.stableToken, pos.Quantity)
	if err != nil {
		return nil, fmt.Errorf("close %s: swap route: %w", pos.Symbol, err)
	}
	if route == nil {
		return nil, fmt.Errorf("close %s: no swap route back to %s", pos.Symbol, t.stableToken)
	}

	result, err := t.swapper.ExecuteSwap(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("close %s: swap execute: %w", pos.Symbol, err)
	}

	spent := pos.EntryPrice * pos.Quantity
	pnl := result.OutAmount - spent

	t.removePosition(pos.Symbol)
	t.ledger.UpdatePosition(pos.Symbol, pnl, true)

	logs.Infof("[Trader] Closed swap position %s via %s: received=%.4f %s pnl=%.4f",
		pos.Symbol, pos.Platform, result.OutAmount, t.stableToken, pnl)
	return &CloseResult{
		Symbol:       pos.Symbol,
		Platform:     pos.Platform,
		CloseOrderID: result.TxID,
		ExitPrice:    result.OutAmount / pos.Quantity,
		RealizedPnL:  pnl,
	}, nil
}

// Execute runs a trade intent through the ordered venue list. The margin
// venue is preferred when it supports the required leverage; venue-layer
// failures fall back to the swap route. A leveraged intent that degrades to
// an unleveraged swap says so explicitly in Platform and Warnings — the
// caller is never left to infer it.
func (t *Trader) Execute(ctx context.Context, intent TradeIntent) (*TradeResult, error) {
	if intent.Symbol == "" {
		return nil, &ValidationError{Field: "symbol", Msg: "must not be empty"}
	}
	if intent.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Msg: "must be positive"}
	}
	if intent.Side != exchange.Long && intent.Side != exchange.Short {
		return nil, &ValidationError{Field: "side", Msg: "must be LONG or SHORT"}
	}

	result := &TradeResult{Status: "error"}
	degraded := ""

	if intent.Leverage > 0 {
		if t.margin != nil && t.margin.SupportsLeverage() {
			symbol := t.marginSymbol(intent.Symbol)
			pos, err := t.OpenLeveragedPosition(ctx, symbol, intent.Side, intent.Quantity,
				intent.Leverage, intent.StopLossPct, intent.TakeProfitPct)
			if err == nil {
				result.Status = "success"
				result.Platform = pos.Platform
				result.Position = pos
				return result, nil
			}

			// A partial bracket means the margin entry already filled and the
			// position is tracked; a swap attempt on top would double the
			// exposure, so it is final even though a venue error sits inside.
			var partial *PartialBracketError
			if errors.As(err, &partial) {
				return nil, err
			}
			// Only venue-layer failures fall through to the swap venue. Risk
			// denials and validation problems are final.
			var venueErr *exchange.VenueError
			if !errors.As(err, &venueErr) {
				return nil, err
			}
			result.Attempts = append(result.Attempts, VenueAttempt{Venue: t.margin.Name(), Err: err.Error()})
			logs.Warnf("[Trader] Margin attempt for %s failed, trying swap fallback: %v", intent.Symbol, err)
			degraded = fmt.Sprintf("leveraged intent degraded to unleveraged swap after %s failure", t.margin.Name())
		} else {
			name := "margin"
			if t.margin != nil {
				name = t.margin.Name()
			}
			result.Attempts = append(result.Attempts, VenueAttempt{Venue: name, Err: "leverage not supported"})
			logs.Warnf("[Trader] No leverage-capable margin venue for %s, trying unleveraged swap", intent.Symbol)
			degraded = "leveraged intent degraded to unleveraged swap: no leverage-capable margin venue"
		}
	}

	if t.swapper == nil {
		return result, fmt.Errorf("execute %s: no trading platform available", intent.Symbol)
	}
	if intent.Side == exchange.Short {
		return result, fmt.Errorf("execute %s: short intents require a margin venue", intent.Symbol)
	}

	swapResult, err := t.executeSwapEntry(ctx, intent)
	if err != nil {
		result.Attempts = append(result.Attempts, VenueAttempt{Venue: t.swapper.Name(), Err: err.Error()})
		return result, err
	}

	result.Status = "success"
	result.Platform = t.swapper.Name()
	result.Swap = swapResult
	if degraded != "" {
		result.Warnings = append(result.Warnings, degraded)
	}
	return result, nil
}

// executeSwapEntry buys the token on the swap venue and tracks it as an
// unleveraged long position.
func (t *Trader) executeSwapEntry(ctx context.Context, intent TradeIntent) (*swap.SwapResult, error) {
	lock := t.symbolLock(intent.Symbol)
	lock.Lock()
	defer lock.Unlock()

	if _, exists := t.getPosition(intent.Symbol); exists {
		return nil, fmt.Errorf("execute %s: %w", intent.Symbol, ErrPositionAlreadyOpen)
	}

	route, err := t.swapper.GetBestRoute(ctx, t.stableToken, intent.Symbol, intent.Quantity)
	if err != nil {
		return nil, fmt.Errorf("execute %s: swap route: %w", intent.Symbol, err)
	}
	if route == nil {
		return nil, fmt.Errorf("execute %s: token not found on swap venue", intent.Symbol)
	}

	swapResult, err := t.swapper.ExecuteSwap(ctx, route)
	if err != nil {
		return nil, fmt.Errorf("execute %s: swap execute: %w", intent.Symbol, err)
	}

	unitPrice := 0.0
	if swapResult.OutAmount > 0 {
		unitPrice = swapResult.InAmount / swapResult.OutAmount
	}

	pos := &Position{
		Symbol:     intent.Symbol,
		Side:       exchange.Long,
		Quantity:   swapResult.OutAmount,
		EntryPrice: unitPrice,
		Platform:   t.swapper.Name(),
		OpenedAt:   time.Now().UTC(),
	}
	t.setPosition(pos)
	t.ledger.Register(intent.Symbol, risk.PositionRisk{
		RiskAmount: swapResult.InAmount * risk.RiskPerTradeFraction,
		EntryPrice: unitPrice,
		Side:       exchange.Long,
	})

	logs.Infof("[Trader] Bought %.6f %s via %s for %.4f %s",
		swapResult.OutAmount, intent.Symbol, t.swapper.Name(), swapResult.InAmount, t.stableToken)
	return swapResult, nil
}

// ReplaceStop moves a margin position's stop-loss order to newStop: cancel
// the old leg, place a fresh stop-market order, record the new level. Used
// by the breakeven ratchet sweep.
func (t *Trader) ReplaceStop(ctx context.Context, symbol string, newStop float64) error {
	lock := t.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	pos, ok := t.getPosition(symbol)
	if !ok {
		return fmt.Errorf("replace stop %s: %w", symbol, ErrNoActivePosition)
	}
	if t.margin == nil || pos.Platform != t.margin.Name() {
		return nil // swap positions carry no venue-side stop
	}
	if utils.FloatEquals(pos.StopLoss, newStop) {
		return nil
	}

	if pos.StopOrderID != "" {
		if err := t.margin.CancelOrder(ctx, symbol, pos.StopOrderID); err != nil {
			logs.Warnf("[Trader] %s: failed to cancel old stop order %s: %v", symbol, pos.StopOrderID, err)
		}
	}

	stopOrder, err := t.margin.PlaceOrder(ctx, &exchange.OrderRequest{
		Symbol:       symbol,
		Side:         pos.Side.Opposite(),
		Type:         exchange.StopMarket,
		Quantity:     pos.Quantity,
		StopPrice:    newStop,
		PositionSide: pos.Side,
	})
	if err != nil {
		return fmt.Errorf("replace stop %s: %w", symbol, err)
	}

	// ActivePositions snapshots under t.mu, so the published struct may only
	// change while holding it.
	t.mu.Lock()
	pos.StopOrderID = stopOrder.OrderID
	pos.StopLoss = newStop
	t.mu.Unlock()
	logs.Infof("[Trader] Moved stop for %s to %.4f (order %s)", symbol, newStop, stopOrder.OrderID)
	return nil
}

// ActivePositions returns a snapshot of the active-position table.
func (t *Trader) ActivePositions() map[string]Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Position, len(t.positions))
	for sym, pos := range t.positions {
		out[sym] = *pos
	}
	return out
}

// Balances gathers per-venue balances; a venue failure is reported inline as
// a string rather than failing the whole query.
func (t *Trader) Balances(ctx context.Context) map[string]interface{} {
	balances := make(map[string]interface{})

	if t.margin != nil {
		if info, err := t.margin.GetAccountInfo(ctx); err != nil {
			balances[t.margin.Name()] = fmt.Sprintf("Error: %v", err)
		} else {
			balances[t.margin.Name()] = info.Balances
		}
	}

	if t.swapper != nil {
		if price, err := t.swapper.GetTokenPrice(ctx, t.stableToken); err != nil {
			balances[t.swapper.Name()] = fmt.Sprintf("Error: %v", err)
		} else {
			balances[t.swapper.Name()] = map[string]float64{t.stableToken: price}
		}
	}

	return balances
}
