// monitor/monitor.go
package monitor

import (
	"context"
	"time"

	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/logs"
	"signal_trader_go/risk"
	"signal_trader_go/trader"
	"signal_trader_go/utils"
)

// Start runs the periodic supervision loop: sweep open positions for the
// breakeven ratchet, reset the daily drawdown counter at UTC midnight, and
// keep the exchange clock in sync. Blocks until stopChan closes.
func Start(
	margin exchange.Adapter,
	tr *trader.Trader,
	ledger *risk.Ledger,
	cfg *config.Config,
	stopChan <-chan struct{},
) {
	ticker := time.NewTicker(time.Duration(cfg.Normal.MonitorIntervalSeconds) * time.Second)
	defer ticker.Stop()

	lastHeartbeat := time.Now()
	lastSyncTime := time.Now()
	lastResetDay := time.Now().UTC().YearDay()

	heartbeatInterval := time.Duration(cfg.Normal.HeartbeatIntervalMinutes) * time.Minute
	timeSyncInterval := time.Duration(cfg.Normal.TimeSyncIntervalMinutes) * time.Minute

	for {
		select {
		case <-stopChan:
			logs.Info("Monitor received stop signal, exiting.")
			return
		case <-ticker.C:
			sweepPositions(margin, tr, ledger)

			OpenPositions.Set(float64(len(tr.ActivePositions())))
			DailyPnL.Set(ledger.DailyPnL())
			TotalRiskPct.Set(ledger.TotalRisk())

			if day := time.Now().UTC().YearDay(); day != lastResetDay {
				logs.Infof("[Monitor] New UTC trading day, resetting daily metrics (previous PnL: %.4f)", ledger.DailyPnL())
				ledger.ResetDailyMetrics()
				lastResetDay = day
			}

			if time.Since(lastHeartbeat) >= heartbeatInterval {
				logs.Info("[Heartbeat] Monitor service still running...")
				lastHeartbeat = time.Now()
			}

			if margin != nil && time.Since(lastSyncTime) >= timeSyncInterval {
				logs.Info("[Monitor] Executing regular time synchronization...")
				if err := margin.SyncTime(); err != nil {
					logs.Errorf("[Monitor-Error] Regular time synchronization failed: %v", err)
				}
				lastSyncTime = time.Now()
			}
		}
	}
}

// sweepPositions checks every open margin position against the ledger's
// ratcheted stop levels and moves the venue-side stop order when the ratchet
// has advanced.
func sweepPositions(margin exchange.Adapter, tr *trader.Trader, ledger *risk.Ledger) {
	if margin == nil {
		return
	}

	for symbol, pos := range tr.ActivePositions() {
		if pos.Platform != margin.Name() {
			continue
		}

		currentPrice, err := margin.GetMarkPrice(context.Background(), symbol)
		if err != nil {
			logs.Errorf("[Monitor-Error] Failed to get price for %s: %v", symbol, err)
			continue
		}

		levels, ok := ledger.AdjustedStops(symbol, currentPrice)
		if !ok || utils.FloatEquals(levels.StopLoss, pos.StopLoss) {
			continue
		}

		logs.Infof("[Monitor] %s stop ratcheted %.4f -> %.4f at price %.4f", symbol, pos.StopLoss, levels.StopLoss, currentPrice)
		if err := tr.ReplaceStop(context.Background(), symbol, levels.StopLoss); err != nil {
			logs.Errorf("[Monitor-Error] Failed to move stop for %s: %v", symbol, err)
			continue
		}
		StopRatchets.Inc()
	}
}
