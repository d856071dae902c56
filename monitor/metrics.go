// monitor/metrics.go
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SignalsReceived counts webhook messages accepted from monitored channels.
var SignalsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signal_trader",
		Name:      "signals_received_total",
		Help:      "Total signal messages received, by outcome",
	},
	[]string{"outcome"}, // executed, ignored, rejected
)

// TradesTotal counts executed trades by venue and result.
var TradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signal_trader",
		Name:      "trades_total",
		Help:      "Total trade executions, by venue and result",
	},
	[]string{"venue", "result"}, // result: success, failed
)

// RiskDenials counts trade intents refused by the risk checks.
var RiskDenials = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signal_trader",
		Name:      "risk_denials_total",
		Help:      "Total trade intents denied by risk checks",
	},
)

// VenueErrors counts venue-level failures by venue name.
var VenueErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "signal_trader",
		Name:      "venue_errors_total",
		Help:      "Total venue API failures, by venue",
	},
	[]string{"venue"},
)

// StopRatchets counts stop-loss orders moved by the breakeven sweep.
var StopRatchets = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "signal_trader",
		Name:      "stop_ratchets_total",
		Help:      "Total stop-loss orders moved to breakeven",
	},
)

// OpenPositions tracks the current number of active positions.
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signal_trader",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// DailyPnL tracks realized PnL since the last daily reset.
var DailyPnL = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signal_trader",
		Name:      "daily_pnl_usdt",
		Help:      "Realized PnL since the last UTC daily reset",
	},
)

// TotalRiskPct tracks aggregate open risk as a percent of the drawdown base.
var TotalRiskPct = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "signal_trader",
		Name:      "total_risk_percent",
		Help:      "Aggregate risk committed to open positions, percent",
	},
)
