// signal/parser.go
package signal

import (
	"regexp"
	"strconv"
	"strings"

	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/trader"
)

// Signal message shape, as posted in trading channels:
//
//	LONG: BTC Entry: 50000 Leverage: 10x
//	SHORT: ETH Entry: 3200 Leverage: 5x SL: 1.5% TP: 4%
var (
	longPattern  = regexp.MustCompile(`(?i)LONG[:\s]+(\w+).*?Entry[:\s]+(\d+\.?\d*).*?Leverage[:\s]+(\d+)x?`)
	shortPattern = regexp.MustCompile(`(?i)SHORT[:\s]+(\w+).*?Entry[:\s]+(\d+\.?\d*).*?Leverage[:\s]+(\d+)x?`)
	slPattern    = regexp.MustCompile(`(?i)SL[:\s]+(\d+\.?\d*)%?`)
	tpPattern    = regexp.MustCompile(`(?i)TP[:\s]+(\d+\.?\d*)%?`)
)

// Parser extracts normalized trade intents from raw chat messages.
type Parser struct {
	defaultQuantity float64
}

func NewParser(cfg *config.SignalConfig) *Parser {
	return &Parser{defaultQuantity: cfg.DefaultQuantity}
}

// Parse scans a message for a LONG or SHORT signal. A message with no signal
// returns ok=false; that is not an error.
func (p *Parser) Parse(text string) (trader.TradeIntent, bool) {
	side := exchange.Long
	match := longPattern.FindStringSubmatch(text)
	if match == nil {
		side = exchange.Short
		match = shortPattern.FindStringSubmatch(text)
	}
	if match == nil {
		return trader.TradeIntent{}, false
	}

	leverage, err := strconv.Atoi(match[3])
	if err != nil {
		return trader.TradeIntent{}, false
	}

	intent := trader.TradeIntent{
		Symbol:   strings.ToUpper(match[1]),
		Side:     side,
		Quantity: p.defaultQuantity,
		Leverage: leverage,
	}

	// Optional overrides; zero values fall back to the configured defaults.
	if m := slPattern.FindStringSubmatch(text); m != nil {
		intent.StopLossPct, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := tpPattern.FindStringSubmatch(text); m != nil {
		intent.TakeProfitPct, _ = strconv.ParseFloat(m[1], 64)
	}

	return intent, true
}
