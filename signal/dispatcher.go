// signal/dispatcher.go
package signal

import (
	"context"

	"signal_trader_go/logs"
	"signal_trader_go/trader"
)

// Executor is the slice of the trader the dispatcher drives.
type Executor interface {
	Execute(ctx context.Context, intent trader.TradeIntent) (*trader.TradeResult, error)
}

// Dispatcher gates incoming chat messages by channel allow-list, parses them
// into trade intents, and hands those to the trader. All sizing and risk
// decisions live behind the trader; this layer is deliberately thin.
type Dispatcher struct {
	registry *ChannelRegistry
	parser   *Parser
	executor Executor
}

func NewDispatcher(registry *ChannelRegistry, parser *Parser, executor Executor) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		parser:   parser,
		executor: executor,
	}
}

// HandleMessage processes one raw chat message. Messages from unmonitored
// channels and messages that carry no signal return (nil, nil).
func (d *Dispatcher) HandleMessage(ctx context.Context, channelID, text string) (*trader.TradeResult, error) {
	if !d.registry.Contains(channelID) {
		return nil, nil
	}

	intent, ok := d.parser.Parse(text)
	if !ok {
		return nil, nil
	}

	logs.Infof("[Signal] Parsed %s %s x%d from channel %s", intent.Side, intent.Symbol, intent.Leverage, channelID)
	result, err := d.executor.Execute(ctx, intent)
	if err != nil {
		logs.Errorf("[Signal] Trade execution failed for %s: %v", intent.Symbol, err)
		return result, err
	}
	return result, nil
}
