package signal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_trader_go/config"
	"signal_trader_go/trader"
)

type recordingExecutor struct {
	intents []trader.TradeIntent
	result  *trader.TradeResult
	err     error
}

func (r *recordingExecutor) Execute(ctx context.Context, intent trader.TradeIntent) (*trader.TradeResult, error) {
	r.intents = append(r.intents, intent)
	return r.result, r.err
}

func newTestDispatcher(t *testing.T, executor Executor) (*Dispatcher, *ChannelRegistry) {
	t.Helper()
	registry, err := NewChannelRegistry(filepath.Join(t.TempDir(), "channels.json"))
	require.NoError(t, err)
	parser := NewParser(&config.SignalConfig{DefaultQuantity: 0.01, QuoteAsset: "USDT"})
	return NewDispatcher(registry, parser, executor), registry
}

func TestDispatcher_IgnoresUnmonitoredChannel(t *testing.T) {
	executor := &recordingExecutor{}
	dispatcher, _ := newTestDispatcher(t, executor)

	result, err := dispatcher.HandleMessage(context.Background(), "chan-1", "LONG: BTC Entry: 50000 Leverage: 10x")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, executor.intents)
}

func TestDispatcher_IgnoresNonSignalMessage(t *testing.T) {
	executor := &recordingExecutor{}
	dispatcher, registry := newTestDispatcher(t, executor)
	require.NoError(t, registry.Add("chan-1"))

	result, err := dispatcher.HandleMessage(context.Background(), "chan-1", "gm, any alpha today?")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, executor.intents)
}

func TestDispatcher_ExecutesParsedSignal(t *testing.T) {
	executor := &recordingExecutor{result: &trader.TradeResult{Status: "success", Platform: "MEXC"}}
	dispatcher, registry := newTestDispatcher(t, executor)
	require.NoError(t, registry.Add("chan-1"))

	result, err := dispatcher.HandleMessage(context.Background(), "chan-1", "LONG: BTC Entry: 50000 Leverage: 10x")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "success", result.Status)

	require.Len(t, executor.intents, 1)
	assert.Equal(t, "BTC", executor.intents[0].Symbol)
	assert.Equal(t, 10, executor.intents[0].Leverage)
}

func TestDispatcher_PropagatesExecutionError(t *testing.T) {
	executor := &recordingExecutor{err: errors.New("venue down")}
	dispatcher, registry := newTestDispatcher(t, executor)
	require.NoError(t, registry.Add("chan-1"))

	_, err := dispatcher.HandleMessage(context.Background(), "chan-1", "LONG: BTC Entry: 50000 Leverage: 10x")
	assert.EqualError(t, err, "venue down")
}
