// orchestrator.go
package main

import (
	"context"
	"fmt"
	"sync"

	"signal_trader_go/backtest"
	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/logs"
	"signal_trader_go/monitor"
	"signal_trader_go/risk"
	"signal_trader_go/signal"
	"signal_trader_go/swap"
	"signal_trader_go/trader"
)

// Orchestrator owns every long-lived component and the goroutines that run
// them: the venue adapters, the risk ledger, the trader, signal ingestion,
// and the monitor/REST services.
type Orchestrator struct {
	margin     exchange.Adapter
	swapper    swap.Swapper
	ledger     *risk.Ledger
	trader     *trader.Trader
	registry   *signal.ChannelRegistry
	dispatcher *signal.Dispatcher
	server     *monitor.Server
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	cfg        *config.Config
}

func NewOrchestrator(cfg *config.Config, envCfg *config.EnvConfig, channelsFilePath string) (*Orchestrator, error) {
	var margin exchange.Adapter
	var swapper swap.Swapper
	var history backtest.HistoryProvider

	if cfg.UseSimulation {
		mockMargin := exchange.NewMockAdapter("SimExchange")
		mockSwapper := swap.NewMockSwapper()
		margin = mockMargin
		swapper = mockSwapper
		logs.Warnf("<<<<<<<<<< WARNING: Running in simulation mode >>>>>>>>>>")
	} else {
		if envCfg.ApiKey == "" || envCfg.ApiSecret == "" {
			return nil, fmt.Errorf("MEXC_API_KEY and MEXC_API_SECRET must be set when not in simulation mode")
		}
		client := exchange.NewAPIClient(envCfg.ApiKey, envCfg.ApiSecret, envCfg.BaseURL, cfg.Normal.HTTPTimeoutSeconds, cfg.Normal.RecvWindowSeconds)
		// Ensure time synchronization before making any API calls
		if err := client.SyncTime(); err != nil {
			return nil, fmt.Errorf("failed to sync exchange time: %w", err)
		}
		margin = client
		history = client

		if envCfg.SwapBaseURL != "" {
			swapper = swap.NewJupiterClient(envCfg.SwapBaseURL, cfg.Swap)
		} else {
			logs.Warnf("[Orchestrator] SWAP_QUOTE_BASE_URL not set, DEX fallback venue disabled.")
		}
	}

	registry, err := signal.NewChannelRegistry(channelsFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize channel registry: %w", err)
	}
	logs.Infof("Channel registry loaded, %d monitored channels, persisted to: %s", len(registry.List()), channelsFilePath)

	ledger := risk.NewLedger(cfg.Risk)
	tr := trader.New(margin, swapper, ledger, cfg)
	dispatcher := signal.NewDispatcher(registry, signal.NewParser(cfg.Signal), tr)
	server := monitor.NewServer(cfg.Server, tr, ledger, registry, dispatcher, history)

	// Positions are tracked in memory only. A restart forgets open positions;
	// any live brackets on the venue must be reconciled by hand.
	logs.Warnf("[Orchestrator] Position table is in-memory only, restart loses tracking of open positions.")

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		margin:     margin,
		swapper:    swapper,
		ledger:     ledger,
		trader:     tr,
		registry:   registry,
		dispatcher: dispatcher,
		server:     server,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
	}, nil
}

func (o *Orchestrator) Start() {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		monitor.Start(o.margin, o.trader, o.ledger, o.cfg, o.ctx.Done())
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.server.ListenAndServe(); err != nil {
			logs.Errorf("[Orchestrator] REST server stopped with error: %v", err)
		}
	}()

	logs.Info("Signal trader started, press Ctrl+C to exit.")
}

func (o *Orchestrator) Stop() {
	logs.Info("Received close signal, starting graceful shutdown...")

	if err := o.server.Shutdown(); err != nil {
		logs.Errorf("Failed to shut down REST server: %v", err)
	}

	o.printFinalSummary()

	o.cancel()
	o.wg.Wait()
	logs.Info("All services stopped successfully.")
}

func (o *Orchestrator) printFinalSummary() {
	logs.Info("\n--- Final Session Summary ---")
	logs.Infof("Realized PnL today: %.4f", o.ledger.DailyPnL())

	positions := o.trader.ActivePositions()
	if len(positions) == 0 {
		logs.Info("No open positions.")
	} else {
		logs.Warnf("%d position(s) still open at shutdown:", len(positions))
		for symbol, pos := range positions {
			logs.Warnf("  %s %s qty %.6f entry %.4f stop %.4f (%s)", symbol, pos.Side, pos.Quantity, pos.EntryPrice, pos.StopLoss, pos.Platform)
		}
	}
	logs.Info("--------------------")
}
