// monitor/rest.go
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal_trader_go/backtest"
	"signal_trader_go/config"
	"signal_trader_go/exchange"
	"signal_trader_go/logs"
	"signal_trader_go/risk"
	"signal_trader_go/signal"
	"signal_trader_go/trader"
)

// Server exposes the control API: status, positions, channel management,
// the signal webhook, and on-demand backtests.
type Server struct {
	router     *mux.Router
	tr         *trader.Trader
	ledger     *risk.Ledger
	registry   *signal.ChannelRegistry
	dispatcher *signal.Dispatcher
	history    backtest.HistoryProvider
	startedAt  time.Time
	httpSrv    *http.Server
}

// NewServer wires the route table. history may be nil; POST /api/backtest
// then reports the feature unavailable.
func NewServer(
	cfg *config.ServerConfig,
	tr *trader.Trader,
	ledger *risk.Ledger,
	registry *signal.ChannelRegistry,
	dispatcher *signal.Dispatcher,
	history backtest.HistoryProvider,
) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		tr:         tr,
		ledger:     ledger,
		registry:   registry,
		dispatcher: dispatcher,
		history:    history,
		startedAt:  time.Now(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/positions", s.handlePositions).Methods("GET")
	api.HandleFunc("/positions/{symbol}/close", s.handleClosePosition).Methods("POST")
	api.HandleFunc("/balances", s.handleBalances).Methods("GET")
	api.HandleFunc("/channels", s.handleListChannels).Methods("GET")
	api.HandleFunc("/channels", s.handleAddChannel).Methods("POST")
	api.HandleFunc("/channels/{id}", s.handleRemoveChannel).Methods("DELETE")
	api.HandleFunc("/signal", s.handleSignal).Methods("POST")
	api.HandleFunc("/backtest", s.handleBacktest).Methods("POST")

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logs.Infof("[REST] Listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logs.Errorf("[REST] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
		"openPositions": len(s.tr.ActivePositions()),
		"dailyPnl":      s.ledger.DailyPnL(),
		"totalRiskPct":  s.ledger.TotalRisk(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tr.ActivePositions())
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tr.Balances(r.Context()))
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	result, err := s.tr.ClosePosition(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, trader.ErrNoActivePosition) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		countVenueError(err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	TradesTotal.WithLabelValues(result.Platform, "closed").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"monitoredChannels": s.registry.List()})
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelID string `json:"channelId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChannelID == "" {
		writeError(w, http.StatusBadRequest, errors.New("channelId is required"))
		return
	}
	if err := s.registry.Add(body.ChannelID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"monitoredChannels": s.registry.List()})
}

func (s *Server) handleRemoveChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Remove(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"monitoredChannels": s.registry.List()})
}

// handleSignal is the inbound message webhook: the body carries a channel id
// and raw message text, the dispatcher decides whether it trades.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChannelID string `json:"channelId"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ChannelID == "" {
		writeError(w, http.StatusBadRequest, errors.New("channelId and text are required"))
		return
	}

	result, err := s.dispatcher.HandleMessage(r.Context(), body.ChannelID, body.Text)
	if err != nil {
		var denied *risk.DeniedError
		if errors.As(err, &denied) {
			RiskDenials.Inc()
			SignalsReceived.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusConflict, err)
			return
		}
		var vErr *trader.ValidationError
		if errors.As(err, &vErr) {
			SignalsReceived.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, err)
			return
		}
		countVenueError(err)
		SignalsReceived.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadGateway, err)
		return
	}

	if result == nil {
		SignalsReceived.WithLabelValues("ignored").Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	SignalsReceived.WithLabelValues("executed").Inc()
	TradesTotal.WithLabelValues(result.Platform, "opened").Inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no history provider configured"))
		return
	}

	var cfg backtest.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	summary, err := backtest.Run(r.Context(), cfg, s.history, s.ledger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func countVenueError(err error) {
	var vErr *exchange.VenueError
	if errors.As(err, &vErr) {
		VenueErrors.WithLabelValues(vErr.Venue).Inc()
	}
}
