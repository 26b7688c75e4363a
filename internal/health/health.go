// Package health tracks the keeper's operational state in memory, exposes it
// as Prometheus gauges/counters, and serves both over a small HTTP API.
package health

import (
	"encoding/json"
	"math/big"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kusd-keeper/keeper/internal/domain"
)

// Tracker owns the keeper's KeeperHealth snapshot and mirrors it into a
// dedicated Prometheus registry on every mutation.
type Tracker struct {
	mu    sync.RWMutex
	state domain.KeeperHealth

	registry           *prometheus.Registry
	runningGauge       prometheus.Gauge
	lastTickGauge      prometheus.Gauge
	vaultsGauge        prometheus.Gauge
	auctionsGauge      prometheus.Gauge
	liquidationCounter prometheus.Counter
	bidCounter         prometheus.Counter
	pegArbCounter      prometheus.Counter
	errorCounter       prometheus.Counter
	profitGauge        prometheus.Gauge
}

// NewTracker builds a Tracker starting in the given mode, not yet running.
func NewTracker(mode domain.Mode) *Tracker {
	reg := prometheus.NewRegistry()
	t := &Tracker{
		state:    domain.KeeperHealth{Mode: mode, AccumulatedProfit: new(big.Int)},
		registry: reg,
	}

	t.runningGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_running",
		Help: "1 if the orchestrator loop is currently running, 0 otherwise",
	})
	t.lastTickGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_last_tick_unix",
		Help: "Unix timestamp of the most recently completed orchestrator tick",
	})
	t.vaultsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_monitored_vaults",
		Help: "Number of vaults currently tracked across all ilks",
	})
	t.auctionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_active_auctions",
		Help: "Number of take opportunities plus Flap/Flop bid opportunities found in the last tick",
	})
	t.liquidationCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_liquidations_total",
		Help: "Total number of bark dispatches that succeeded",
	})
	t.bidCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_bids_total",
		Help: "Total number of auction bids (take/tend/dent) that succeeded",
	})
	t.pegArbCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_peg_arbs_total",
		Help: "Total number of peg-arbitrage round-trips that succeeded",
	})
	t.errorCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keeper_errors_total",
		Help: "Total number of dispatch or monitor errors observed",
	})
	t.profitGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "keeper_accumulated_profit_rad",
		Help: "Accumulated signed peg-arbitrage profit, gem native units, as a float approximation",
	})

	reg.MustRegister(
		t.runningGauge,
		t.lastTickGauge,
		t.vaultsGauge,
		t.auctionsGauge,
		t.liquidationCounter,
		t.bidCounter,
		t.pegArbCounter,
		t.errorCounter,
		t.profitGauge,
	)
	return t
}

// Snapshot returns a defensive copy of the current state.
func (t *Tracker) Snapshot() domain.KeeperHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// SetRunning marks the orchestrator loop as started or stopped.
func (t *Tracker) SetRunning(running bool) {
	t.mu.Lock()
	t.state.Running = running
	t.mu.Unlock()
	if running {
		t.runningGauge.Set(1)
	} else {
		t.runningGauge.Set(0)
	}
}

// SetMode records which opportunity classes the current tick is dispatching.
func (t *Tracker) SetMode(mode domain.Mode) {
	t.mu.Lock()
	t.state.Mode = mode
	t.mu.Unlock()
}

// RecordTick updates the tick timestamp and the current vault/auction counts.
func (t *Tracker) RecordTick(unixTime int64, vaultCount, auctionCount int) {
	t.mu.Lock()
	t.state.LastTickAt = unixTime
	t.state.MonitoredVaults = vaultCount
	t.state.ActiveAuctions = auctionCount
	t.mu.Unlock()

	t.lastTickGauge.Set(float64(unixTime))
	t.vaultsGauge.Set(float64(vaultCount))
	t.auctionsGauge.Set(float64(auctionCount))
}

// RecordLiquidation increments the liquidation counter.
func (t *Tracker) RecordLiquidation() {
	t.mu.Lock()
	t.state.LiquidationCount++
	t.mu.Unlock()
	t.liquidationCounter.Inc()
}

// RecordBid increments the auction-bid counter.
func (t *Tracker) RecordBid() {
	t.mu.Lock()
	t.state.BidCount++
	t.mu.Unlock()
	t.bidCounter.Inc()
}

// RecordPegArb increments the peg-arbitrage counter and accumulates profit
// in gem native units; profitGem may be negative.
func (t *Tracker) RecordPegArb(profitGem *big.Int) {
	t.mu.Lock()
	t.state.PegArbCount++
	if t.state.AccumulatedProfit == nil {
		t.state.AccumulatedProfit = new(big.Int)
	}
	t.state.AccumulatedProfit.Add(t.state.AccumulatedProfit, profitGem)
	profitFloat, _ := new(big.Float).SetInt(t.state.AccumulatedProfit).Float64()
	t.mu.Unlock()

	t.pegArbCounter.Inc()
	t.profitGauge.Set(profitFloat)
}

// RecordError increments the error counter.
func (t *Tracker) RecordError() {
	t.mu.Lock()
	t.state.ErrorCount++
	t.mu.Unlock()
	t.errorCounter.Inc()
}

// Router builds a mux.Router exposing /healthz (liveness + JSON snapshot)
// and /metrics (Prometheus scrape target).
func (t *Tracker) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", t.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (t *Tracker) handleHealthz(w http.ResponseWriter, r *http.Request) {
	snap := t.Snapshot()

	status := http.StatusOK
	if !snap.Running {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(struct {
		Running           bool   `json:"running"`
		Mode              string `json:"mode"`
		LastTickAt        int64  `json:"last_tick_at"`
		MonitoredVaults   int    `json:"monitored_vaults"`
		ActiveAuctions    int    `json:"active_auctions"`
		LiquidationCount  int64  `json:"liquidation_count"`
		BidCount          int64  `json:"bid_count"`
		PegArbCount       int64  `json:"peg_arb_count"`
		AccumulatedProfit string `json:"accumulated_profit_rad"`
		ErrorCount        int64  `json:"error_count"`
	}{
		Running:           snap.Running,
		Mode:              string(snap.Mode),
		LastTickAt:        snap.LastTickAt,
		MonitoredVaults:   snap.MonitoredVaults,
		ActiveAuctions:    snap.ActiveAuctions,
		LiquidationCount:  snap.LiquidationCount,
		BidCount:          snap.BidCount,
		PegArbCount:       snap.PegArbCount,
		AccumulatedProfit: snap.AccumulatedProfit.String(),
		ErrorCount:        snap.ErrorCount,
	})
}
