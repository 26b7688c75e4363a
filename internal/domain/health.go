package domain

import "math/big"

// Mode selects which opportunity classes the orchestrator dispatches on
// each tick. Flap/Flop bids are dispatched in every mode.
type Mode string

const (
	ModeFull Mode = "full"
	ModeKick Mode = "kick" // liquidations
	ModeBid Mode = "bid" // collateral-auction takes
	ModePeg Mode = "peg" // peg arbitrage
)

// KeeperHealth is the keeper's in-memory operational snapshot, read by the
// health HTTP endpoint and periodically persisted by internal/store.
type KeeperHealth struct {
	Running bool
	Mode Mode
	LastTickAt int64
	MonitoredVaults int
	ActiveAuctions int
	LiquidationCount int64
	BidCount int64
	PegArbCount int64
	AccumulatedProfit *big.Int // gem native units, signed; fed by peg arbitrage only
	ErrorCount int64
}

// Clone returns a defensive copy safe to hand to a reader goroutine without
// sharing the AccumulatedProfit pointer.
func (h KeeperHealth) Clone() KeeperHealth {
	out := h
	if h.AccumulatedProfit != nil {
		out.AccumulatedProfit = new(big.Int).Set(h.AccumulatedProfit)
	}
	return out
}
