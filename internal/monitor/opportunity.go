// Package monitor hosts the long-lived state trackers that own the
// keeper's view of vaults, collateral auctions, and English auctions, each
// publishing plain snapshot "opportunities" that the orchestrator fans out
// to executors.
package monitor

import (
	"math/big"

	"github.com/kusd-keeper/keeper/internal/domain"
)

// LiquidationOpportunity is emitted by the Vault Monitor for any vault that
// fails the is_safe check.
type LiquidationOpportunity struct {
	Vault domain.Vault
	Ilk domain.Ilk
	Ratio *big.Int // collateralization_ratio percent, or nil for +Inf
	LiquidationPenalty *big.Int // chop, RAY
}

// BiddingOpportunity is emitted by the Collateral-Auction Monitor for any
// Clipper sale whose current price clears the configured profit bar.
type BiddingOpportunity struct {
	Auction domain.ClipAuction
	CurrentPrice *big.Int // RAY
	MarketPrice *big.Int // RAY
	ProfitPercent *big.Int // basis points, i.e. percent with 2 implied decimals
	MaxTake *big.Int // advisory, equals auction.Lot
}

// EnglishBidOpportunity is emitted by the Flap and Flop monitors. Profitable
// is never computed by the monitor: it is
// supplied by configuration or an external strategy and treated as a pure
// input by the executor.
type EnglishBidOpportunity struct {
	Auction domain.EnglishAuction
	Beg *big.Int // minimum bid-improvement factor, RAY
	Profitable bool
}
