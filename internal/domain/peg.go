package domain

import "math/big"

// PegArbDirection selects which leg of the round-trip mints/redeems through
// the PSM and which sells/buys on the DEX.
type PegArbDirection int

const (
	// HighPriceArb mints stablecoin via the PSM and sells it on the DEX.
	HighPriceArb PegArbDirection = iota
	// LowPriceArb buys stablecoin on the DEX and redeems it via the PSM.
	LowPriceArb
)

// PegArbPlan is the output of one peg-arbitrage planning pass: everything
// the executor needs to run the two-leg round-trip, already sized and
// slippage-bounded.
type PegArbPlan struct {
	Direction PegArbDirection
	PriceRay *big.Int // spot price of stablecoin in gem, normalized to RAY
	DeviationPercent *big.Int // |price-1|*100, two implied decimals
	TradeAmountGem *big.Int // nominal trade size, gem native decimals
	// ExpectedOut is the round-trip's expected gem result: the DEX leg's
	// amountOut for HighPriceArb, or the PSM-redeemed gem amount for
	// LowPriceArb (also the amount requested from the PSM's buyGem call).
	ExpectedOut *big.Int
	// MinOut is the slippage floor for the DEX leg specifically, in the DEX
	// leg's own output token (gem for HighPriceArb, kusd for LowPriceArb) —
	// never the round-trip's net gem result.
	MinOut *big.Int
	ExpectedProfitGem *big.Int // gem native decimals
	ExpectedProfitPercent *big.Int
}
