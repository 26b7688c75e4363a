// Package fixed implements WAD/RAY/RAD fixed-point arithmetic: all
// on-chain-mirroring math runs on arbitrary-precision integers, truncating
// toward zero only in the final division. Float is never used here —
// conversion to float64 belongs to callers that format values for
// human-readable logs.
package fixed

import "math/big"

// Scale constants. WAD mirrors 18-decimal token amounts, RAY mirrors
// 27-decimal rates/prices, RAD mirrors 45-decimal debt/value totals
// (RAY * WAD).
var (
	WAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	RAY = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	RAD = new(big.Int).Exp(big.NewInt(10), big.NewInt(45), nil)
)

// WMul returns (x*y)/WAD.
func WMul(x, y *big.Int) *big.Int {
	return divScale(new(big.Int).Mul(x, y), WAD)
}

// RMul returns (x*y)/RAY.
func RMul(x, y *big.Int) *big.Int {
	return divScale(new(big.Int).Mul(x, y), RAY)
}

// WDiv returns (x*WAD)/y.
func WDiv(x, y *big.Int) *big.Int {
	return divScale(new(big.Int).Mul(x, WAD), y)
}

// RDiv returns (x*RAY)/y.
func RDiv(x, y *big.Int) *big.Int {
	return divScale(new(big.Int).Mul(x, RAY), y)
}

func divScale(numerator, denom *big.Int) *big.Int {
	if denom == nil || denom.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(numerator, denom)
}

// IsSafe reports whether a vault is collateralized, computed without
// division. ink, art are WAD; spot, rate are RAY; the products are
// RAD-scale and directly comparable.
func IsSafe(ink, art, spot, rate *big.Int) bool {
	lhs := new(big.Int).Mul(ink, spot)
	rhs := new(big.Int).Mul(art, rate)
	return lhs.Cmp(rhs) >= 0
}

// CollateralizationRatio returns (ink*spot)*100 / (art*rate) as a percent,
// or nil (representing +Inf) if art is zero (an empty vault).
func CollateralizationRatio(ink, art, spot, rate *big.Int) *big.Int {
	if art == nil || art.Sign() == 0 {
		return nil
	}
	numerator := new(big.Int).Mul(ink, spot)
	numerator.Mul(numerator, big.NewInt(100))
	denominator := new(big.Int).Mul(art, rate)
	return divScale(numerator, denominator)
}

// AuctionPrice implements the linear Dutch-auction price curve: top at
// now<=tic, 0 at now>=tic+tau, linear decay between. top is RAY; tic, tau,
// now are Unix seconds.
func AuctionPrice(top *big.Int, tic, tau, now int64) *big.Int {
	if now <= tic {
		return new(big.Int).Set(top)
	}
	end := tic + tau
	if now >= end {
		return big.NewInt(0)
	}
	remaining := big.NewInt(end - now)
	price := new(big.Int).Mul(top, remaining)
	return price.Quo(price, big.NewInt(tau))
}

// ProfitPercentage returns (sell-buy)*10000/buy, scaled so the result is a
// percentage with two implied decimal digits (e.g. 2000 == 20.00%). buy
// must be positive.
func ProfitPercentage(buy, sell *big.Int) *big.Int {
	if buy == nil || buy.Sign() <= 0 {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(sell, buy)
	diff.Mul(diff, big.NewInt(10000))
	return diff.Quo(diff, buy)
}

// PegPrice normalizes constant-product pool reserves to a RAY-scaled spot
// price of the stablecoin in gem:
// price = (gemReserve * 10^(18-gemDecimals)) / kusdReserve.
func PegPrice(gemReserve, kusdReserve, gemConversion *big.Int) *big.Int {
	numerator := new(big.Int).Mul(gemReserve, gemConversion)
	numerator.Mul(numerator, RAY)
	return divScale(numerator, kusdReserve)
}

// DeviationPercent returns |priceRay-RAY|*10000/RAY, i.e. the percent
// distance from peg with two implied decimal digits.
func DeviationPercent(priceRay *big.Int) *big.Int {
	diff := new(big.Int).Sub(priceRay, RAY)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10000))
	return diff.Quo(diff, RAY)
}

// PSMRedeemGemOut implements the PSM low-price-branch redemption formula,
// applied exactly as given to avoid under-paying the fee and reverting:
// gem = kusdIn*WAD / (conversion*(WAD+tout)).
func PSMRedeemGemOut(kusdIn, conversion, tout *big.Int) *big.Int {
	numerator := new(big.Int).Mul(kusdIn, WAD)
	denom := new(big.Int).Add(WAD, tout)
	denom.Mul(denom, conversion)
	return divScale(numerator, denom)
}
