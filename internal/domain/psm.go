package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PSM is the peg-stability module's chain-read state.
type PSM struct {
	Gem common.Address
	GemDecimals uint8
	Kusd common.Address
	Pocket common.Address
	Tin *big.Int // fee on gem->stablecoin, WAD
	Tout *big.Int // fee on stablecoin->gem, WAD
}

// GemConversion returns 10^(18-GemDecimals), the factor PSM math normalizes
// the gem's native decimals to 18.
func (p PSM) GemConversion() *big.Int {
	exp := 18 - int(p.GemDecimals)
	if exp < 0 {
		exp = 0
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}

// DexPair is a constant-product pool's chain-read reserves.
type DexPair struct {
	Token0, Token1 common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	ReserveUpdatedAt int64
}
