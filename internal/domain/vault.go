// Package domain holds the plain value types shared across the keeper:
// vaults, ilks, dog parameters, auctions, PSM and DEX pair state, and
// keeper health. None of these types hold a chain connection, so monitor
// state is trivially cloneable and unit-testable.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// VaultKey identifies a vault (urn) by its collateral type and owner.
type VaultKey struct {
	Ilk string
	Urn common.Address
}

// Vault is a snapshot of one urn's collateral and debt.
type Vault struct {
	Key VaultKey
	Ink *big.Int // collateral amount, WAD
	Art *big.Int // normalized debt, WAD
}

// Empty reports whether the vault carries no debt; empty vaults are
// ignored by the unsafe-scan.
func (v Vault) Empty() bool {
	return v.Art == nil || v.Art.Sign() == 0
}

// Ilk is a collateral type's chain-read parameters. The keeper treats this
// as read-only and re-reads it every scan cycle.
type Ilk struct {
	Name string
	Rate *big.Int // accumulated debt multiplier, RAY
	Spot *big.Int // oracle price / liquidation ratio, RAY
	Art *big.Int // total normalized debt, WAD
	Line *big.Int // debt ceiling, RAD
	Dust *big.Int // minimum debt per vault, RAD
}

// DogParams is the liquidation module's global debt-ceiling parameters.
type DogParams struct {
	Hole *big.Int // global liquidation debt ceiling, RAD
	Dirt *big.Int // global in-flight liquidation debt, RAD
}

// DogIlkParams is the per-ilk subset of Dog parameters.
type DogIlkParams struct {
	Hole *big.Int // per-ilk liquidation debt ceiling, RAD
	Dirt *big.Int // per-ilk in-flight liquidation debt, RAD
	Clip common.Address
	Chop *big.Int // liquidation penalty multiplier, RAY
}

// CanLiquidate reports whether both the global and per-ilk debt ceilings
// have headroom, the precondition a liquidation requires before it is
// attempted.
func CanLiquidate(global DogParams, ilk DogIlkParams) bool {
	if global.Dirt.Cmp(global.Hole) >= 0 {
		return false
	}
	return ilk.Dirt.Cmp(ilk.Hole) < 0
}
