package executor

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kusd-keeper/keeper/internal/chain/chainfakes"
	"github.com/kusd-keeper/keeper/internal/domain"
	"github.com/kusd-keeper/keeper/internal/fixed"
	"github.com/kusd-keeper/keeper/internal/kerr"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/types"
)

func TestPegExecuteRunsHighPriceArbLegsInOrder(t *testing.T) {
	pk := testPrivateKey(t)
	signer := common.Address{}

	gemBalances := []*big.Int{big.NewInt(1_000_000), big.NewInt(1_006_000)} // before, after
	callIdx := 0
	gem := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			require.Equal(t, "balanceOf", method)
			bal := gemBalances[callIdx]
			if callIdx < len(gemBalances)-1 {
				callIdx++
			}
			return []interface{}{bal}, nil
		},
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "approve", method)
			return common.HexToHash("0x01"), nil
		},
	}
	kusd := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			return []interface{}{new(big.Int).Mul(big.NewInt(10), fixed.WAD)}, nil
		},
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			return common.HexToHash("0x02"), nil
		},
	}
	psmC := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "sellGem", method)
			return common.HexToHash("0x03"), nil
		},
	}
	router := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "swapExactTokensForTokens", method)
			return common.HexToHash("0x04"), nil
		},
	}

	tl := &chainfakes.ReceiptWaiter{} // defaults every hash to status 1
	exec := NewPegExecutor(gem, kusd, psmC, router, txgate.New(time.Millisecond), signer, pk, 300000, tl, &EmergencyStop{}, nil, nil)

	plan := &domain.PegArbPlan{
		Direction:      domain.HighPriceArb,
		TradeAmountGem: big.NewInt(10_000_000),
		MinOut:         big.NewInt(9_900_000),
	}
	result, err := exec.Execute(plan)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x03"), result.FirstLegTx)
	assert.Equal(t, common.HexToHash("0x04"), result.SecondLegTx)
	assert.Equal(t, big.NewInt(6000), result.GemDelta)
}

func TestPegExecuteLowPriceArbUsesDexLegMinOutNotRoundTripGemResult(t *testing.T) {
	pk := testPrivateKey(t)
	signer := common.Address{}

	gemBalances := []*big.Int{big.NewInt(1_000_000), big.NewInt(1_004_000)} // before, after
	callIdx := 0
	gem := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			require.Equal(t, "balanceOf", method)
			bal := gemBalances[callIdx]
			if callIdx < len(gemBalances)-1 {
				callIdx++
			}
			return []interface{}{bal}, nil
		},
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "approve", method)
			return common.HexToHash("0x01"), nil
		},
	}
	kusdBought := new(big.Int).Mul(big.NewInt(10), fixed.WAD)
	kusd := &chainfakes.ContractClient{
		CallFunc: func(from *common.Address, method string, args ...interface{}) ([]interface{}, error) {
			return []interface{}{kusdBought}, nil
		},
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "approve", method)
			return common.HexToHash("0x02"), nil
		},
	}
	psmC := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "buyGem", method)
			return common.HexToHash("0x03"), nil
		},
	}
	// dexMinOut is denominated in kusd (the DEX leg's own output token), a
	// much larger number than the final gem-denominated ExpectedOut; the
	// swap call must receive dexMinOut, never ExpectedOut.
	dexMinOut := new(big.Int).Mul(big.NewInt(9), fixed.WAD)
	router := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "swapExactTokensForTokens", method)
			require.Len(t, args, 5)
			assert.Equal(t, dexMinOut, args[1])
			return common.HexToHash("0x04"), nil
		},
	}

	tl := &chainfakes.ReceiptWaiter{} // defaults every hash to status 1
	exec := NewPegExecutor(gem, kusd, psmC, router, txgate.New(time.Millisecond), signer, pk, 300000, tl, &EmergencyStop{}, nil, nil)

	plan := &domain.PegArbPlan{
		Direction:      domain.LowPriceArb,
		TradeAmountGem: big.NewInt(10_000_000),
		MinOut:         dexMinOut,
		ExpectedOut:    big.NewInt(10_040_000), // final gem amount requested from buyGem
	}
	result, err := exec.Execute(plan)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x04"), result.FirstLegTx)
	assert.Equal(t, common.HexToHash("0x03"), result.SecondLegTx)
	assert.Equal(t, big.NewInt(4000), result.GemDelta)
}

func TestPegExecuteRefusesWhenEmergencyStopArmed(t *testing.T) {
	pk := testPrivateKey(t)
	stop := &EmergencyStop{}
	stop.Set(true)
	exec := NewPegExecutor(nil, nil, nil, nil, txgate.New(time.Millisecond), common.Address{}, pk, 300000, nil, stop, nil, nil)

	_, err := exec.Execute(&domain.PegArbPlan{Direction: domain.HighPriceArb})
	require.Error(t, err)
	kind, ok := kerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, kerr.Config, kind)
}
