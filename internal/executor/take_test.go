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
	"github.com/kusd-keeper/keeper/internal/monitor"
	"github.com/kusd-keeper/keeper/internal/txgate"
	"github.com/kusd-keeper/keeper/pkg/contractclient"
	"github.com/kusd-keeper/keeper/pkg/types"
)

type fakeVatBalance struct {
	balance *big.Int
	err     error
}

func (f fakeVatBalance) VatBalance() (*big.Int, error) { return f.balance, f.err }

func TestTakeDispatchReducesAmountToAffordableBalance(t *testing.T) {
	pk := testPrivateKey(t)
	signer := common.Address{}
	wantHash := common.HexToHash("0xcc")

	// current_price = 50 RAY, lot = 1 WAD -> need 50 RAD; balance = 10 RAD
	// -> affordable = 10/50 = 0.2 WAD.
	currentPrice := new(big.Int).Mul(big.NewInt(50), fixed.RAY)
	balance := new(big.Int).Mul(big.NewInt(10), fixed.RAD)

	var sentAmount *big.Int
	clipper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			require.Equal(t, "take", method)
			sentAmount = args[1].(*big.Int)
			return wantHash, nil
		},
	}
	tl := &chainfakes.ReceiptWaiter{Receipts: map[common.Hash]*types.TxReceipt{
		wantHash: {TxHash: wantHash, Status: 1},
	}}

	exec := NewTakeExecutor(
		map[string]contractclient.ContractClient{"WBTC-A": clipper},
		fakeVatBalance{balance: balance},
		txgate.New(time.Millisecond),
		signer, pk, 300000, tl, &EmergencyStop{}, nil,
	)

	opp := monitor.BiddingOpportunity{
		Auction:       domain.ClipAuction{Key: domain.ClipAuctionKey{Ilk: "WBTC-A", ID: big.NewInt(1)}, Lot: fixed.WAD},
		CurrentPrice:  currentPrice,
		MarketPrice:   new(big.Int).Mul(big.NewInt(60), fixed.RAY),
		ProfitPercent: big.NewInt(2000),
	}

	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	wantAmount := new(big.Int).Quo(balance, currentPrice)
	assert.Equal(t, wantAmount, result.Amount)
	assert.Equal(t, wantAmount, sentAmount)
	assert.True(t, result.Amount.Cmp(fixed.WAD) < 0, "amount must be reduced below the full lot")

	// Solvency property: amount * current_price <= vat_balance.
	spent := new(big.Int).Mul(result.Amount, currentPrice)
	assert.True(t, spent.Cmp(balance) <= 0)
}

func TestTakeDispatchSkipsOnZeroBalance(t *testing.T) {
	pk := testPrivateKey(t)
	clipper := &chainfakes.ContractClient{
		SendFunc: func(txType types.TxType, gasLimit uint64, from *common.Address, pkArg *ecdsa.PrivateKey, method string, args ...interface{}) (common.Hash, error) {
			t.Fatal("take should not be sent with zero vat balance")
			return common.Hash{}, nil
		},
	}
	exec := NewTakeExecutor(
		map[string]contractclient.ContractClient{"WBTC-A": clipper},
		fakeVatBalance{balance: big.NewInt(0)},
		txgate.New(time.Millisecond),
		common.Address{}, pk, 300000, nil, &EmergencyStop{}, nil,
	)
	opp := monitor.BiddingOpportunity{
		Auction:      domain.ClipAuction{Key: domain.ClipAuctionKey{Ilk: "WBTC-A", ID: big.NewInt(1)}, Lot: fixed.WAD},
		CurrentPrice: new(big.Int).Mul(big.NewInt(50), fixed.RAY),
	}
	result, err := exec.Dispatch(opp)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}
